package engine

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

var versionNumber = regexp.MustCompile(`\d+(\.\d+){0,2}`)

// CanonicalVersion reduces a tool or package version to a semver string.
// The first dotted number wins and Debian epochs are dropped, so both
// "1:2.39.2-1ubuntu1" and "git version 2.39.2" become "v2.39.2".
// Returns "" if no version is found.
func CanonicalVersion(raw string) string {
	v := strings.TrimSpace(raw)
	if i := strings.Index(v, ":"); i > 0 && i < 3 {
		v = v[i+1:]
	}
	m := versionNumber.FindString(v)
	if m == "" {
		return ""
	}

	// Calendar-style versions such as "24.04" carry leading zeros semver rejects.
	parts := strings.Split(m, ".")
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return ""
		}
		parts[i] = strconv.Itoa(n)
	}
	return semver.Canonical("v" + strings.Join(parts, "."))
}

// VersionAtLeast reports whether installed satisfies minimum. ok is false if
// either version cannot be parsed.
func VersionAtLeast(installed, minimum string) (satisfied, ok bool) {
	iv, mv := CanonicalVersion(installed), CanonicalVersion(minimum)
	if iv == "" || mv == "" {
		return false, false
	}
	return semver.Compare(iv, mv) >= 0, true
}
