// Package policy checks catalogs against Open Policy Agent (OPA) Rego
// policies before anything is installed.
//
// Each policy is evaluated once per unit with the input document
//
//	{"unit": {...}, "platform": "ubuntu", "operation": "apply"}
//
// where unit carries the same fields as a catalog entry. A policy may
// define two partial set rules: results of deny take the policy's
// severity, results of warn are always warnings. Results are either a
// message string or an object with message, and optionally unit and
// severity:
//
//	package local.policies.registry
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.unit.kind == "binary-download"
//	    not startswith(input.unit.source, "https://github.com/")
//	    violation := {"message": "binaries must come from GitHub releases"}
//	}
//
// Any error-severity violation makes the catalog disallowed, and
// Result.Err turns it into a configuration error so the run stops before
// the first install.
//
// # Built-in Policies
//
//  1. secure-sources - no plain http sources, no git:// clones (error)
//  2. integrity - binary downloads should pin a sha256 checksum (warning)
//  3. documentation - units should carry a rationale (warning)
//
// Extra policies are loaded from .rego files or JSON definitions named in
// the settings file.
package policy
