package policy

// BuiltinPolicies returns the policies every run is checked against.
func BuiltinPolicies() []Policy {
	return []Policy{
		secureSourcesPolicy(),
		integrityPolicy(),
		documentationPolicy(),
	}
}

// secureSourcesPolicy rejects sources fetched over unauthenticated transports.
func secureSourcesPolicy() Policy {
	return Policy{
		Name:        "secure-sources",
		Description: "Downloads, installer scripts and clones must not use plain http or git://",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package converge.policies.sources

import rego.v1

fetched_kinds := {"binary-download", "script", "git-clone"}

deny contains violation if {
	unit := input.unit
	fetched_kinds[unit.kind]
	startswith(lower(unit.source), "http://")
	violation := {
		"message": sprintf("source %s uses plain http; use https", [unit.source]),
		"unit": unit.id,
	}
}

deny contains violation if {
	unit := input.unit
	unit.kind == "git-clone"
	startswith(lower(unit.source), "git://")
	violation := {
		"message": sprintf("clone source %s uses the unauthenticated git protocol; use https or ssh", [unit.source]),
		"unit": unit.id,
	}
}
`,
	}
}

// integrityPolicy flags downloaded executables without a pinned checksum.
func integrityPolicy() Policy {
	return Policy{
		Name:        "integrity",
		Description: "Binary downloads should declare a sha256 checksum",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package converge.policies.integrity

import rego.v1

warn contains violation if {
	unit := input.unit
	unit.kind == "binary-download"
	not unit.checksum
	violation := {
		"message": "binary download has no checksum; its content is not verified",
		"unit": unit.id,
	}
}
`,
	}
}

// documentationPolicy asks every unit to say why it exists.
func documentationPolicy() Policy {
	return Policy{
		Name:        "documentation",
		Description: "Units should carry a rationale",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package converge.policies.documentation

import rego.v1

warn contains violation if {
	unit := input.unit
	not unit.rationale
	violation := {
		"message": "unit has no rationale",
		"unit": unit.id,
	}
}
`,
	}
}
