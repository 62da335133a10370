// Package config loads unit catalogs and tool settings for converge.
//
// # Overview
//
// A catalog is a list of units written in YAML, TOML, JSON (comments and
// trailing commas allowed) or CUE. The Loader decodes every file, validates
// each unit with struct tags and the built-in CUE #Unit schema, drops units
// whose `when` predicate is false for the local machine, and hands the rest
// to engine.NewCatalog.
//
// # Components
//
// Loader: Parses catalog files and directories and builds an engine.Catalog.
// Built-in catalogs for darwin and ubuntu are embedded in the binary.
//
// SchemaRegistry: Compiled CUE definitions used for unit and settings
// validation. Custom schemas can be registered.
//
// PredicateEvaluator: Evaluates Starlark `when` expressions against local
// facts with a timeout.
//
// Settings: Tool configuration read from YAML, .env files and CONVERGE_*
// environment variables.
//
// # Catalog Structure
//
//	platform: darwin        # optional; the file is skipped on other platforms
//	units:
//	  - id: lazygit
//	    kind: system-package
//	    manager: brew
//	    depends_on: [homebrew, git]
//	    when: arch == "arm64"
//	    shell:
//	      aliases: {lg: lazygit}
//
// The same catalog in CUE may key units by ID:
//
//	units: lazygit: {
//	    kind:       "system-package"
//	    manager:    "brew"
//	    depends_on: ["homebrew", "git"]
//	}
//
// # Predicates
//
// Every fact from engine.Facts.ToMap is predeclared by name and also
// available as fields of `facts`. version_at_least(installed, minimum)
// compares dotted versions:
//
//	when: os == "linux" and version_at_least(distro_version, "22.04")
//
// A unit that requires an excluded unit is excluded too.
//
// # Error Handling
//
// Every problem found in a catalog is collected into ValidationErrors and
// returned as a single engine configuration error, so nothing is installed
// from a catalog that does not validate.
package config
