package config

import (
	"fmt"
	"strings"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// CatalogFile is the top-level document of a catalog file in any format.
type CatalogFile struct {
	// Platform optionally restricts the whole file to one platform.
	Platform string `json:"platform,omitempty" yaml:"platform,omitempty" toml:"platform,omitempty"`

	// Units are the declared units, in declaration order.
	Units []UnitConfig `json:"units" yaml:"units" toml:"units" validate:"dive"`
}

// UnitConfig represents a unit as written in a catalog file.
type UnitConfig struct {
	// ID is the unique identifier for this unit (e.g., "lazygit").
	ID string `json:"id" yaml:"id" toml:"id" validate:"required,max=64,excludesall= /\\"`

	// Kind is the source kind (e.g., "system-package", "binary-download").
	Kind string `json:"kind" yaml:"kind" toml:"kind" validate:"required,oneof=system-package cask snap language-package binary-download git-clone script generated-file"`

	// Label is the human-readable name.
	Label string `json:"label,omitempty" yaml:"label,omitempty" toml:"label,omitempty"`

	// Rationale records why the unit is in the catalog.
	Rationale string `json:"rationale,omitempty" yaml:"rationale,omitempty" toml:"rationale,omitempty"`

	// DependsOn lists units that must succeed first.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty" toml:"depends_on,omitempty" validate:"dive,required"`

	// After lists units that must be finalized first, whatever their outcome.
	After []string `json:"after,omitempty" yaml:"after,omitempty" toml:"after,omitempty" validate:"dive,required"`

	Package string `json:"package,omitempty" yaml:"package,omitempty" toml:"package,omitempty"`

	Manager string `json:"manager,omitempty" yaml:"manager,omitempty" toml:"manager,omitempty" validate:"omitempty,oneof=apt brew brew-cask snap npm pipx uv cargo go gem"`

	MinVersion string `json:"min_version,omitempty" yaml:"min_version,omitempty" toml:"min_version,omitempty"`

	Upgrade bool `json:"upgrade,omitempty" yaml:"upgrade,omitempty" toml:"upgrade,omitempty"`

	// Source is a download or repository URL.
	Source string `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty" validate:"omitempty,url"`

	Destination string `json:"destination,omitempty" yaml:"destination,omitempty" toml:"destination,omitempty"`

	Ref string `json:"ref,omitempty" yaml:"ref,omitempty" toml:"ref,omitempty"`

	// Checksum is the hex-encoded sha256 of a downloaded file.
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty" toml:"checksum,omitempty" validate:"omitempty,len=64,hexadecimal"`

	Args []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`

	// When is a Starlark expression over local facts; a falsy result drops the unit.
	When string `json:"when,omitempty" yaml:"when,omitempty" toml:"when,omitempty"`

	Detect *DetectConfig `json:"detect,omitempty" yaml:"detect,omitempty" toml:"detect,omitempty"`

	Shell *ShellConfig `json:"shell,omitempty" yaml:"shell,omitempty" toml:"shell,omitempty"`

	Artifact *ArtifactConfig `json:"artifact,omitempty" yaml:"artifact,omitempty" toml:"artifact,omitempty" validate:"required_if=Kind generated-file"`
}

// DetectConfig overrides how a unit is probed.
type DetectConfig struct {
	Command        string   `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty"`
	VersionArgs    []string `json:"version_args,omitempty" yaml:"version_args,omitempty" toml:"version_args,omitempty"`
	VersionPattern string   `json:"version_pattern,omitempty" yaml:"version_pattern,omitempty" toml:"version_pattern,omitempty"`
	Path           string   `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
}

// ShellConfig is a unit's contribution to generated shell files.
type ShellConfig struct {
	Path    []string          `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	Aliases map[string]string `json:"aliases,omitempty" yaml:"aliases,omitempty" toml:"aliases,omitempty"`
	Init    []string          `json:"init,omitempty" yaml:"init,omitempty" toml:"init,omitempty"`
}

// ArtifactConfig describes a generated configuration file.
type ArtifactConfig struct {
	Path    string   `json:"path" yaml:"path" toml:"path" validate:"required"`
	Format  string   `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty" validate:"omitempty,oneof=zsh bash env"`
	Header  []string `json:"header,omitempty" yaml:"header,omitempty" toml:"header,omitempty"`
	Sources []string `json:"sources,omitempty" yaml:"sources,omitempty" toml:"sources,omitempty"`
}

// ToUnit converts the configuration into an engine unit.
func (uc UnitConfig) ToUnit() engine.Unit {
	u := engine.Unit{
		ID:          uc.ID,
		Kind:        engine.SourceKind(uc.Kind),
		Label:       uc.Label,
		Rationale:   uc.Rationale,
		DependsOn:   uc.DependsOn,
		After:       uc.After,
		Package:     uc.Package,
		Manager:     uc.Manager,
		MinVersion:  uc.MinVersion,
		Upgrade:     uc.Upgrade,
		Source:      uc.Source,
		Destination: uc.Destination,
		Ref:         uc.Ref,
		Checksum:    strings.ToLower(uc.Checksum),
		Args:        uc.Args,
	}

	if uc.Detect != nil {
		u.Detect = engine.DetectSpec{
			Command:        uc.Detect.Command,
			VersionArgs:    uc.Detect.VersionArgs,
			VersionPattern: uc.Detect.VersionPattern,
			Path:           uc.Detect.Path,
		}
	}

	if uc.Shell != nil {
		u.Shell = engine.ShellFragment{
			Path:    uc.Shell.Path,
			Env:     uc.Shell.Env,
			Aliases: uc.Shell.Aliases,
			Init:    uc.Shell.Init,
		}
	}

	if uc.Artifact != nil {
		format := uc.Artifact.Format
		if format == "" {
			format = "zsh"
		}
		u.Artifact = &engine.ArtifactSpec{
			Path:    uc.Artifact.Path,
			Format:  format,
			Header:  uc.Artifact.Header,
			Sources: uc.Artifact.Sources,
		}
	}

	return u
}

// ValidationError represents a problem found while loading a catalog.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// String formats the error as file:line:column: path: message.
func (ve ValidationError) String() string {
	var b strings.Builder
	if ve.File != "" {
		b.WriteString(ve.File)
		if ve.Line > 0 {
			fmt.Fprintf(&b, ":%d", ve.Line)
			if ve.Column > 0 {
				fmt.Fprintf(&b, ":%d", ve.Column)
			}
		}
		b.WriteString(": ")
	}
	if ve.Path != "" {
		b.WriteString(ve.Path)
		b.WriteString(": ")
	}
	b.WriteString(ve.Message)
	return b.String()
}

// ValidationErrors collects every problem found in a catalog.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	msgs := make([]string, len(ve))
	for i, e := range ve {
		msgs[i] = e.String()
	}
	return strings.Join(msgs, "; ")
}
