package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema("unit", "#Unit", builtinUnitSchema); err != nil {
		panic(err)
	}
	if err := sr.RegisterSchema("settings", "#Settings", builtinSettingsSchema); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles schema and registers the definition named def under name.
func (sr *SchemaRegistry) RegisterSchema(name, def, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	defVal := val.LookupPath(cue.ParsePath(def))
	if !defVal.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, def)
	}

	sr.schemas[name] = defVal
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Validate checks data against a named schema. Data is encoded through its
// JSON form so omitted optional fields stay absent.
func (sr *SchemaRegistry) Validate(schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	dataVal := sr.ctx.CompileBytes(raw)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return err
	}

	return nil
}

// ValidateUnit validates a unit configuration against the unit schema.
func (sr *SchemaRegistry) ValidateUnit(unit UnitConfig) error {
	return sr.Validate("unit", unit)
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Built-in schema definitions

const builtinUnitSchema = `
#Kind: "system-package" | "cask" | "snap" | "language-package" |
	"binary-download" | "git-clone" | "script" | "generated-file"

#Manager: "apt" | "brew" | "brew-cask" | "snap" |
	"npm" | "pipx" | "uv" | "cargo" | "go" | "gem"

#ID: string & =~"^[a-zA-Z0-9][a-zA-Z0-9._-]*$"

#Unit: {
	id:   #ID
	kind: #Kind

	label?:     string
	rationale?: string

	depends_on?: [...#ID]
	after?: [...#ID]

	package?:     string
	manager?:     #Manager
	min_version?: string & =~"^v?[0-9]+(\\.[0-9]+){0,2}$"
	upgrade?:     bool

	source?:      string & =~"^(https?|ssh|git|file)://"
	destination?: string
	ref?:         string
	checksum?:    string & =~"^[a-fA-F0-9]{64}$"
	args?: [...string]

	when?: string

	detect?: {
		command?: string
		version_args?: [...string]
		version_pattern?: string
		path?:            string
	}

	shell?: {
		path?: [...string]
		env?: {[=~"^[A-Za-z_][A-Za-z0-9_]*$"]: string}
		aliases?: {[=~"^[A-Za-z0-9_.-]+$"]: string}
		init?: [...string]
	}

	artifact?: {
		path:    string & !=""
		format?: "zsh" | "bash" | "env"
		header?: [...string]
		sources?: [...#ID]
	}
}
`

const builtinSettingsSchema = `
#Settings: {
	catalogs?: [...string]
	platform?:  =~"^[a-z][a-z0-9]*$"
	state_dir?: string
	history?: {
		enabled?: bool
		path?:    string
		keep?:    int & >=0
	}
	policy?: {
		enabled?: bool
		paths?: [...string]
	}
	watch?: {
		debounce?: int & >=0
	}
	telemetry?: {...}
}
`
