package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// SupportedExtensions lists the catalog file extensions the loader reads.
var SupportedExtensions = []string{".yaml", ".yml", ".toml", ".json", ".jsonc", ".cue"}

// Source is one catalog document and where it came from.
type Source struct {
	Name string
	Data []byte
}

// LoadResult is the outcome of loading a catalog.
type LoadResult struct {
	// Catalog holds the units that apply to this machine.
	Catalog *engine.Catalog

	// Files lists the sources that were read, in load order.
	Files []string

	// Excluded lists unit IDs dropped by platform, `when`, or a dropped dependency.
	Excluded []string
}

// Loader parses catalog files in any supported format and builds an engine catalog.
type Loader struct {
	ctx        *cue.Context
	schemas    *SchemaRegistry
	predicates *PredicateEvaluator
	validator  *validator.Validate
	logger     zerolog.Logger
}

// NewLoader creates a new catalog loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		ctx:        cuecontext.New(),
		schemas:    NewSchemaRegistry(),
		predicates: NewPredicateEvaluator(5 * time.Second),
		validator:  validator.New(),
		logger:     logger.With().Str("component", "catalog-loader").Logger(),
	}
}

// Schemas returns the schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// Load reads every path (files or directories), validates the units, drops
// those that do not apply to facts, and builds the catalog. A nil facts
// keeps every unit.
func (l *Loader) Load(ctx context.Context, paths []string, facts *engine.Facts) (*LoadResult, error) {
	files, err := ExpandPaths(paths)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to resolve catalog paths", err).
			WithCode(engine.ErrCodeValidation)
	}
	if len(files) == 0 {
		return nil, engine.NewConfigurationError("no catalog files found", nil).
			WithCode(engine.ErrCodeValidation).
			WithDetail("paths", paths)
	}

	sources := make([]Source, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, engine.NewConfigurationError("failed to read catalog", err).
				WithCode(engine.ErrCodeValidation).
				WithDetail("file", file)
		}
		sources = append(sources, Source{Name: file, Data: data})
	}

	return l.LoadSources(ctx, sources, facts)
}

// LoadSources is Load over in-memory documents.
func (l *Loader) LoadSources(ctx context.Context, sources []Source, facts *engine.Facts) (*LoadResult, error) {
	result := &LoadResult{}
	var units []UnitConfig
	var problems ValidationErrors

	for _, src := range sources {
		result.Files = append(result.Files, src.Name)

		file, err := l.Parse(src.Name, src.Data)
		if err != nil {
			var ve ValidationErrors
			if errors.As(err, &ve) {
				problems = append(problems, ve...)
				continue
			}
			problems = append(problems, ValidationError{File: src.Name, Message: err.Error()})
			continue
		}

		problems = append(problems, l.validateFile(src.Name, file)...)

		if facts != nil && file.Platform != "" && file.Platform != facts.Platform() {
			l.logger.Debug().
				Str("file", src.Name).
				Str("platform", file.Platform).
				Msg("Skipping catalog for another platform")
			for _, uc := range file.Units {
				result.Excluded = append(result.Excluded, uc.ID)
			}
			continue
		}
		units = append(units, file.Units...)
	}

	if len(problems) > 0 {
		return nil, engine.NewConfigurationError("invalid catalog", problems).
			WithCode(engine.ErrCodeValidation).
			WithDetail("errors", []ValidationError(problems))
	}

	kept, excluded, err := l.applyPredicates(ctx, units, facts)
	if err != nil {
		return nil, err
	}
	result.Excluded = append(result.Excluded, excluded...)

	engineUnits := make([]engine.Unit, len(kept))
	for i, uc := range kept {
		engineUnits[i] = uc.ToUnit()
	}

	catalog, err := engine.NewCatalog(engineUnits...)
	if err != nil {
		return nil, err
	}
	result.Catalog = catalog

	l.logger.Debug().
		Int("units", catalog.Len()).
		Int("excluded", len(result.Excluded)).
		Strs("files", result.Files).
		Msg("Catalog loaded")

	return result, nil
}

// Parse decodes one catalog document, choosing the format from name's extension.
func (l *Loader) Parse(name string, data []byte) (*CatalogFile, error) {
	var file CatalogFile
	var err error

	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, &file)
	case ".toml":
		err = decodeTOML(data, &file)
	case ".json", ".jsonc":
		err = decodeJSON(data, &file)
	case ".cue":
		err = l.decodeCUE(name, data, &file)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", filepath.Ext(name))
	}
	if err != nil {
		var ve ValidationErrors
		if errors.As(err, &ve) {
			for i := range ve {
				if ve[i].File == "" {
					ve[i].File = name
				}
			}
			return nil, ve
		}
		return nil, ValidationErrors{{File: name, Message: err.Error()}}
	}

	return &file, nil
}

func decodeYAML(data []byte, file *CatalogFile) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(file); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeTOML(data []byte, file *CatalogFile) error {
	md, err := toml.Decode(string(data), file)
	if err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return ValidationErrors{{Line: perr.Position.Line, Message: perr.Message}}
		}
		return err
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func decodeJSON(data []byte, file *CatalogFile) error {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(file); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decodeCUE accepts `units` as a list or as a map keyed by unit ID.
func (l *Loader) decodeCUE(name string, data []byte, file *CatalogFile) error {
	val := l.ctx.CompileBytes(data, cue.Filename(name))
	if err := val.Err(); err != nil {
		return convertCUEErrors(err)
	}

	if p := val.LookupPath(cue.ParsePath("platform")); p.Exists() {
		if err := p.Decode(&file.Platform); err != nil {
			return convertCUEErrors(err)
		}
	}

	unitsVal := val.LookupPath(cue.ParsePath("units"))
	if !unitsVal.Exists() {
		return nil
	}

	switch unitsVal.Kind() {
	case cue.ListKind:
		return unitsVal.Decode(&file.Units)
	case cue.StructKind:
		iter, err := unitsVal.Fields()
		if err != nil {
			return convertCUEErrors(err)
		}
		for iter.Next() {
			var uc UnitConfig
			if err := iter.Value().Decode(&uc); err != nil {
				return convertCUEErrors(err)
			}
			if uc.ID == "" {
				uc.ID = iter.Selector().Unquoted()
			}
			file.Units = append(file.Units, uc)
		}
		return nil
	default:
		return fmt.Errorf("units must be a list or a struct, got %s", unitsVal.Kind())
	}
}

// validateFile runs struct-tag and CUE schema validation over every unit.
func (l *Loader) validateFile(name string, file *CatalogFile) ValidationErrors {
	var problems ValidationErrors

	for i, uc := range file.Units {
		path := fmt.Sprintf("units[%d]", i)
		if uc.ID != "" {
			path = fmt.Sprintf("units[%s]", uc.ID)
		}

		if err := l.validator.Struct(uc); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					problems = append(problems, ValidationError{
						File:    name,
						Path:    path + "." + fe.Field(),
						Message: describeFieldError(fe),
					})
				}
				continue
			}
			problems = append(problems, ValidationError{File: name, Path: path, Message: err.Error()})
			continue
		}

		if err := l.schemas.ValidateUnit(uc); err != nil {
			for _, ve := range convertCUEErrors(err) {
				ve.File = name
				ve.Path = path
				ve.Line, ve.Column = 0, 0
				problems = append(problems, ve)
			}
		}
	}

	return problems
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("must be a URL, got %q", fe.Value())
	case "len", "hexadecimal":
		return "must be a 64-character hex sha256"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}

// applyPredicates drops units whose `when` is falsy, then drops units that
// require a dropped unit. Order edges to dropped units are removed.
func (l *Loader) applyPredicates(ctx context.Context, units []UnitConfig, facts *engine.Facts) ([]UnitConfig, []string, error) {
	if facts == nil {
		return units, nil, nil
	}

	factMap := facts.ToMap()
	dropped := make(map[string]bool)
	var excluded []string

	for _, uc := range units {
		if uc.When == "" {
			continue
		}
		ok, err := l.predicates.Evaluate(ctx, uc.When, factMap)
		if err != nil {
			return nil, nil, engine.NewConfigurationError("failed to evaluate when", err).
				WithCode(engine.ErrCodeValidation).
				WithUnit(uc.ID)
		}
		if !ok {
			dropped[uc.ID] = true
			l.logger.Debug().Str("unit", uc.ID).Str("when", uc.When).Msg("Unit excluded by predicate")
		}
	}

	// Requiring a dropped unit drops the dependent too, until nothing changes.
	for changed := true; changed; {
		changed = false
		for _, uc := range units {
			if dropped[uc.ID] {
				continue
			}
			for _, dep := range uc.DependsOn {
				if dropped[dep] {
					dropped[uc.ID] = true
					changed = true
					l.logger.Debug().Str("unit", uc.ID).Str("dependency", dep).Msg("Unit excluded with its dependency")
					break
				}
			}
		}
	}

	kept := make([]UnitConfig, 0, len(units))
	for _, uc := range units {
		if dropped[uc.ID] {
			excluded = append(excluded, uc.ID)
			continue
		}
		if len(uc.After) > 0 {
			after := make([]string, 0, len(uc.After))
			for _, id := range uc.After {
				if !dropped[id] {
					after = append(after, id)
				}
			}
			uc.After = after
		}
		kept = append(kept, uc)
	}

	return kept, excluded, nil
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Message: strings.TrimSpace(cueerrors.Details(e, nil)),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		validationErrors = append(validationErrors, ve)
	}

	if len(validationErrors) == 0 {
		validationErrors = ValidationErrors{{Message: err.Error()}}
	}
	return validationErrors
}

// ExpandPaths resolves directories to the supported catalog files they
// contain, in lexical order. Explicit files are kept in argument order.
func ExpandPaths(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}

		if !info.IsDir() {
			add(p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}

		var names []string
		for _, entry := range entries {
			if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			if isSupported(entry.Name()) {
				names = append(names, entry.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			add(filepath.Join(p, name))
		}
	}

	return files, nil
}

func isSupported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
