package config

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

//go:embed catalogs/*.yaml
var builtinCatalogs embed.FS

// BuiltinPlatforms returns the platforms that ship a built-in catalog.
func BuiltinPlatforms() []string {
	entries, err := builtinCatalogs.ReadDir("catalogs")
	if err != nil {
		return nil
	}

	platforms := make([]string, 0, len(entries))
	for _, entry := range entries {
		platforms = append(platforms, strings.TrimSuffix(entry.Name(), path.Ext(entry.Name())))
	}
	sort.Strings(platforms)
	return platforms
}

// BuiltinSource returns the built-in catalog document for platform.
func BuiltinSource(platform string) (Source, error) {
	name := path.Join("catalogs", platform+".yaml")
	data, err := builtinCatalogs.ReadFile(name)
	if err != nil {
		return Source{}, engine.NewConfigurationError(
			fmt.Sprintf("no built-in catalog for platform %q (have %s)", platform, strings.Join(BuiltinPlatforms(), ", ")),
			err,
		).WithCode(engine.ErrCodeValidation)
	}
	return Source{Name: "builtin:" + name, Data: data}, nil
}

// LoadBuiltin loads the built-in catalog for the platform in facts.
func (l *Loader) LoadBuiltin(ctx context.Context, platform string, facts *engine.Facts) (*LoadResult, error) {
	src, err := BuiltinSource(platform)
	if err != nil {
		return nil, err
	}
	return l.LoadSources(ctx, []Source{src}, facts)
}
