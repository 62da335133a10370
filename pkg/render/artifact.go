package render

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/andrew-tomago/dotfiles/pkg/engine"
)

// DefaultHeader is written at the top of every generated file.
var DefaultHeader = []string{
	"Generated by converge. Manual edits are overwritten on the next run.",
}

// Generator produces file content from header lines and a capability set.
type Generator func(header []string, caps engine.CapabilitySet) []byte

var generators = map[string]Generator{
	"zsh":  generateZsh,
	"bash": generateBash,
	"env":  generateEnv,
}

// Formats returns the supported artifact formats, sorted.
func Formats() []string {
	formats := make([]string, 0, len(generators))
	for f := range generators {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}

// Artifact is a generated file: a target path plus a deterministic content
// function.
type Artifact struct {
	// Name identifies the artifact, normally the generated-file unit ID.
	Name string

	// Path is the target file with ~ already expanded.
	Path string

	// Format is the generator name.
	Format string

	header    []string
	generator Generator
}

// NewArtifact creates an artifact for a supported format.
func NewArtifact(name, path, format string, header []string) (Artifact, error) {
	gen, ok := generators[format]
	if !ok {
		return Artifact{}, engine.NewRenderError(
			fmt.Sprintf("unknown artifact format %q (supported: %s)", format, strings.Join(Formats(), ", ")), nil).
			WithCode(engine.ErrCodeUnknownFormat).WithUnit(name)
	}
	if len(header) == 0 {
		header = DefaultHeader
	}
	return Artifact{
		Name:      name,
		Path:      engine.ExpandHome(path),
		Format:    format,
		header:    append([]string(nil), header...),
		generator: gen,
	}, nil
}

// ArtifactFor builds the artifact described by a generated-file unit.
func ArtifactFor(unit engine.Unit) (Artifact, error) {
	if unit.Artifact == nil {
		return Artifact{}, engine.NewRenderError("unit has no artifact", nil).
			WithCode(engine.ErrCodeValidation).WithUnit(unit.ID)
	}
	return NewArtifact(unit.ID, unit.Artifact.Path, unit.Artifact.Format, unit.Artifact.Header)
}

// Content renders the artifact for caps.
func (a Artifact) Content(caps engine.CapabilitySet) []byte {
	return a.generator(a.header, caps)
}

func writeHeader(buf *bytes.Buffer, header []string) {
	for _, line := range header {
		buf.WriteString("# ")
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// shellPath turns a leading ~ into $HOME so the entry expands inside double quotes.
func shellPath(p string) string {
	switch {
	case p == "~":
		return "$HOME"
	case strings.HasPrefix(p, "~/"):
		return "$HOME" + p[1:]
	}
	return p
}

// doubleQuote quotes s for a POSIX shell, leaving $ expansion intact.
func doubleQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`")
	return `"` + r.Replace(s) + `"`
}

// singleQuote quotes s literally for a POSIX shell.
func singleQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// shellWriter emits one unit's fragment in a shell dialect.
type shellWriter struct {
	pathLine func(entry string) string
}

func (w shellWriter) generate(preamble []string, header []string, caps engine.CapabilitySet) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, header)
	for _, line := range preamble {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	for _, u := range caps.Units() {
		frag := u.Shell
		if frag.IsEmpty() {
			continue
		}

		buf.WriteString("\n# ")
		buf.WriteString(u.DisplayName())
		buf.WriteByte('\n')

		for _, p := range frag.Path {
			buf.WriteString(w.pathLine(doubleQuote(shellPath(p))))
			buf.WriteByte('\n')
		}
		for _, k := range sortedKeys(frag.Env) {
			fmt.Fprintf(&buf, "export %s=%s\n", k, doubleQuote(frag.Env[k]))
		}
		for _, k := range sortedKeys(frag.Aliases) {
			fmt.Fprintf(&buf, "alias %s=%s\n", k, singleQuote(frag.Aliases[k]))
		}
		for _, line := range frag.Init {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

func generateZsh(header []string, caps engine.CapabilitySet) []byte {
	w := shellWriter{pathLine: func(entry string) string {
		return "path=(" + entry + " $path)"
	}}
	// typeset -U keeps PATH free of duplicates when the file is sourced twice.
	return w.generate([]string{"", "typeset -U path PATH"}, header, caps)
}

func generateBash(header []string, caps engine.CapabilitySet) []byte {
	w := shellWriter{pathLine: func(entry string) string {
		bare := strings.Trim(entry, `"`)
		return fmt.Sprintf(`case ":$PATH:" in *":%s:"*) ;; *) export PATH=%s:"$PATH" ;; esac`, bare, entry)
	}}
	return w.generate(nil, header, caps)
}

// generateEnv writes a dotenv file. Later units override earlier ones for the
// same key; PATH entries, aliases and init lines have no dotenv form.
func generateEnv(header []string, caps engine.CapabilitySet) []byte {
	env := make(map[string]string)
	var contributors []string
	for _, u := range caps.Units() {
		if len(u.Shell.Env) == 0 {
			continue
		}
		contributors = append(contributors, u.ID)
		for k, v := range u.Shell.Env {
			env[k] = v
		}
	}

	var buf bytes.Buffer
	writeHeader(&buf, header)
	if len(contributors) > 0 {
		fmt.Fprintf(&buf, "# units: %s\n", strings.Join(contributors, ", "))
	}
	if len(env) == 0 {
		return buf.Bytes()
	}

	// Marshal sorts keys and escapes values.
	content, err := godotenv.Marshal(env)
	if err != nil {
		return buf.Bytes()
	}
	buf.WriteString(content)
	buf.WriteByte('\n')
	return buf.Bytes()
}
