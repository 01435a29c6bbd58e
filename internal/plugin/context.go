package plugin

import (
	"log/slog"
	"path"
	"strings"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/bundledev/internal/config"
)

// Settings is the mutable part of the build setup exposed to Configurer hooks.
type Settings struct {
	Mode       config.Mode
	WorkDir    string // absolute configuration context
	PublicPath string
	Hot        bool
	HotOnly    bool

	// Banner maps an artifact kind ("js", "css") to text prepended to every
	// artifact of that kind.
	Banner map[string]string

	// Define maps global identifiers to replacement expressions.
	Define map[string]string
}

// PrependBanner puts text in front of any banner already set for kind.
func (s *Settings) PrependBanner(kind, text string) {
	if s.Banner == nil {
		s.Banner = make(map[string]string)
	}
	if cur := s.Banner[kind]; cur != "" {
		text = text + "\n" + cur
	}
	s.Banner[kind] = text
}

// EntryAssets lists the artifacts produced for one entry bundle, in output
// path form relative to the output root.
type EntryAssets struct {
	Name string
	JS   string
	CSS  string
}

// Output gives Emitter hooks access to a compile result before it is
// published.
type Output struct {
	CompilationID string
	PublicPath    string
	WorkDir       string
	Entries       []EntryAssets
	Logger        *slog.Logger

	fs      afero.Fs
	emitted []string
}

// NewOutput wraps an artifact filesystem.
func NewOutput(fs afero.Fs, id, publicPath, workDir string, entries []EntryAssets, logger *slog.Logger) *Output {
	if logger == nil {
		logger = slog.Default()
	}
	return &Output{
		CompilationID: id,
		PublicPath:    publicPath,
		WorkDir:       workDir,
		Entries:       entries,
		Logger:        logger,
		fs:            fs,
	}
}

// Emit adds or replaces an artifact.
func (o *Output) Emit(name string, data []byte) error {
	name = cleanName(name)
	if dir := path.Dir(name); dir != "." {
		if err := o.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := afero.WriteFile(o.fs, name, data, 0o644); err != nil {
		return err
	}
	o.emitted = append(o.emitted, name)
	return nil
}

// Emitted lists the artifacts added through Emit, in call order.
func (o *Output) Emitted() []string {
	return append([]string(nil), o.emitted...)
}

// ReadFile returns an artifact's contents.
func (o *Output) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(o.fs, cleanName(name))
}

// URL returns the public URL of an artifact.
func (o *Output) URL(name string) string {
	return o.PublicPath + cleanName(name)
}

func cleanName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}
