package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bundledev/internal/config"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
)

// writeProject lays out a minimal project and returns the base config path.
func writeProject(t *testing.T, script string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "index.js"), []byte(script), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "style.css"), []byte("body { color: red; }\n"), 0o644))

	base := fmt.Sprintf(`context: %s
entry: ./src/index.js
rules:
  - test: \.css$
    use: [style-loader, css-loader]
output:
  path: dist
`, dir)
	path := filepath.Join(dir, "bundledev.yaml")
	require.NoError(t, os.WriteFile(path, []byte(base), 0o644))
	return dir, path
}

func TestResolveConfig_FallbackModeWithoutOverlays(t *testing.T) {
	_, path := writeProject(t, "console.log(1)\n")

	cli := &CLI{Config: path}
	cfg, err := cli.ResolveConfig(config.ModeProduction)
	require.NoError(t, err)
	assert.Equal(t, config.ModeProduction, cfg.Mode)
	assert.True(t, config.On(cfg.Optimization.Minimize))

	cli.Mode = "development"
	cfg, err = cli.ResolveConfig(config.ModeProduction)
	require.NoError(t, err)
	assert.Equal(t, config.ModeDevelopment, cfg.Mode)
	assert.True(t, config.On(cfg.DevServer.Hot))
}

func TestResolveConfig_OverlayModeWins(t *testing.T) {
	dir, path := writeProject(t, "console.log(1)\n")
	overlay := filepath.Join(dir, "dev.yaml")
	require.NoError(t, os.WriteFile(overlay, []byte("mode: development\ndevServer:\n  port: 4100\n"), 0o644))

	cli := &CLI{Config: path, Overlay: []string{overlay}}
	cfg, err := cli.ResolveConfig(config.ModeProduction)
	require.NoError(t, err)
	assert.Equal(t, config.ModeDevelopment, cfg.Mode)
	assert.Equal(t, 4100, cfg.DevServer.Port)
}

func TestShowConfig_PrintsEffectiveYAML(t *testing.T) {
	_, path := writeProject(t, "console.log(1)\n")
	var out bytes.Buffer

	cmd := &ShowConfigCmd{}
	require.NoError(t, cmd.Run(&Global{Out: &out}, &CLI{Config: path}))

	assert.Contains(t, out.String(), "mode: development")
	assert.Contains(t, out.String(), "name: hmr")
	assert.Contains(t, out.String(), "path: dist")
}

func TestShowConfig_SchemaErrorSurfaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundledev.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entry: ./src/index.js\n"), 0o644))

	err := (&ShowConfigCmd{}).Run(&Global{Out: &bytes.Buffer{}}, &CLI{Config: path})
	require.Error(t, err)
	assert.True(t, config.IsSchemaError(err))
	assert.Equal(t, 7, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestBuild_WritesArtifactsAndStats(t *testing.T) {
	dir, path := writeProject(t, "import './style.css'\nexport const answer = 42\nconsole.log(answer)\n")
	var out bytes.Buffer

	cmd := &BuildCmd{Stats: true}
	require.NoError(t, cmd.Run(&Global{Out: &out}, &CLI{Config: path}))

	js, err := os.ReadFile(filepath.Join(dir, "dist", "main.js"))
	require.NoError(t, err)
	assert.Contains(t, string(js), "42")

	var stats struct {
		Hash      string `json:"hash"`
		Artifacts []struct {
			Path string `json:"path"`
		} `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	assert.NotEmpty(t, stats.Hash)
	assert.NotEmpty(t, stats.Artifacts)
}

func TestBuild_OutOverride(t *testing.T) {
	_, path := writeProject(t, "console.log('hi')\n")
	target := t.TempDir()

	cmd := &BuildCmd{Out: target}
	require.NoError(t, cmd.Run(&Global{Out: &bytes.Buffer{}}, &CLI{Config: path}))

	_, err := os.Stat(filepath.Join(target, "main.js"))
	require.NoError(t, err)
}

func TestBuild_CompileErrorExitCode(t *testing.T) {
	dir, path := writeProject(t, "export const = ;\n")

	err := (&BuildCmd{}).Run(&Global{Out: &bytes.Buffer{}}, &CLI{Config: path})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryCompile))
	assert.Equal(t, 11, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))

	_, statErr := os.Stat(filepath.Join(dir, "dist", "main.js"))
	assert.True(t, os.IsNotExist(statErr), "failed builds write nothing")
}

func TestBuild_ExampleProject(t *testing.T) {
	base := filepath.Join("..", "..", "..", "example", "build", "base.yaml")
	prod := filepath.Join("..", "..", "..", "example", "build", "prod.yaml")
	target := t.TempDir()

	cmd := &BuildCmd{Out: target}
	require.NoError(t, cmd.Run(&Global{Out: &bytes.Buffer{}}, &CLI{Config: base, Overlay: []string{prod}}))

	page, err := os.ReadFile(filepath.Join(target, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), `<script src="/main.js"></script>`)
	assert.Contains(t, string(page), `<link rel="stylesheet" href="/main.css"/>`, "scoped styles ship as a stylesheet")

	js, err := os.ReadFile(filepath.Join(target, "main.js"))
	require.NoError(t, err)
	assert.Contains(t, string(js), "example bundle")
	assert.Contains(t, string(js), "test-image")
	assert.Contains(t, string(js), "data:image/svg+xml", "the logo is under the url limit")
}

func TestShowConfig_ExampleDevelopmentPair(t *testing.T) {
	base := filepath.Join("..", "..", "..", "example", "build", "base.yaml")
	dev := filepath.Join("..", "..", "..", "example", "build", "dev.yaml")
	var out bytes.Buffer

	require.NoError(t, (&ShowConfigCmd{}).Run(&Global{Out: &out}, &CLI{Config: base, Overlay: []string{dev}}))
	assert.Contains(t, out.String(), "mode: development")
	assert.Contains(t, out.String(), "port: 3000")
	assert.Contains(t, out.String(), "hotOnly: true")
}
