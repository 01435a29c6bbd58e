package compiler

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bundledev/internal/config"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func projectConfig(dir string) *config.Config {
	return &config.Config{
		Mode:    config.ModeDevelopment,
		Context: dir,
		Entry:   config.Entries{{Name: "main", Path: "./src/index.js"}},
		Output: config.OutputConfig{
			Path:          "dist",
			Filename:      config.DefaultFilename,
			AssetFilename: config.DefaultAssetFilename,
			PublicPath:    "/",
		},
		Rules: []config.Rule{
			{Test: `\.png$`, Use: config.HandlerChain{{Loader: "url", Options: map[string]any{"limit": 16}}}},
			{Test: `\.md$`, Use: config.HandlerChain{{Loader: "markdown"}}},
		},
		Plugins: []config.PluginSpec{{Name: "html"}},
	}
}

func artifactPaths(c *Compilation) []string {
	out := make([]string, 0, len(c.Artifacts))
	for _, a := range c.Artifacts {
		out = append(out, a.Path)
	}
	return out
}

func TestESBuild_BundlesEntryWithStylesheetAndAssets(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/index.js":  "import './app.css';\nimport logo from './logo.png';\nimport tiny from './tiny.png';\nimport readme from './readme.md';\nconsole.log(logo, tiny, readme, process.env.NODE_ENV);\n",
		"src/app.css":   "body { color: red; }\n",
		"src/logo.png":  strings.Repeat("x", 64),
		"src/tiny.png":  "png",
		"src/readme.md": "# Hello\n",
	})

	c, err := New(projectConfig(dir))
	require.NoError(t, err)
	defer c.Close()

	comp, err := c.Compile(t.Context())
	require.NoError(t, err)
	require.False(t, comp.Failed(), "%v", comp.Errors)

	require.Equal(t, []plugin.EntryAssets{{Name: "main", JS: "main.js", CSS: "main.css"}}, comp.Entries)

	paths := artifactPaths(comp)
	assert.Contains(t, paths, "main.js")
	assert.Contains(t, paths, "main.css")
	assert.Contains(t, paths, "index.html")

	var logoAsset string
	for _, p := range paths {
		if strings.HasPrefix(p, "logo-") && strings.HasSuffix(p, ".png") {
			logoAsset = p
		}
	}
	require.NotEmpty(t, logoAsset, "large image is emitted as a file: %v", paths)
	for _, p := range paths {
		assert.False(t, strings.HasPrefix(p, "tiny"), "small image is inlined")
	}

	js, err := c.Artifact("main.js")
	require.NoError(t, err)
	assert.Contains(t, string(js), "/"+logoAsset)
	assert.Contains(t, string(js), "data:image/png")
	assert.Contains(t, string(js), "<h1>Hello</h1>")
	assert.Contains(t, string(js), `"development"`)

	page, err := c.Artifact("index.html")
	require.NoError(t, err)
	assert.Contains(t, string(page), `<script src="/main.js"></script>`)
	assert.Contains(t, string(page), `<link rel="stylesheet" href="/main.css"/>`)

	assert.ElementsMatch(t, []string{"src/index.js", "src/app.css", "src/logo.png", "src/tiny.png", "src/readme.md"}, comp.Modules)
}

func TestESBuild_StyleRuleInjectsCSSFromScript(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/index.js":  "import './theme.css';\n",
		"src/theme.css": "h1 { margin: 0; }\n",
	})
	cfg := projectConfig(dir)
	cfg.Rules = []config.Rule{{Test: `\.css$`, Use: config.HandlerChain{{Loader: "style"}, {Loader: "css"}}}}
	cfg.Plugins = nil

	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	comp, err := c.Compile(t.Context())
	require.NoError(t, err)
	require.False(t, comp.Failed(), "%v", comp.Errors)
	assert.Equal(t, []string{"main.js"}, artifactPaths(comp))

	js, err := c.Artifact("main.js")
	require.NoError(t, err)
	assert.Contains(t, string(js), StyleAttr)
	assert.Contains(t, string(js), "src/theme.css")
}

func TestESBuild_CSSModulesExportClassMap(t *testing.T) {
	for _, use := range []config.HandlerChain{
		{{Loader: "css", Options: map[string]any{"modules": true}}},
		{{Loader: "style"}, {Loader: "css", Options: map[string]any{"modules": true}}},
	} {
		t.Run(use[0].Loader, func(t *testing.T) {
			dir := t.TempDir()
			writeFiles(t, dir, map[string]string{
				"src/index.js":  "import style from './image.css';\ndocument.body.className = style['test-image'];\n",
				"src/image.css": ".test-image { width: 100px; }\n",
			})
			cfg := projectConfig(dir)
			cfg.Rules = []config.Rule{{Test: `\.css$`, Use: use}}
			cfg.Plugins = nil

			c, err := New(cfg)
			require.NoError(t, err)
			defer c.Close()

			comp, err := c.Compile(t.Context())
			require.NoError(t, err)
			require.False(t, comp.Failed(), "%v", comp.Errors)
			assert.ElementsMatch(t, []string{"main.js", "main.css"}, artifactPaths(comp))

			js, err := c.Artifact("main.js")
			require.NoError(t, err)
			m := regexp.MustCompile(`"test-image":\s*"([\w-]+)"`).FindStringSubmatch(string(js))
			require.Len(t, m, 2, "class map exported: %s", js)
			assert.NotEqual(t, "test-image", m[1])

			css, err := c.Artifact("main.css")
			require.NoError(t, err)
			assert.Contains(t, string(css), "."+m[1]+" {")
		})
	}
}

func TestESBuild_CustomHandler(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/index.js":    "import note from './note.txt';\nconsole.log(note);\n",
		"src/note.txt":    "quiet please\n",
		"src/ignored.txt": "unused\n",
	})
	cfg := projectConfig(dir)
	cfg.Rules = []config.Rule{{Test: `\.txt$`, Use: config.HandlerChain{{Loader: "shout"}}}}
	cfg.Plugins = nil

	shout := func(map[string]any) (Handler, error) {
		return HandlerFunc{HandlerName: "shout", Fn: func(src *Source) error {
			src.Contents = []byte(strings.ToUpper(string(src.Contents)))
			src.Loader = LoaderText
			return nil
		}}, nil
	}

	_, err := New(cfg)
	assert.True(t, config.IsSchemaError(err), "unknown without registration")

	c, err := New(cfg, WithHandler("shout", shout))
	require.NoError(t, err)
	defer c.Close()

	comp, err := c.Compile(t.Context())
	require.NoError(t, err)
	require.False(t, comp.Failed(), "%v", comp.Errors)
	js, err := c.Artifact("main.js")
	require.NoError(t, err)
	assert.Contains(t, string(js), "QUIET PLEASE")
}

func TestCSSHandler_ModulesOption(t *testing.T) {
	h, err := newCSSHandler(map[string]any{"modules": true})
	require.NoError(t, err)
	src := &Source{Path: "/p/a.css"}
	require.NoError(t, h.Apply(src))
	assert.Equal(t, LoaderLocalCSS, src.Loader)
	assert.Equal(t, api.LoaderLocalCSS, esbuildLoader(src.Loader))

	h, err = newCSSHandler(nil)
	require.NoError(t, err)
	require.NoError(t, h.Apply(src))
	assert.Equal(t, LoaderCSS, src.Loader)

	_, err = newCSSHandler(map[string]any{"modules": "yes"})
	assert.Error(t, err)
}

func TestESBuild_SyntaxErrorIsDiagnosticAndRecovers(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"src/index.js": "export const a = 1;\n"})
	cfg := projectConfig(dir)
	cfg.Plugins = nil

	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	good, err := c.Compile(t.Context())
	require.NoError(t, err)
	require.False(t, good.Failed())

	writeFiles(t, dir, map[string]string{"src/index.js": "export const a = ;\n"})
	bad, err := c.Compile(t.Context())
	require.NoError(t, err)
	require.True(t, bad.Failed())
	assert.Equal(t, "src/index.js", bad.Errors[0].File)
	assert.Equal(t, 1, bad.Errors[0].Line)

	_, err = c.Artifact("main.js")
	require.NoError(t, err, "previous output stays available")

	writeFiles(t, dir, map[string]string{"src/index.js": "export const a = 2;\n"})
	fixed, err := c.Compile(t.Context())
	require.NoError(t, err)
	require.False(t, fixed.Failed())
	assert.Equal(t, []Module{{ID: "src/index.js", Kind: "js"}}, fixed.Changed)
	assert.NotEqual(t, good.Hash, fixed.Hash)
}

func TestESBuild_BuildModuleIsStandaloneESM(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/index.js": "import { greet } from './greet.js';\ngreet();\n",
		"src/greet.js": "export function greet() { return 'hi'; }\n",
	})
	cfg := projectConfig(dir)
	cfg.Plugins = nil

	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Compile(t.Context())
	require.NoError(t, err)

	src, err := c.Module(t.Context(), "src/greet.js")
	require.NoError(t, err)
	assert.Contains(t, string(src), "export")
	assert.Contains(t, string(src), "greet")
}

func TestESBuild_BuildModuleRewritesImportsToModuleIDs(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"src/index.js":      "import number from './number';\nnumber();\n",
		"src/number.js":     "import { add } from './math';\nimport { pad } from './lib/fmt';\nexport default function number() { return pad(add(1, 2)); }\n",
		"src/math.js":       "export function add(a, b) { return a + b; }\n",
		"src/lib/fmt.js":    "import { add } from '../math';\nexport function pad(n) { return String(add(n, 0)).padStart(3, '0'); }\n",
		"src/unrelated.txt": "not imported\n",
	})
	cfg := projectConfig(dir)
	cfg.Plugins = nil

	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()
	comp, err := c.Compile(t.Context())
	require.NoError(t, err)
	require.False(t, comp.Failed(), "%v", comp.Errors)

	src, err := c.Module(t.Context(), "src/number.js")
	require.NoError(t, err)
	assert.Contains(t, string(src), `"./math.js"`)
	assert.Contains(t, string(src), `"./lib/fmt.js"`)
	assert.NotContains(t, string(src), "function add", "dependencies are fetched, not inlined")

	dep, err := c.Module(t.Context(), "src/lib/fmt.js")
	require.NoError(t, err)
	assert.Contains(t, string(dep), `"../math.js"`)

	for _, id := range []string{"src/math.js", "src/lib/fmt.js"} {
		assert.True(t, comp.HasModule(id), id)
	}
	_, err = c.Module(t.Context(), "src/unrelated.txt")
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestRelativeImport(t *testing.T) {
	cases := []struct{ from, to, want string }{
		{"src/number.js", "src/math.js", "./math.js"},
		{"src/number.js", "src/lib/fmt.js", "./lib/fmt.js"},
		{"src/lib/fmt.js", "src/math.js", "../math.js"},
		{"index.js", "src/a.js", "./src/a.js"},
		{"src/a/b/c.js", "lib/d.js", "../../../lib/d.js"},
		{"src/a.js", "src/my file.js", "./my%20file.js"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, relativeImport(tc.from, tc.to), tc.from+" -> "+tc.to)
	}
}

func TestSourceMapFor(t *testing.T) {
	cases := map[string]api.SourceMap{
		"":                        api.SourceMapNone,
		"none":                    api.SourceMapNone,
		"eval":                    api.SourceMapInline,
		"eval-source-map":         api.SourceMapInline,
		"inline-source-map":       api.SourceMapInline,
		"hidden-source-map":       api.SourceMapExternal,
		"source-map":              api.SourceMapLinked,
		"cheap-module-source-map": api.SourceMapLinked,
	}
	for in, want := range cases {
		got, err := sourceMapFor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := sourceMapFor("sourcemap-please")
	assert.True(t, config.IsSchemaError(err))
}

func TestEntryPattern(t *testing.T) {
	p, err := entryPattern("js/[name].bundle.js")
	require.NoError(t, err)
	assert.Equal(t, "js/[name].bundle", p)

	_, err = entryPattern("[name].[hash].js")
	assert.True(t, config.IsSchemaError(err))
}

func TestAssetPattern(t *testing.T) {
	assert.Equal(t, "images/[name]_[hash]", assetPattern("images/[name]_[hash].[ext]"))
	assert.Equal(t, "[name]-[hash]", assetPattern("[name]-[contenthash]"))
}
