package compiler

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/bundledev/internal/config"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

// assetLoaders are applied to files no rule claims, so common asset imports
// work without explicit rules.
var assetLoaders = map[string]api.Loader{
	".png":   api.LoaderFile,
	".jpg":   api.LoaderFile,
	".jpeg":  api.LoaderFile,
	".gif":   api.LoaderFile,
	".svg":   api.LoaderFile,
	".webp":  api.LoaderFile,
	".woff":  api.LoaderFile,
	".woff2": api.LoaderFile,
	".ttf":   api.LoaderFile,
	".eot":   api.LoaderFile,
}

type esbuildBackend struct {
	setup   Setup
	options api.BuildOptions
	ctx     api.BuildContext
}

// NewESBuildBackend is the default BackendFactory. It keeps one incremental
// esbuild context for the lifetime of the compiler.
func NewESBuildBackend(setup Setup) (Backend, error) {
	opts, err := buildOptions(setup)
	if err != nil {
		return nil, err
	}
	bctx, cerr := api.Context(opts)
	if cerr != nil {
		return nil, ferrors.CompileError("create compiler context").
			Fatal().
			WithContext("errors", diagnosticStrings(diagnostics(cerr.Errors))).
			Build()
	}
	return &esbuildBackend{setup: setup, options: opts, ctx: bctx}, nil
}

func buildOptions(s Setup) (api.BuildOptions, error) {
	cfg := s.Config
	sourcemap, err := sourceMapFor(cfg.Devtool)
	if err != nil {
		return api.BuildOptions{}, err
	}
	entryPattern, err := entryPattern(cfg.Output.Filename)
	if err != nil {
		return api.BuildOptions{}, err
	}

	entries := make([]api.EntryPoint, 0, len(cfg.Entry))
	for _, ep := range cfg.Entry {
		entries = append(entries, api.EntryPoint{
			InputPath:  absPath(s.WorkDir, ep.Path),
			OutputPath: strings.ReplaceAll(entryPattern, "[name]", ep.Name),
		})
	}

	minimize := config.On(cfg.Optimization.Minimize)
	treeShaking := api.TreeShakingFalse
	if config.On(cfg.Optimization.UsedExports) {
		treeShaking = api.TreeShakingTrue
	}

	return api.BuildOptions{
		EntryPointsAdvanced: entries,
		AbsWorkingDir:       s.WorkDir,
		Outdir:              s.OutDir,
		AssetNames:          assetPattern(cfg.Output.AssetFilename),
		PublicPath:          cfg.Output.PublicPath,
		Bundle:              true,
		Write:               false,
		Metafile:            true,
		Format:              api.FormatIIFE,
		Platform:            api.PlatformBrowser,
		Target:              api.ES2020,
		Sourcemap:           sourcemap,
		MinifyWhitespace:    minimize,
		MinifyIdentifiers:   minimize,
		MinifySyntax:        minimize,
		TreeShaking:         treeShaking,
		Banner:              s.Settings.Banner,
		Define:              s.Settings.Define,
		Loader:              assetLoaders,
		Plugins:             []api.Plugin{rulesPlugin(s.Rules, s.WorkDir)},
		LogLevel:            api.LogLevelSilent,
	}, nil
}

// sourceMapFor maps a devtool name to a source map mode.
func sourceMapFor(devtool string) (api.SourceMap, error) {
	switch {
	case devtool == "" || devtool == "none" || devtool == "false":
		return api.SourceMapNone, nil
	case strings.Contains(devtool, "inline") || strings.HasPrefix(devtool, "eval"):
		return api.SourceMapInline, nil
	case strings.Contains(devtool, "hidden"):
		return api.SourceMapExternal, nil
	case strings.Contains(devtool, "source-map"):
		return api.SourceMapLinked, nil
	default:
		return api.SourceMapNone, ferrors.SchemaError("unknown devtool").
			WithContext("field", "devtool").
			WithContext("value", devtool).
			Build()
	}
}

// entryPattern turns an output filename such as "[name].js" into the
// extension-less path esbuild expects. Only [name] is supported.
func entryPattern(filename string) (string, error) {
	p := strings.TrimSuffix(filename, ".js")
	if strings.Contains(strings.ReplaceAll(p, "[name]", ""), "[") {
		return "", ferrors.SchemaError("output.filename supports the [name] placeholder only").
			WithContext("field", "output.filename").
			WithContext("value", filename).
			Build()
	}
	return p, nil
}

// assetPattern maps assetFilename placeholders to esbuild's and drops the
// extension, which esbuild appends itself.
func assetPattern(pattern string) string {
	p := strings.NewReplacer("[contenthash]", "[hash]", "[ext]", "").Replace(pattern)
	return strings.TrimSuffix(p, ".")
}

func absPath(workDir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(workDir, p)
}

func (b *esbuildBackend) Build(ctx context.Context) (*BuildResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := b.ctx.Rebuild()
	out := &BuildResult{
		Errors:   diagnostics(res.Errors),
		Warnings: diagnostics(res.Warnings),
	}
	if len(res.Errors) > 0 {
		return out, nil
	}

	out.Files = make(map[string][]byte, len(res.OutputFiles))
	for _, f := range res.OutputFiles {
		rel, err := filepath.Rel(b.setup.OutDir, f.Path)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryCompile, "output outside output.path").
				WithContext("path", f.Path).Build()
		}
		out.Files[filepath.ToSlash(rel)] = f.Contents
	}

	meta, err := parseMetafile(res.Metafile)
	if err != nil {
		return nil, err
	}
	out.Inputs = meta.inputIDs(b.setup.WorkDir)
	out.Entries = meta.entryAssets(b.setup)
	return out, nil
}

// BuildModule compiles one module as a standalone ES module. Imports of
// project files become relative imports of their module ids, so the browser
// fetches them through the same endpoint; packages are inlined.
func (b *esbuildBackend) BuildModule(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := b.options
	opts.EntryPointsAdvanced = nil
	opts.EntryPoints = []string{absPath(b.setup.WorkDir, id)}
	opts.Bundle = true
	opts.Plugins = append([]api.Plugin{moduleImportsPlugin(b.setup.WorkDir, id)}, b.options.Plugins...)
	opts.Format = api.FormatESModule
	opts.Sourcemap = api.SourceMapInline
	opts.Banner = nil
	opts.Metafile = false

	res := api.Build(opts)
	if len(res.Errors) > 0 {
		return nil, ferrors.CompileError("module compile failed").
			WithContext("module", id).
			WithContext("errors", diagnosticStrings(diagnostics(res.Errors))).
			Build()
	}
	for _, f := range res.OutputFiles {
		if strings.HasSuffix(f.Path, ".js") {
			return f.Contents, nil
		}
	}
	return nil, ferrors.CompileError("module produced no script").WithContext("module", id).Build()
}

type resolvingImport struct{}

// moduleImportsPlugin marks every import of a project file external and
// rewrites it to the imported module id, relative to importer.
func moduleImportsPlugin(workDir, importer string) api.Plugin {
	return api.Plugin{
		Name: "bundledev-module-imports",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if _, again := args.PluginData.(resolvingImport); again || args.Kind == api.ResolveEntryPoint {
						return api.OnResolveResult{}, nil
					}
					res := build.Resolve(args.Path, api.ResolveOptions{
						Importer:   args.Importer,
						Namespace:  args.Namespace,
						ResolveDir: args.ResolveDir,
						Kind:       args.Kind,
						PluginData: resolvingImport{},
						With:       args.With,
					})
					if len(res.Errors) > 0 {
						return api.OnResolveResult{Errors: res.Errors, Warnings: res.Warnings}, nil
					}
					if res.External || res.Namespace != "file" {
						return api.OnResolveResult{}, nil
					}
					dep := ModuleID(workDir, res.Path)
					if path.IsAbs(dep) || strings.Contains("/"+dep, "/node_modules/") {
						return api.OnResolveResult{}, nil
					}
					return api.OnResolveResult{Path: relativeImport(importer, dep), External: true}, nil
				})
		},
	}
}

// relativeImport returns the URL path that reaches module id to from the URL
// of module id from, when both are served under the same base.
func relativeImport(from, to string) string {
	fromDir := strings.Split(path.Dir(from), "/")
	if fromDir[0] == "." {
		fromDir = nil
	}
	target := strings.Split(to, "/")
	common := 0
	for common < len(fromDir) && common < len(target)-1 && fromDir[common] == target[common] {
		common++
	}
	parts := make([]string, 0, len(fromDir)-common+len(target)-common)
	for range fromDir[common:] {
		parts = append(parts, "..")
	}
	for _, seg := range target[common:] {
		parts = append(parts, url.PathEscape(seg))
	}
	rel := strings.Join(parts, "/")
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel
}

func (b *esbuildBackend) Close() {
	b.ctx.Dispose()
}

func diagnostics(msgs []api.Message) []Diagnostic {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]Diagnostic, 0, len(msgs))
	for _, m := range msgs {
		d := Diagnostic{Text: m.Text, Plugin: m.PluginName}
		if m.Location != nil {
			d.File = m.Location.File
			d.Line = m.Location.Line
			d.Column = m.Location.Column
		}
		out = append(out, d)
	}
	return out
}

func diagnosticStrings(ds []Diagnostic) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.String())
	}
	return out
}

type metafile struct {
	Inputs  map[string]json.RawMessage `json:"inputs"`
	Outputs map[string]metaOutput      `json:"outputs"`
}

type metaOutput struct {
	EntryPoint string `json:"entryPoint,omitempty"`
	CSSBundle  string `json:"cssBundle,omitempty"`
}

func parseMetafile(raw string) (*metafile, error) {
	var m metafile
	if raw == "" {
		return &m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "parse compiler metafile").Build()
	}
	return &m, nil
}

// inputIDs returns the module ids of all file-namespace inputs, sorted.
func (m *metafile) inputIDs(workDir string) []string {
	ids := make([]string, 0, len(m.Inputs))
	for p := range m.Inputs {
		if strings.Contains(p, ":") && !filepath.IsAbs(p) {
			continue // virtual module from a non-file namespace
		}
		ids = append(ids, ModuleID(workDir, p))
	}
	sort.Strings(ids)
	return ids
}

// entryAssets maps each configured entry to its script and stylesheet.
func (m *metafile) entryAssets(s Setup) []plugin.EntryAssets {
	rel := func(workRelPath string) string {
		r, err := filepath.Rel(s.OutDir, absPath(s.WorkDir, workRelPath))
		if err != nil {
			return workRelPath
		}
		return filepath.ToSlash(r)
	}

	out := make([]plugin.EntryAssets, 0, len(s.Config.Entry))
	for _, ep := range s.Config.Entry {
		assets := plugin.EntryAssets{Name: ep.Name}
		want := ModuleID(s.WorkDir, ep.Path)
		for outPath, o := range m.Outputs {
			if o.EntryPoint == "" || ModuleID(s.WorkDir, o.EntryPoint) != want {
				continue
			}
			switch {
			case strings.HasSuffix(outPath, ".js"):
				assets.JS = rel(outPath)
				if o.CSSBundle != "" {
					assets.CSS = rel(o.CSSBundle)
				}
			case strings.HasSuffix(outPath, ".css"):
				assets.CSS = rel(outPath)
			}
		}
		out = append(out, assets)
	}
	return out
}

// readInput is used to fingerprint inputs between compiles.
func readInput(workDir, id string) ([]byte, error) {
	return os.ReadFile(absPath(workDir, filepath.FromSlash(id)))
}
