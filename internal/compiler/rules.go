package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/bundledev/internal/config"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
)

// Rule is a configured rule with its patterns compiled and handlers built.
type Rule struct {
	Test     *regexp.Regexp
	Exclude  *regexp.Regexp
	Handlers []Handler
}

// Matches reports whether the rule applies to path (slash-separated).
func (r Rule) Matches(path string) bool {
	if !r.Test.MatchString(path) {
		return false
	}
	return r.Exclude == nil || !r.Exclude.MatchString(path)
}

// compileRules builds every rule. An unknown handler name is a schema error.
func compileRules(rules []config.Rule, factories map[string]HandlerFactory) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i, rc := range rules {
		field := fmt.Sprintf("rules[%d]", i)
		test, exclude, err := rc.Patterns()
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategorySchema, "malformed rule pattern").
				Fatal().WithContext("field", field).Build()
		}
		r := Rule{Test: test, Exclude: exclude}
		for j, ref := range rc.Use {
			factory, ok := factories[ref.Loader]
			if !ok {
				return nil, ferrors.SchemaError("unknown handler").
					WithContext("field", fmt.Sprintf("%s.use[%d]", field, j)).
					WithContext("handler", ref.Loader).
					Build()
			}
			h, err := factory(ref.Options)
			if err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid handler options").
					Fatal().
					WithContext("field", fmt.Sprintf("%s.use[%d]", field, j)).
					WithContext("handler", ref.Loader).
					Build()
			}
			r.Handlers = append(r.Handlers, h)
		}
		out = append(out, r)
	}
	return out, nil
}

// chainFor concatenates the handlers of every rule matching path, in rule order.
func chainFor(rules []Rule, path string) []Handler {
	path = filepath.ToSlash(path)
	var chain []Handler
	for _, r := range rules {
		if r.Matches(path) {
			chain = append(chain, r.Handlers...)
		}
	}
	return chain
}

// ApplyChain runs a handler chain last-to-first over src.
func ApplyChain(chain []Handler, src *Source) error {
	for i := len(chain) - 1; i >= 0; i-- {
		if err := chain[i].Apply(src); err != nil {
			return fmt.Errorf("%s handler: %w", chain[i].Name(), err)
		}
	}
	return nil
}

// ModuleID returns the stable identifier of a source file: its slash-separated
// path relative to workDir in Unicode NFC. Files outside workDir keep their
// absolute path.
func ModuleID(workDir, path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	id := path
	if rel, err := filepath.Rel(workDir, path); err == nil && !strings.HasPrefix(rel, "..") {
		id = rel
	}
	return norm.NFC.String(filepath.ToSlash(id))
}

// rulesPlugin routes every file the compiler loads through the handler chain
// of the rules matching it. Files no rule matches are left to the compiler.
func rulesPlugin(rules []Rule, workDir string) api.Plugin {
	return api.Plugin{
		Name: "bundledev-rules",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					chain := chainFor(rules, args.Path)
					if len(chain) == 0 {
						return api.OnLoadResult{}, nil
					}
					data, err := os.ReadFile(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					src := &Source{Path: args.Path, ID: ModuleID(workDir, args.Path), Contents: data}
					if err := ApplyChain(chain, src); err != nil {
						return api.OnLoadResult{}, err
					}
					contents := string(src.Contents)
					return api.OnLoadResult{
						Contents:   &contents,
						Loader:     esbuildLoader(src.Loader),
						ResolveDir: filepath.Dir(args.Path),
					}, nil
				})
		},
	}
}

func esbuildLoader(l Loader) api.Loader {
	switch l {
	case LoaderJS:
		return api.LoaderJS
	case LoaderJSX:
		return api.LoaderJSX
	case LoaderTS:
		return api.LoaderTS
	case LoaderTSX:
		return api.LoaderTSX
	case LoaderCSS:
		return api.LoaderCSS
	case LoaderLocalCSS:
		return api.LoaderLocalCSS
	case LoaderJSON:
		return api.LoaderJSON
	case LoaderText:
		return api.LoaderText
	case LoaderDataURL:
		return api.LoaderDataURL
	case LoaderFile:
		return api.LoaderFile
	default:
		return api.LoaderDefault
	}
}
