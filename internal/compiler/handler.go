package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

// Loader tells the external compiler how to interpret a handler chain's
// final output.
type Loader string

const (
	LoaderDefault  Loader = "" // decided by file extension
	LoaderJS       Loader = "js"
	LoaderJSX      Loader = "jsx"
	LoaderTS       Loader = "ts"
	LoaderTSX      Loader = "tsx"
	LoaderCSS      Loader = "css"
	LoaderLocalCSS Loader = "local-css" // class names scoped to the file and exported as a map
	LoaderJSON     Loader = "json"
	LoaderText     Loader = "text"
	LoaderDataURL  Loader = "dataurl"
	LoaderFile     Loader = "file"
)

// Source is the unit a handler chain transforms: one matched input file.
type Source struct {
	Path     string // absolute path
	ID       string // module id
	Contents []byte
	Loader   Loader
}

// Handler transforms a source. Handlers of a rule run last-to-first, each
// receiving the previous handler's output.
type Handler interface {
	Name() string
	Apply(src *Source) error
}

// HandlerFactory builds a handler from its configured options.
type HandlerFactory func(options map[string]any) (Handler, error)

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	HandlerName string
	Fn          func(src *Source) error
}

func (h HandlerFunc) Name() string            { return h.HandlerName }
func (h HandlerFunc) Apply(src *Source) error { return h.Fn(src) }

func loaderHandler(name string, pick func(src *Source) Loader) HandlerFactory {
	return func(map[string]any) (Handler, error) {
		return HandlerFunc{HandlerName: name, Fn: func(src *Source) error {
			src.Loader = pick(src)
			return nil
		}}, nil
	}
}

func fixed(l Loader) func(*Source) Loader {
	return func(*Source) Loader { return l }
}

// scriptLoader picks the script dialect from the file extension.
func scriptLoader(def Loader) func(*Source) Loader {
	return func(src *Source) Loader {
		switch strings.ToLower(filepath.Ext(src.Path)) {
		case ".jsx":
			return LoaderJSX
		case ".ts", ".mts", ".cts":
			return LoaderTS
		case ".tsx":
			return LoaderTSX
		default:
			return def
		}
	}
}

// defaultHandlers lists the handlers every configuration may reference.
func defaultHandlers() map[string]HandlerFactory {
	return map[string]HandlerFactory{
		"js":       loaderHandler("js", scriptLoader(LoaderJS)),
		"babel":    loaderHandler("babel", scriptLoader(LoaderJS)),
		"ts":       loaderHandler("ts", scriptLoader(LoaderTS)),
		"jsx":      loaderHandler("jsx", scriptLoader(LoaderJSX)),
		"css":      newCSSHandler,
		"json":     loaderHandler("json", fixed(LoaderJSON)),
		"file":     loaderHandler("file", fixed(LoaderFile)),
		"raw":      loaderHandler("raw", fixed(LoaderText)),
		"text":     loaderHandler("text", fixed(LoaderText)),
		"style":    newStyleHandler,
		"url":      newURLHandler,
		"markdown": newMarkdownHandler,
	}
}

// newCSSHandler marks sources as CSS. With the modules option, class and id
// selectors are renamed per file and the module's default export maps the
// original names to the generated ones.
func newCSSHandler(options map[string]any) (Handler, error) {
	modules, err := plugin.BoolOption(options, "modules", false)
	if err != nil {
		return nil, err
	}
	if modules {
		return loaderHandler("css", fixed(LoaderLocalCSS))(options)
	}
	return loaderHandler("css", fixed(LoaderCSS))(options)
}

// StyleAttr marks <style> elements owned by style modules. Its value is the
// module id, so a re-evaluated module replaces its own element.
const StyleAttr = "data-bundledev-id"

type styleHandler struct{}

func newStyleHandler(map[string]any) (Handler, error) { return styleHandler{}, nil }

func (styleHandler) Name() string { return "style" }

// Apply turns CSS into a script that injects it into the document. Scoped
// CSS is left to the compiler, which emits it with the entry's stylesheet and
// exports the class map.
func (styleHandler) Apply(src *Source) error {
	if src.Loader == LoaderLocalCSS {
		return nil
	}
	isCSS := src.Loader == LoaderCSS ||
		(src.Loader == LoaderDefault && strings.EqualFold(filepath.Ext(src.Path), ".css"))
	if !isCSS {
		return fmt.Errorf("style expects css input, got %q", src.Loader)
	}
	id, err := json.Marshal(src.ID)
	if err != nil {
		return err
	}
	css, err := json.Marshal(string(src.Contents))
	if err != nil {
		return err
	}
	var b bytes.Buffer
	b.WriteString("(function () {\n")
	fmt.Fprintf(&b, "  var id = %s, css = %s, el = null;\n", id, css)
	fmt.Fprintf(&b, "  document.querySelectorAll(\"style[%s]\").forEach(function (s) { if (s.getAttribute(%q) === id) el = s; });\n", StyleAttr, StyleAttr)
	b.WriteString("  if (!el) {\n")
	b.WriteString("    el = document.createElement(\"style\");\n")
	fmt.Fprintf(&b, "    el.setAttribute(%q, id);\n", StyleAttr)
	b.WriteString("    document.head.appendChild(el);\n")
	b.WriteString("  }\n")
	b.WriteString("  el.textContent = css;\n")
	b.WriteString("})();\n")
	src.Contents = b.Bytes()
	src.Loader = LoaderJS
	return nil
}

type urlHandler struct {
	limit int
}

func newURLHandler(options map[string]any) (Handler, error) {
	limit, err := plugin.IntOption(options, "limit", 0)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("option limit must not be negative")
	}
	return urlHandler{limit: limit}, nil
}

func (urlHandler) Name() string { return "url" }

// Apply inlines the file as a data URL unless it exceeds the limit, in which
// case it is emitted as a separate asset. A zero limit always inlines.
func (h urlHandler) Apply(src *Source) error {
	if h.limit > 0 && len(src.Contents) > h.limit {
		src.Loader = LoaderFile
		return nil
	}
	src.Loader = LoaderDataURL
	return nil
}

type markdownHandler struct {
	md goldmark.Markdown
}

func newMarkdownHandler(options map[string]any) (Handler, error) {
	unsafe, err := plugin.BoolOption(options, "unsafe", false)
	if err != nil {
		return nil, err
	}
	var rendererOpts []goldmark.Option
	if unsafe {
		rendererOpts = append(rendererOpts, goldmark.WithRendererOptions(gmhtml.WithUnsafe()))
	}
	rendererOpts = append(rendererOpts, goldmark.WithExtensions(extension.GFM))
	return markdownHandler{md: goldmark.New(rendererOpts...)}, nil
}

func (markdownHandler) Name() string { return "markdown" }

// Apply renders Markdown to an HTML string module.
func (h markdownHandler) Apply(src *Source) error {
	var buf bytes.Buffer
	if err := h.md.Convert(src.Contents, &buf); err != nil {
		return err
	}
	src.Contents = buf.Bytes()
	src.Loader = LoaderText
	return nil
}
