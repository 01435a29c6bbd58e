package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

// HTMLName is the configuration name of the HTML page plugin.
const HTMLName = "html"

const defaultPage = `<!DOCTYPE html><html><head><meta charset="utf-8"><title>%s</title></head><body></body></html>`

// HTML emits a page that loads every entry bundle. Stylesheets are linked in
// <head>; scripts are appended to <body> in entry order.
type HTML struct {
	template string
	filename string
	title    string
}

// NewHTML reads the options template (path relative to the configuration
// context), filename (default index.html) and title.
func NewHTML(options map[string]any) (plugin.Plugin, error) {
	h := &HTML{}
	var err error
	if h.template, err = plugin.StringOption(options, "template", ""); err != nil {
		return nil, err
	}
	if h.filename, err = plugin.StringOption(options, "filename", "index.html"); err != nil {
		return nil, err
	}
	if h.title, err = plugin.StringOption(options, "title", "bundledev"); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *HTML) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        HTMLName,
		Version:     version,
		Description: "Generates an HTML page referencing the entry bundles",
	}
}

// AfterCompile renders the page. The template is read on every compile so
// edits to it show up without restarting.
func (h *HTML) AfterCompile(_ context.Context, out *plugin.Output) error {
	src, err := h.source(out.WorkDir)
	if err != nil {
		return err
	}
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	head := findElement(doc, atom.Head)
	body := findElement(doc, atom.Body)
	if head == nil || body == nil {
		return fmt.Errorf("template has no head or body")
	}

	for _, e := range out.Entries {
		if e.CSS != "" {
			head.AppendChild(element(atom.Link, "rel", "stylesheet", "href", out.URL(e.CSS)))
		}
	}
	for _, e := range out.Entries {
		if e.JS != "" {
			body.AppendChild(element(atom.Script, "src", out.URL(e.JS)))
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	return out.Emit(h.filename, buf.Bytes())
}

func (h *HTML) source(workDir string) ([]byte, error) {
	if h.template == "" {
		return fmt.Appendf(nil, defaultPage, html.EscapeString(h.title)), nil
	}
	p := h.template
	if !filepath.IsAbs(p) {
		p = filepath.Join(workDir, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return data, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func element(a atom.Atom, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}
