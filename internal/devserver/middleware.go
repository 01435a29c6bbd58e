// Package devserver serves compiled output from memory during development.
// Requests for artifacts wait for any in-flight compile, so a response never
// mixes output from a superseded compile with a newer one.
package devserver

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/spf13/afero"

	"git.home.luguber.info/inful/bundledev/internal/compiler"
	ferrors "git.home.luguber.info/inful/bundledev/internal/foundation/errors"
	"git.home.luguber.info/inful/bundledev/internal/logfields"
	"git.home.luguber.info/inful/bundledev/internal/metrics"
)

// DefaultWaitTimeout bounds how long a request waits for a compile.
const DefaultWaitTimeout = 30 * time.Second

// Artifacts is the compiler surface the middleware reads from.
type Artifacts interface {
	Wait(ctx context.Context) error
	Snapshot() (*compiler.Compilation, afero.Fs)
	Last() *compiler.Compilation
}

// Options configures the middleware.
type Options struct {
	PublicPath  string // served prefix; an absolute URL contributes its path
	WaitTimeout time.Duration
	Gzip        bool
	PageScript  string // script URL added to the compile error page
	Recorder    metrics.Recorder
	Logger      *slog.Logger
	Errors      *ferrors.HTTPErrorAdapter
}

type middleware struct {
	src    Artifacts
	opts   Options
	prefix string
	gzip   func(http.Handler) http.HandlerFunc
	next   http.Handler
}

// Middleware serves GET and HEAD requests under opts.PublicPath from the
// latest good output of src. Requests outside the prefix, other methods and
// unknown artifacts fall through to next.
func Middleware(src Artifacts, opts Options) func(http.Handler) http.Handler {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Errors == nil {
		opts.Errors = ferrors.NewHTTPErrorAdapter(opts.Logger)
	}
	m := &middleware{src: src, opts: opts, prefix: servedPrefix(opts.PublicPath)}
	if opts.Gzip {
		wrap, err := gzhttp.NewWrapper()
		if err == nil {
			m.gzip = wrap
		} else {
			opts.Logger.Warn("Gzip disabled", logfields.Error(err))
		}
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		mw := *m
		mw.next = next
		return &mw
	}
}

// Handler serves artifacts and answers 404 for everything else.
func Handler(src Artifacts, opts Options) http.Handler {
	return Middleware(src, opts)(nil)
}

// servedPrefix returns the URL path part of a public path.
func servedPrefix(publicPath string) string {
	p := publicPath
	if strings.Contains(p, "://") {
		if u, err := url.Parse(p); err == nil {
			p = u.Path
		}
	}
	p = "/" + strings.Trim(p, "/")
	if p != "/" {
		p += "/"
	}
	return p
}

func (m *middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		m.next.ServeHTTP(w, r)
		return
	}
	name, ok := m.artifactName(r.URL.Path)
	if !ok {
		m.next.ServeHTTP(w, r)
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), m.opts.WaitTimeout)
	err := m.src.Wait(ctx)
	cancel()
	m.opts.Recorder.ObserveRequestWait(time.Since(start))
	if err != nil {
		if r.Context().Err() != nil {
			return // client went away
		}
		m.fail(w, r, ferrors.ServeError("compile still running").WithContext("path", r.URL.Path).Build())
		return
	}

	comp, fs := m.src.Snapshot()
	if comp == nil {
		if last := m.src.Last(); last.Failed() && isPage(name) {
			m.opts.Recorder.IncRequest(http.StatusServiceUnavailable)
			renderErrorPage(w, last, m.opts.PageScript)
			return
		}
		m.next.ServeHTTP(w, r)
		return
	}
	art, found := comp.Lookup(name)
	if !found {
		m.next.ServeHTTP(w, r)
		return
	}
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		m.fail(w, r, ferrors.WrapError(err, ferrors.CategoryInternal, "read artifact").WithContext("path", name).Build())
		return
	}

	serve := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Type", contentType(name))
		h.Set("Cache-Control", "no-cache")
		h.Set("ETag", `"`+art.Hash[:16]+`"`)
		h.Set("X-Bundledev-Compilation", comp.ID)
		http.ServeContent(w, r, name, comp.StartedAt, bytes.NewReader(data))
	}))
	if m.gzip != nil {
		serve = m.gzip(serve)
	}
	sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
	serve.ServeHTTP(sw, r)
	m.opts.Recorder.IncRequest(sw.statusCode)
}

// artifactName maps a request path to an output-root relative artifact path.
func (m *middleware) artifactName(urlPath string) (string, bool) {
	if urlPath+"/" == m.prefix {
		urlPath = m.prefix
	}
	if !strings.HasPrefix(urlPath, m.prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(urlPath, m.prefix)
	if rel == "" || strings.HasSuffix(rel, "/") {
		rel += "index.html"
	}
	name := strings.TrimPrefix(path.Clean("/"+rel), "/")
	return name, name != ""
}

func (m *middleware) fail(w http.ResponseWriter, r *http.Request, err error) {
	m.opts.Recorder.IncRequest(m.opts.Errors.StatusCodeFor(err))
	m.opts.Errors.WriteErrorResponse(w, r, err)
}

func isPage(name string) bool {
	return strings.HasSuffix(name, ".html")
}

// contentType picks a media type by extension. Scripts always get the
// JavaScript type so module imports are accepted by browsers.
func contentType(name string) string {
	switch path.Ext(name) {
	case ".js", ".mjs":
		return "text/javascript; charset=utf-8"
	case ".map":
		return "application/json"
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// renderErrorPage shows compile diagnostics while no good output exists yet.
func renderErrorPage(w http.ResponseWriter, comp *compiler.Compilation, script string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusServiceUnavailable)

	var msgs strings.Builder
	for _, d := range comp.Errors {
		msgs.WriteString(html.EscapeString(d.String()))
		msgs.WriteString("\n")
	}
	tag := ""
	if script != "" {
		tag = fmt.Sprintf(`<script src="%s"></script>`, html.EscapeString(script))
	}
	_, _ = fmt.Fprintf(w, `<!doctype html><html><head><meta charset="utf-8"><title>Compile failed</title><style>body{font-family:sans-serif;max-width:800px;margin:50px auto;padding:20px}h1{color:#d32f2f}pre{background:#f5f5f5;padding:15px;border-radius:4px;overflow-x:auto}</style></head><body><h1>Compile failed</h1><p>Fix the errors below and save to recompile.</p><pre>%s</pre>%s</body></html>`,
		msgs.String(), tag)
}
