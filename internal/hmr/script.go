package hmr

import (
	"fmt"
	"strconv"
)

// ScriptOptions parameterizes the browser runtime.
type ScriptOptions struct {
	Endpoint   string // SSE endpoint
	ModuleBase string // prefix fresh modules are imported from
	HotOnly    bool   // never fall back to a full reload
}

// ClientScript returns the browser runtime. It exposes
// window.__bundledev_hot.accept(id, fn) and applies notifications with the
// same rules as Runtime: style modules swap in place, accepted script modules
// are re-imported and handed to their handler, anything else reloads.
func ClientScript(opts ScriptOptions) string {
	if opts.Endpoint == "" {
		opts.Endpoint = EndpointPath
	}
	if opts.ModuleBase == "" {
		opts.ModuleBase = ModulePathBase
	}
	return fmt.Sprintf(clientScript,
		strconv.Quote(opts.Endpoint),
		strconv.Quote(opts.ModuleBase),
		strconv.FormatBool(opts.HotOnly))
}

const clientScript = `(function () {
  if (typeof window === "undefined" || window.__bundledev_hot) return;
  var endpoint = %s, moduleBase = %s, hotOnly = %s;
  var handlers = {}, states = {}, current = null;

  function reload(reason) {
    if (hotOnly) { console.warn("[bundledev] full reload required: " + reason); return; }
    console.log("[bundledev] reloading: " + reason);
    location.reload();
  }

  function moduleURL(id, hash) {
    return moduleBase + id.split("/").map(encodeURIComponent).join("/") + "?t=" + encodeURIComponent(hash || Date.now());
  }

  function swapStyle(id, hash) {
    var owned = document.querySelector('style[data-bundledev-id="' + id.replace(/"/g, '\\"') + '"]');
    if (owned) { return import(moduleURL(id, hash)); }
    document.querySelectorAll('link[rel="stylesheet"]').forEach(function (link) {
      var u = new URL(link.href, location.href);
      u.searchParams.set("t", hash);
      link.href = u.toString();
    });
    return Promise.resolve();
  }

  function apply(msg) {
    var js = [], css = [];
    (msg.modules || []).forEach(function (m) { (m.kind === "css" ? css : js).push(m.id); });
    for (var i = 0; i < js.length; i++) {
      if (!handlers[js[i]] || states[js[i]] === "failed") { reload("module " + js[i] + " is not accepted"); return; }
    }
    css.forEach(function (id) { swapStyle(id, msg.hash).catch(function (e) { console.error("[bundledev] style update failed", e); }); });
    var pending = js.map(function (id) {
      states[id] = "applying";
      return import(moduleURL(id, msg.hash)).then(function (mod) {
        handlers[id](mod);
        states[id] = "registered";
      }).catch(function (err) {
        states[id] = "failed";
        console.error("[bundledev] update handler for " + id + " failed", err);
        throw err;
      });
    });
    Promise.all(pending).then(function () {
      if (js.length || css.length) console.log("[bundledev] updated " + js.concat(css).join(", "));
    }, function () { reload("update handler failed"); });
  }

  function onMessage(data) {
    var msg;
    try { msg = JSON.parse(data); } catch (_) { return; }
    switch (msg.type) {
      case "hash":
        if (current !== null && msg.hash && msg.hash !== current) { reload("missed updates while disconnected"); return; }
        current = msg.hash || current;
        break;
      case "update":
        current = msg.hash;
        apply(msg);
        break;
      case "error":
        console.error("[bundledev] compile failed:\n" + (msg.errors || []).join("\n"));
        break;
      case "reload":
        reload("reload requested");
        break;
    }
  }

  function connect() {
    var es = new EventSource(endpoint);
    es.onmessage = function (e) { onMessage(e.data); };
    es.onerror = function () { es.close(); setTimeout(connect, 2000); };
  }

  window.__bundledev_hot = {
    accept: function (id, fn) {
      if (typeof fn !== "function") throw new Error("accept(" + id + ") needs a function");
      handlers[id] = fn;
      states[id] = "registered";
    },
    state: function (id) { return states[id] || "unregistered"; }
  };
  connect();
})();
`
