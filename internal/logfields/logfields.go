package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyCompilationID = "compilation_id"
	KeyReason        = "reason"
	KeyHash          = "hash"
	KeyDurationMS    = "duration_ms"
	KeyModule        = "module"
	KeyPath          = "path"
	KeyMethod        = "method"
	KeyStatus        = "status"
	KeyClients       = "clients"
	KeyPort          = "port"
	KeyError         = "error"
	KeyUserAgent     = "user_agent"
	KeyRemoteAddr    = "remote_addr"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func CompilationID(id string) slog.Attr { return slog.String(KeyCompilationID, id) }
func Reason(r string) slog.Attr         { return slog.String(KeyReason, r) }
func Hash(h string) slog.Attr           { return slog.String(KeyHash, h) }
func Module(id string) slog.Attr        { return slog.String(KeyModule, id) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr         { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr         { return slog.Int(KeyStatus, code) }
func Clients(n int) slog.Attr           { return slog.Int(KeyClients, n) }
func Port(p int) slog.Attr              { return slog.Int(KeyPort, p) }
func UserAgent(ua string) slog.Attr     { return slog.String(KeyUserAgent, ua) }
func RemoteAddr(a string) slog.Attr     { return slog.String(KeyRemoteAddr, a) }

func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
