// Package hmr implements hot module replacement: the notification protocol
// pushed to browsers, the server-side broadcast hub, the update acceptance
// runtime and the browser client script that mirrors it.
package hmr

import (
	"encoding/json"
	"fmt"
)

// Well-known endpoints served by the development server.
const (
	EndpointPath   = "/__hmr"
	WebSocketPath  = "/__hmr/ws"
	ClientPath     = "/__hmr/client.js"
	ModulePathBase = "/__hmr/module/"
)

// Type discriminates notifications.
type Type string

const (
	// TypeHash announces the current output hash without changes (sent on connect).
	TypeHash Type = "hash"
	// TypeUpdate lists modules whose compiled content changed.
	TypeUpdate Type = "update"
	// TypeError reports a failed compile. The previous output keeps being served.
	TypeError Type = "error"
	// TypeReload asks clients to reload the page.
	TypeReload Type = "reload"
)

// Kind tells the client how a changed module is applied.
type Kind string

const (
	KindJS  Kind = "js"
	KindCSS Kind = "css"
)

// ModuleUpdate names a changed module.
type ModuleUpdate struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
}

// Notification is the message pushed to connected clients.
type Notification struct {
	Type    Type           `json:"type"`
	Hash    string         `json:"hash,omitempty"`
	Modules []ModuleUpdate `json:"modules,omitempty"`
	Errors  []string       `json:"errors,omitempty"`
}

// HashNotification announces hash without any change.
func HashNotification(hash string) Notification {
	return Notification{Type: TypeHash, Hash: hash}
}

// UpdateNotification lists changed modules for the compile identified by hash.
func UpdateNotification(hash string, modules []ModuleUpdate) Notification {
	return Notification{Type: TypeUpdate, Hash: hash, Modules: modules}
}

// ErrorNotification reports compile errors.
func ErrorNotification(errs []string) Notification {
	return Notification{Type: TypeError, Errors: errs}
}

// ReloadNotification asks every client to reload.
func ReloadNotification(hash string) Notification {
	return Notification{Type: TypeReload, Hash: hash}
}

// Encode renders the wire form.
func (n Notification) Encode() ([]byte, error) {
	return json.Marshal(n)
}

// Decode parses the wire form.
func Decode(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	switch n.Type {
	case TypeHash, TypeUpdate, TypeError, TypeReload:
	default:
		return Notification{}, fmt.Errorf("decode notification: unknown type %q", n.Type)
	}
	return n, nil
}
