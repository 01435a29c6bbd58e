package compiler

import (
	"encoding/hex"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"git.home.luguber.info/inful/bundledev/internal/plugin"
)

// Compilation is the outcome of one compile cycle.
type Compilation struct {
	ID        string               `json:"id"`
	Reason    string               `json:"reason"`
	Hash      string               `json:"hash,omitempty"`
	StartedAt time.Time            `json:"startedAt"`
	Duration  time.Duration        `json:"duration"`
	Entries   []plugin.EntryAssets `json:"entries,omitempty"`
	Artifacts []Artifact           `json:"artifacts,omitempty"`
	Modules   []string             `json:"modules,omitempty"`
	Changed   []Module             `json:"changed,omitempty"`
	Errors    []Diagnostic         `json:"errors,omitempty"`
	Warnings  []Diagnostic         `json:"warnings,omitempty"`
}

// Failed reports whether the compile produced errors. A failed compilation
// carries no artifacts.
func (c *Compilation) Failed() bool {
	return c != nil && len(c.Errors) > 0
}

// ChangedIDs returns the ids of the changed modules.
func (c *Compilation) ChangedIDs() []string {
	ids := make([]string, 0, len(c.Changed))
	for _, m := range c.Changed {
		ids = append(ids, m.ID)
	}
	return ids
}

// HasModule reports whether id took part in the compilation.
func (c *Compilation) HasModule(id string) bool {
	i := sort.SearchStrings(c.Modules, id)
	return i < len(c.Modules) && c.Modules[i] == id
}

// Lookup finds an artifact by its output-root relative path.
func (c *Compilation) Lookup(name string) (Artifact, bool) {
	i := sort.Search(len(c.Artifacts), func(i int) bool { return c.Artifacts[i].Path >= name })
	if i < len(c.Artifacts) && c.Artifacts[i].Path == name {
		return c.Artifacts[i], true
	}
	return Artifact{}, false
}

// Artifact describes one output file.
type Artifact struct {
	Path string `json:"path"` // relative to the output root, slash-separated
	Size int    `json:"size"`
	Hash string `json:"hash"`
}

// Module names a source module whose content changed between compiles.
type Module struct {
	ID   string `json:"id"`
	Kind string `json:"kind"` // "js" or "css"
}

// ModuleKind classifies a module id by extension.
func ModuleKind(id string) string {
	switch strings.ToLower(path.Ext(id)) {
	case ".css", ".scss", ".sass", ".less":
		return "css"
	default:
		return "js"
	}
}

func hashBytes(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// snapshot hashes the named files of fs. The compilation hash covers the
// sorted set of paths and contents, so identical output hashes identically.
func snapshot(fs afero.Fs, names []string) ([]Artifact, string, error) {
	names = uniqueSorted(names)
	artifacts := make([]Artifact, 0, len(names))
	h := blake3.New()
	for _, name := range names {
		data, err := afero.ReadFile(fs, name)
		if err != nil {
			return nil, "", err
		}
		artifacts = append(artifacts, Artifact{Path: name, Size: len(data), Hash: hashBytes(data)})
		_, _ = h.Write([]byte(name))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(data)
		_, _ = h.Write([]byte{0})
	}
	return artifacts, hex.EncodeToString(h.Sum(nil))[:20], nil
}

// fingerprint hashes each input module's source. Hashes present in known are
// taken as is instead of reading the file again.
func fingerprint(workDir string, ids []string, known map[string]string) map[string]string {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if sum, ok := known[id]; ok {
			out[id] = sum
			continue
		}
		data, err := readInput(workDir, id)
		if err != nil {
			continue
		}
		out[id] = hashBytes(data)
	}
	return out
}

// changedModules lists the modules whose fingerprint differs from prev. With
// no previous fingerprint nothing counts as changed.
func changedModules(prev, cur map[string]string) []Module {
	if prev == nil {
		return nil
	}
	var out []Module
	for id, sum := range cur {
		if old, ok := prev[id]; ok && old == sum {
			continue
		}
		out = append(out, Module{ID: id, Kind: ModuleKind(id)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func uniqueSorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	j := 0
	for i, s := range out {
		if i > 0 && s == out[j-1] {
			continue
		}
		out[j] = s
		j++
	}
	return out[:j]
}
