package normalization

import (
	"sort"
	"strings"
)

// Normalizer maps free-form configuration strings onto a closed set of enum
// values. Keys are compared after trimming and lower-casing.
type Normalizer[T comparable] struct {
	validValues map[string]T
	validKeys   []string // sorted, for error messages
	clean       Func
}

// Func allows custom normalization behavior.
type Func func(string) string

// NewNormalizer creates a normalizer with a map of accepted spellings.
func NewNormalizer[T comparable](values map[string]T) *Normalizer[T] {
	return WithCustomNormalizer(values, defaultNormalization)
}

// WithCustomNormalizer is NewNormalizer with a caller-supplied key cleaner.
func WithCustomNormalizer[T comparable](values map[string]T, clean Func) *Normalizer[T] {
	n := &Normalizer[T]{
		validValues: make(map[string]T, len(values)),
		validKeys:   make([]string, 0, len(values)),
		clean:       clean,
	}
	for k, v := range values {
		key := clean(k)
		n.validValues[key] = v
		n.validKeys = append(n.validKeys, key)
	}
	sort.Strings(n.validKeys)
	return n
}

// Lookup returns the enum value for raw and whether it was recognized.
func (n *Normalizer[T]) Lookup(raw string) (T, bool) {
	v, ok := n.validValues[n.clean(raw)]
	return v, ok
}

// Clean applies the key normalization without looking anything up.
func (n *Normalizer[T]) Clean(raw string) string {
	return n.clean(raw)
}

// ValidKeys returns all accepted spellings, sorted.
func (n *Normalizer[T]) ValidKeys() []string {
	out := make([]string, len(n.validKeys))
	copy(out, n.validKeys)
	return out
}

func defaultNormalization(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
