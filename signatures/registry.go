package signatures

import (
	"fmt"
	"strings"
)

// Registry is an immutable, ordered catalog. Iteration order is the tie-break
// when several signatures match at one offset.
type Registry struct {
	signatures  []Signature
	byTag       map[string][]int
	byExtension map[string][]string
	longest     int
}

func NewRegistry(sigs ...Signature) (*Registry, error) {
	registry := &Registry{
		byTag:       make(map[string][]int),
		byExtension: make(map[string][]string),
	}
	for _, sig := range sigs {
		if err := sig.Validate(); err != nil {
			return nil, err
		}
		idx := len(registry.signatures)
		registry.signatures = append(registry.signatures, sig)
		if _, ok := registry.byTag[sig.Tag]; !ok {
			for _, ext := range sig.Extensions {
				ext = NormalizeExtension(ext)
				registry.byExtension[ext] = appendUnique(registry.byExtension[ext], sig.Tag)
			}
		}
		registry.byTag[sig.Tag] = append(registry.byTag[sig.Tag], idx)
		registry.longest = max(registry.longest, sig.Span())
	}
	if len(registry.signatures) == 0 {
		return nil, fmt.Errorf("%w: empty registry", ErrInvalidSignature)
	}
	return registry, nil
}

func MustRegistry(sigs ...Signature) *Registry {
	registry, err := NewRegistry(sigs...)
	if err != nil {
		panic(err)
	}
	return registry
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}

// NormalizeExtension lower cases and strips the leading dot.
func NormalizeExtension(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

func (registry *Registry) Lookup(tag string) ([]Signature, bool) {
	idxs, ok := registry.byTag[tag]
	if !ok {
		return nil, false
	}
	sigs := make([]Signature, len(idxs))
	for pos, idx := range idxs {
		sigs[pos] = registry.signatures[idx]
	}
	return sigs, true
}

func (registry *Registry) All() []Signature {
	return append([]Signature(nil), registry.signatures...)
}

func (registry *Registry) Len() int {
	return len(registry.signatures)
}

func (registry *Registry) Tags() []string {
	var tags []string
	for _, sig := range registry.signatures {
		tags = appendUnique(tags, sig.Tag)
	}
	return tags
}

func (registry *Registry) TagsForExtension(ext string) []string {
	return registry.byExtension[NormalizeExtension(ext)]
}

// TagsForExtensions returns the tags implied by the extensions in registry order.
func (registry *Registry) TagsForExtensions(exts []string) []string {
	wanted := make(map[string]bool)
	for _, ext := range exts {
		for _, tag := range registry.TagsForExtension(ext) {
			wanted[tag] = true
		}
	}
	var tags []string
	for _, tag := range registry.Tags() {
		if wanted[tag] {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (registry *Registry) Extensions(tag string) []string {
	idxs, ok := registry.byTag[tag]
	if !ok {
		return nil
	}
	return registry.signatures[idxs[0]].Extensions
}

func (registry *Registry) Extension(tag string) string {
	idxs, ok := registry.byTag[tag]
	if !ok {
		return "bin"
	}
	return registry.signatures[idxs[0]].Extension()
}

// LongestHeader is the widest span any header test needs.
func (registry *Registry) LongestHeader() int {
	return registry.longest
}

// Subset keeps the signatures of the given tags in registry order.
func (registry *Registry) Subset(tags []string) (*Registry, error) {
	wanted := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if _, ok := registry.byTag[tag]; !ok {
			return nil, fmt.Errorf("%w: unknown tag %s", ErrInvalidSignature, tag)
		}
		wanted[tag] = true
	}
	var sigs []Signature
	for _, sig := range registry.signatures {
		if wanted[sig.Tag] {
			sigs = append(sigs, sig)
		}
	}
	return NewRegistry(sigs...)
}

// Capped lowers every MaxSize above limit to limit, carving then never produces a
// candidate longer than limit.
func (registry *Registry) Capped(limit int64) (*Registry, error) {
	if limit <= 0 {
		return registry, nil
	}
	sigs := make([]Signature, 0, len(registry.signatures))
	for _, sig := range registry.signatures {
		if sig.MinSize > limit {
			return nil, fmt.Errorf("%w: %s needs at least %d bytes, limit %d", ErrInvalidSignature, sig.Tag, sig.MinSize, limit)
		}
		sig.MaxSize = min(sig.MaxSize, limit)
		sigs = append(sigs, sig)
	}
	return NewRegistry(sigs...)
}

// LargestMinSize is the biggest minimum size among the signatures of tags, all when tags is empty.
func (registry *Registry) LargestMinSize(tags []string) (int64, string) {
	var largest int64
	var largestTag string
	for _, sig := range registry.signatures {
		if len(tags) > 0 && !contains(tags, sig.Tag) {
			continue
		}
		if sig.MinSize > largest {
			largest, largestTag = sig.MinSize, sig.Tag
		}
	}
	return largest, largestTag
}

func contains(values []string, value string) bool {
	for _, existing := range values {
		if existing == value {
			return true
		}
	}
	return false
}
