package registry

import "strings"

// Source yields the modules visible to discovery.
type Source interface {
	Modules() []Module
}

// Manifest is a static Source built from explicit module registrations.
type Manifest []Module

// Modules implements Source.
func (m Manifest) Modules() []Module {
	return m
}

type prefixSource struct {
	src      Source
	prefixes []string
}

// WithPrefixes restricts src to modules whose path begins with one of the
// approved prefixes. No prefixes means no restriction.
func WithPrefixes(src Source, prefixes ...string) Source {
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return prefixSource{src: src, prefixes: cleaned}
}

func (s prefixSource) Modules() []Module {
	all := s.src.Modules()
	if len(s.prefixes) == 0 {
		return all
	}
	out := make([]Module, 0, len(all))
	for _, m := range all {
		for _, p := range s.prefixes {
			if strings.HasPrefix(m.Path, p) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
