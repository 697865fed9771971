package eval

// orderedSet accumulates strings, keeping first-occurrence order and
// dropping duplicates. Warnings, failure reasons, and missing-field lists
// all flow through it so dedup behaves identically everywhere.
type orderedSet struct {
	seen  map[string]bool
	items []string
}

func (s *orderedSet) Add(values ...string) {
	for _, v := range values {
		if s.seen[v] {
			continue
		}
		if s.seen == nil {
			s.seen = make(map[string]bool)
		}
		s.seen[v] = true
		s.items = append(s.items, v)
	}
}

// Items returns the accumulated values, never nil.
func (s *orderedSet) Items() []string {
	if s.items == nil {
		return []string{}
	}
	return s.items
}

// Dedupe returns values with duplicates removed, first occurrence wins.
func Dedupe(values []string) []string {
	var s orderedSet
	s.Add(values...)
	return s.Items()
}
