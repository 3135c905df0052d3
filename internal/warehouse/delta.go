package warehouse

import "github.com/roach88/filesync/internal/sqlgen"

// ColumnBag is a multiset of canonical column names that remembers the order
// names first appeared in.
type ColumnBag struct {
	order  []string
	counts map[string]int
}

// NewColumnBag builds a bag from names, canonicalizing each.
func NewColumnBag(names []string) ColumnBag {
	b := ColumnBag{counts: make(map[string]int)}
	for _, n := range names {
		c := sqlgen.Canonical(n)
		if b.counts[c] == 0 {
			b.order = append(b.order, c)
		}
		b.counts[c]++
	}
	return b
}

// Count returns how many times name occurs.
func (b ColumnBag) Count(name string) int {
	return b.counts[sqlgen.Canonical(name)]
}

// Len returns the total number of names, counting repeats.
func (b ColumnBag) Len() int {
	n := 0
	for _, c := range b.counts {
		n += c
	}
	return n
}

// Subtract returns every name whose count in b exceeds its count in other,
// repeated by the surplus, in b's first-appearance order.
func (b ColumnBag) Subtract(other ColumnBag) []string {
	var out []string
	for _, name := range b.order {
		for i := other.counts[name]; i < b.counts[name]; i++ {
			out = append(out, name)
		}
	}
	return out
}

// Elements lists the bag's names with repeats, in first-appearance order.
func (b ColumnBag) Elements() []string {
	return b.Subtract(ColumnBag{})
}

// ComputeSchemaDelta returns the columns target lacks to hold staging: the
// multiset difference staging minus target.
func ComputeSchemaDelta(staging, target []string) []string {
	return NewColumnBag(staging).Subtract(NewColumnBag(target))
}
