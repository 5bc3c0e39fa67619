package testutil

import "fmt"

// SequentialIDs generates predictable run identifiers: prefix-1, prefix-2...
//
// It stands in for the UUIDv7 generator so history rows and snapshot file
// names are stable in tests.
type SequentialIDs struct {
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix defaults to "run".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialIDs{prefix: prefix}
}

// NewID returns the next identifier.
func (g *SequentialIDs) NewID() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
