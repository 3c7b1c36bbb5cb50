package sack

import (
	"slices"
	"strconv"
	"strings"
)

// RelationKind names a dependency relation table.
type RelationKind string

// Relation kinds stored in an index.
const (
	Provides    RelationKind = "provides"
	Requires    RelationKind = "requires"
	Conflicts   RelationKind = "conflicts"
	Obsoletes   RelationKind = "obsoletes"
	Recommends  RelationKind = "recommends"
	Suggests    RelationKind = "suggests"
	Supplements RelationKind = "supplements"
	Enhances    RelationKind = "enhances"
)

// RelationKinds lists every kind in metadata order.
var RelationKinds = []RelationKind{Provides, Requires, Conflicts, Obsoletes, Recommends, Suggests, Supplements, Enhances}

// ParseRelationKind maps a lower-case kind name onto a RelationKind.
func ParseRelationKind(s string) (RelationKind, bool) {
	k := RelationKind(s)
	return k, slices.Contains(RelationKinds, k)
}

// Relation is one dependency entry.
type Relation struct {
	Name    string
	Flags   string // EQ, LT, LE, GT, GE or empty
	Epoch   string
	Version string
	Release string
}

var flagOperators = map[string]string{
	"EQ": "=",
	"LT": "<",
	"LE": "<=",
	"GT": ">",
	"GE": ">=",
}

// String renders the relation the way rpm tools print it: "name" or
// "name OP [epoch:]version[-release]".
func (r Relation) String() string {
	op, ok := flagOperators[strings.ToUpper(r.Flags)]
	if !ok || r.Version == "" {
		return r.Name
	}

	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteByte(' ')
	b.WriteString(op)
	b.WriteByte(' ')
	if e, err := strconv.Atoi(r.Epoch); err == nil && e > 0 {
		b.WriteString(r.Epoch)
		b.WriteByte(':')
	}
	b.WriteString(r.Version)
	if r.Release != "" {
		b.WriteByte('-')
		b.WriteString(r.Release)
	}
	return b.String()
}
