// Package proc declares the procedure table that drives the codec
// compiler (spec §3.3): an ordered, shared description of callable
// procedures, their parameter kinds, optional instance scoping, and
// which endpoint executes each one.
package proc

import "fmt"

// ArgKind is the wire type of one procedure parameter. Only three
// primitive kinds are supported (spec §1 non-goals exclude generic
// argument types).
type ArgKind uint8

const (
	Int ArgKind = iota
	Float
	String
)

func (k ArgKind) String() string {
	switch k {
	case Int:
		return "INT"
	case Float:
		return "FLOAT"
	case String:
		return "STR"
	default:
		return fmt.Sprintf("ArgKind(%d)", uint8(k))
	}
}

// Entry describes one callable procedure.
type Entry struct {
	// Name is the procedure identifier. Must be unique per
	// (Instance, Endpoint) pair within a Table.
	Name string

	// Args is the ordered list of parameter kinds.
	Args []ArgKind

	// Instance, when non-empty, names the registry on the receiving
	// side that the wire-encoded instance id selects into. Empty means
	// the procedure is not instanced.
	Instance string

	// Endpoint names the endpoint that receives and executes this
	// procedure; the opposite endpoint encodes (writes) it.
	Endpoint string
}

// Table is an ordered procedure list. A procedure's id is its 1-based
// index; id 0 is reserved for the batch's call-count cell.
type Table []Entry

// ID returns the 1-based procedure id for the entry at index i.
func (t Table) ID(i int) int32 { return int32(i + 1) }

// ByID returns the entry with the given 1-based id.
func (t Table) ByID(id int32) (Entry, bool) {
	i := int(id) - 1
	if i < 0 || i >= len(t) {
		return Entry{}, false
	}
	return t[i], true
}

// Validate checks the table's internal invariants: no duplicate name
// within a (instance, endpoint) pair, and every Args entry is a known
// ArgKind.
func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t))
	for i, e := range t {
		if e.Name == "" {
			return fmt.Errorf("proc: entry %d has empty name", i)
		}
		if e.Endpoint == "" {
			return fmt.Errorf("proc: entry %q has no endpoint", e.Name)
		}
		key := e.Instance + "\x00" + e.Name + "\x00" + e.Endpoint
		if _, dup := seen[key]; dup {
			return fmt.Errorf("proc: duplicate procedure %q for instance %q / endpoint %q", e.Name, e.Instance, e.Endpoint)
		}
		seen[key] = struct{}{}
		for j, k := range e.Args {
			if k != Int && k != Float && k != String {
				return fmt.Errorf("proc: entry %q arg %d has unknown kind %d", e.Name, j, k)
			}
		}
	}
	return nil
}

// WriterKey returns the key a compiler uses to look up the writer for
// an entry: "instance$name" when instanced, otherwise just "name".
func (e Entry) WriterKey() string {
	if e.Instance != "" {
		return e.Instance + "$" + e.Name
	}
	return e.Name
}
