// Package codec implements the codec compiler and batch runtime of
// spec §4.3-§4.5: at endpoint setup it compiles a procedure table into
// per-procedure vtable entries (proc id, ordered ArgKind tags, instance
// flag), then a runtime Codec walks those entries to encode and decode
// batches of calls over a pair of raw buffer regions.
//
// Instead of generating and evaluating a closure per procedure, this
// package compiles each procedure into a data-only vtable entry (*spec:
// id, ArgKind tags, instance name) and uses one generic encode routine
// and one generic decode routine that walk those tags per call.
package codec

import (
	"fmt"

	"github.com/bexproto/bex/internal/proc"
)

// spec is the compiled vtable entry for one procedure (§4.3).
type spec struct {
	ID       int32
	Name     string
	Args     []proc.ArgKind
	Instance string // "" if not instanced
}

func (s *spec) instanced() bool { return s.Instance != "" }

// Schema is the result of compiling a procedure table for one named
// endpoint: a map of writer specs (procedures this endpoint encodes)
// keyed by proc.Entry.WriterKey, and a map of reader specs (procedures
// this endpoint decodes) keyed by numeric procedure id.
type Schema struct {
	table Table
	local string

	writers map[string]*spec
	readers map[int32]*spec
}

// Table is re-exported so callers don't need a second import for the
// type they pass to Compile.
type Table = proc.Table

// Compile builds a Schema for the endpoint named local. The table must
// be identical (order and content) on both endpoints; Compile only
// validates the local copy, per spec §3.3's invariant that mismatch
// across endpoints is undefined.
func Compile(table Table, local string) (*Schema, error) {
	if local == "" {
		return nil, fmt.Errorf("codec: local endpoint name must not be empty")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}

	s := &Schema{
		table:   table,
		local:   local,
		writers: make(map[string]*spec),
		readers: make(map[int32]*spec),
	}

	for i, entry := range table {
		id := table.ID(i)
		sp := &spec{ID: id, Name: entry.Name, Args: entry.Args, Instance: entry.Instance}

		if entry.Endpoint != local {
			// The opposite endpoint executes it, so local encodes it.
			key := entry.WriterKey()
			if _, dup := s.writers[key]; dup {
				return nil, fmt.Errorf("codec: duplicate writer key %q", key)
			}
			s.writers[key] = sp
			continue
		}

		// local is the endpoint named as the executor: it decodes and
		// dispatches this procedure.
		s.readers[id] = sp
	}

	return s, nil
}

// NumWriters and NumReaders are mainly useful for tests and diagnostics.
func (s *Schema) NumWriters() int { return len(s.writers) }
func (s *Schema) NumReaders() int { return len(s.readers) }
