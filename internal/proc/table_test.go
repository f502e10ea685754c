package proc

import "testing"

func TestTableValidateDetectsDuplicate(t *testing.T) {
	table := Table{
		{Name: "add", Args: []ArgKind{Int, Int}, Endpoint: "worker"},
		{Name: "add", Args: []ArgKind{Int, Int}, Endpoint: "worker"},
	}
	if err := table.Validate(); err == nil {
		t.Fatal("expected duplicate procedure to fail validation")
	}
}

func TestTableValidateAllowsSameNameDifferentInstance(t *testing.T) {
	table := Table{
		{Name: "tick", Args: []ArgKind{Int}, Instance: "ents", Endpoint: "worker"},
		{Name: "tick", Args: []ArgKind{Int}, Instance: "sounds", Endpoint: "worker"},
	}
	if err := table.Validate(); err != nil {
		t.Fatalf("expected distinct instances to validate, got: %v", err)
	}
}

func TestTableValidateRejectsEmptyEndpoint(t *testing.T) {
	table := Table{{Name: "add", Args: []ArgKind{Int}, Endpoint: ""}}
	if err := table.Validate(); err == nil {
		t.Fatal("expected missing endpoint to fail validation")
	}
}

func TestTableIDIsOneBased(t *testing.T) {
	table := Table{
		{Name: "add", Endpoint: "worker"},
		{Name: "sub", Endpoint: "worker"},
	}
	if got := table.ID(0); got != 1 {
		t.Errorf("ID(0) = %d, want 1", got)
	}
	if got := table.ID(1); got != 2 {
		t.Errorf("ID(1) = %d, want 2", got)
	}

	entry, ok := table.ByID(2)
	if !ok || entry.Name != "sub" {
		t.Errorf("ByID(2) = %+v, %v; want sub entry", entry, ok)
	}

	if _, ok := table.ByID(0); ok {
		t.Error("ByID(0) should miss: id 0 is reserved")
	}
}

func TestWriterKey(t *testing.T) {
	plain := Entry{Name: "add"}
	if got := plain.WriterKey(); got != "add" {
		t.Errorf("WriterKey() = %q, want %q", got, "add")
	}

	instanced := Entry{Name: "tick", Instance: "ents"}
	if got := instanced.WriterKey(); got != "ents$tick" {
		t.Errorf("WriterKey() = %q, want %q", got, "ents$tick")
	}
}
