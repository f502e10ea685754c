package codec

import (
	"fmt"

	"github.com/bexproto/bex/internal/proc"
)

// Value is a tagged argument value: exactly one of I, F, S is
// meaningful, selected by Kind. Callers build Values with Int/Float/Str
// and read them back with the As* accessors.
type Value struct {
	Kind proc.ArgKind
	I    int32
	F    float32
	S    string
}

func Int(v int32) Value     { return Value{Kind: proc.Int, I: v} }
func Float(v float32) Value { return Value{Kind: proc.Float, F: v} }
func Str(v string) Value    { return Value{Kind: proc.String, S: v} }

// AsInt returns v.I, panicking if v is not an Int value. Handlers know
// the declared kind at each argument position from the procedure table,
// so this is a programmer-error check, not a runtime data check.
func (v Value) AsInt() int32 {
	if v.Kind != proc.Int {
		panic(fmt.Sprintf("codec: AsInt on %s value", v.Kind))
	}
	return v.I
}

func (v Value) AsFloat() float32 {
	if v.Kind != proc.Float {
		panic(fmt.Sprintf("codec: AsFloat on %s value", v.Kind))
	}
	return v.F
}

func (v Value) AsStr() string {
	if v.Kind != proc.String {
		panic(fmt.Sprintf("codec: AsStr on %s value", v.Kind))
	}
	return v.S
}

// matches reports whether v's kind agrees with want.
func (v Value) matches(want proc.ArgKind) bool { return v.Kind == want }
