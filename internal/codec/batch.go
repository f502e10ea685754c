package codec

import (
	"errors"
	"fmt"

	"github.com/bexproto/bex/internal/constants"
	"github.com/bexproto/bex/internal/proc"
)

// Errors returned by Codec. The root package maps these onto the
// spec's error kinds (§7); they're kept as plain sentinels here so
// this package doesn't need to import the root package's Error type.
var (
	// ErrSetupMissing is returned by NewCodec when schema is nil —
	// a codec instance was constructed before Compile populated the
	// dispatch maps.
	ErrSetupMissing = errors.New("codec: schema not compiled")

	// ErrUnknownProcedure is returned by ReadBuffer when a decoded
	// procedure id has no compiled reader entry.
	ErrUnknownProcedure = errors.New("codec: unknown procedure id in batch")

	// ErrBufferTooSmall is returned when a region can't hold the
	// configured channel size, and by Call/CallInstance when the next
	// call does not fit in the rest of the bound write region (batch
	// full).
	ErrBufferTooSmall = errors.New("codec: region smaller than channel size")

	// ErrArgCount / ErrArgKind flag a caller passing arguments that
	// don't match the compiled procedure's declared signature.
	ErrArgCount = errors.New("codec: wrong argument count for procedure")
	ErrArgKind  = errors.New("codec: argument kind mismatch for procedure")

	// ErrNoWriter is returned when Call/CallInstance names a procedure
	// this endpoint has no compiled writer for (e.g. wrong endpoint, or
	// the procedure is actually received here, not sent).
	ErrNoWriter = errors.New("codec: no compiled writer for procedure")
)

// HandlerFunc dispatches a non-instanced procedure call.
type HandlerFunc func(args []Value) error

// InstanceHandlerFunc dispatches an instanced procedure call; instanceID
// is the wire-encoded id selecting an element from the named registry.
type InstanceHandlerFunc func(instanceID int32, args []Value) error

// Codec is the runtime batch encoder/decoder of spec §4.4: one bound
// write region and one bound read region, each with its own cursor,
// plus the dispatch tables a consumer registers handlers into.
type Codec struct {
	schema      *Schema
	channelSize int

	write     cells
	writePos  int
	read      cells
	readPos   int

	directHandlers   map[string]HandlerFunc
	instanceHandlers map[string]InstanceHandlerFunc
}

// NewCodec constructs a Codec bound to schema. channelSize is the batch
// capacity in 32-bit cells; 0 selects the spec default (32*1024).
func NewCodec(schema *Schema, channelSize int) (*Codec, error) {
	if schema == nil {
		return nil, ErrSetupMissing
	}
	if channelSize <= 0 {
		channelSize = constants.DefaultChannelSize
	}
	return &Codec{
		schema:           schema,
		channelSize:      channelSize,
		directHandlers:   make(map[string]HandlerFunc),
		instanceHandlers: make(map[string]InstanceHandlerFunc),
	}, nil
}

// RequiredBufferSize is channelSize*4 bytes — the region size an
// Exchange must allocate for buffers used with this Codec.
func (c *Codec) RequiredBufferSize() int { return c.channelSize * constants.CellSize }

// BindHandler registers the handler for a non-instanced procedure this
// endpoint receives. This is the "direct mode" target of spec §4.3.
func (c *Codec) BindHandler(name string, h HandlerFunc) {
	c.directHandlers[name] = h
}

// BindInstanceHandler registers the handler for an instanced procedure
// this endpoint receives, for the given (instance registry name,
// procedure name) pair.
func (c *Codec) BindInstanceHandler(instance, name string, h InstanceHandlerFunc) {
	c.instanceHandlers[instance+"."+name] = h
}

// WriteBuffer binds region as the write target, resets the write cursor
// to 1, and zeroes the call count cell (spec §4.4).
func (c *Codec) WriteBuffer(region []byte) error {
	if len(region) < c.RequiredBufferSize() {
		return fmt.Errorf("%w: have %d want %d", ErrBufferTooSmall, len(region), c.RequiredBufferSize())
	}
	c.write = cells(region)
	c.writePos = constants.FirstCallCell
	c.write.putInt(constants.CallCountCell, 0)
	return nil
}

// ReadBuffer binds region as the read target, resets the read cursor to
// 1, and dispatches every encoded call in order (spec §4.4, §5 ordering
// guarantee). After the loop the call count cell is reset to 0.
func (c *Codec) ReadBuffer(region []byte) error {
	if len(region) < c.RequiredBufferSize() {
		return fmt.Errorf("%w: have %d want %d", ErrBufferTooSmall, len(region), c.RequiredBufferSize())
	}
	c.read = cells(region)
	c.readPos = constants.FirstCallCell

	n := c.read.getInt(constants.CallCountCell)
	for i := int32(0); i < n; i++ {
		id := c.read.getInt(c.readPos)
		c.readPos++
		sp, ok := c.schema.readers[id]
		if !ok {
			return fmt.Errorf("%w: id=%d", ErrUnknownProcedure, id)
		}
		if err := c.dispatch(sp); err != nil {
			return err
		}
	}
	c.read.putInt(constants.CallCountCell, 0)
	return nil
}

// InputLength and OutputLength expose the call count cell of the bound
// read/write regions.
func (c *Codec) InputLength() int32 {
	if c.read == nil {
		return 0
	}
	return c.read.getInt(constants.CallCountCell)
}

func (c *Codec) OutputLength() int32 {
	if c.write == nil {
		return 0
	}
	return c.write.getInt(constants.CallCountCell)
}

// WritePos and ReadPos expose the cursor positions (cells) for tests of
// spec §8 property 4 (position reset).
func (c *Codec) WritePos() int { return c.writePos }
func (c *Codec) ReadPos() int  { return c.readPos }

// Call invokes the compiled writer for a non-instanced procedure.
func (c *Codec) Call(name string, args ...Value) error {
	return c.call(name, 0, args)
}

// CallInstance invokes the compiled writer for an instanced procedure
// under the named instance registry.
func (c *Codec) CallInstance(instance string, instanceID int32, name string, args ...Value) error {
	key := instance + "$" + name
	return c.call(key, instanceID, args)
}

func (c *Codec) call(key string, instanceID int32, args []Value) error {
	sp, ok := c.schema.writers[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoWriter, key)
	}
	if err := c.validateArgs(sp, args); err != nil {
		return err
	}
	return c.writeCall(sp, instanceID, args)
}

func (c *Codec) validateArgs(sp *spec, args []Value) error {
	if len(args) != len(sp.Args) {
		return fmt.Errorf("%w: %s wants %d, got %d", ErrArgCount, sp.Name, len(sp.Args), len(args))
	}
	for i, want := range sp.Args {
		if !args[i].matches(want) {
			return fmt.Errorf("%w: %s arg %d wants %s, got %s", ErrArgKind, sp.Name, i, want, args[i].Kind)
		}
	}
	return nil
}

// writeCall implements spec §4.3's writer closure body: proc id, then
// STR args in declaration order (advancing the shared cursor), then the
// instance id if applicable, then every non-STR arg in declaration
// order.
func (c *Codec) writeCall(sp *spec, instanceID int32, args []Value) error {
	pos := c.writePos
	need := 1
	for i, kind := range sp.Args {
		if kind == proc.String {
			need += 1 + len([]rune(args[i].S))
		} else {
			need++
		}
	}
	if sp.instanced() {
		need++
	}
	if pos+need > c.write.len32() {
		return fmt.Errorf("%w: batch full", ErrBufferTooSmall)
	}

	c.write.putInt(pos, sp.ID)
	pos++

	for i, kind := range sp.Args {
		if kind != proc.String {
			continue
		}
		pos = c.writeString(pos, args[i].S)
	}

	if sp.instanced() {
		c.write.putInt(pos, instanceID)
		pos++
	}

	for i, kind := range sp.Args {
		switch kind {
		case proc.Int:
			c.write.putInt(pos, args[i].I)
			pos++
		case proc.Float:
			c.write.putFloat(pos, args[i].F)
			pos++
		}
	}

	c.writePos = pos
	c.write.putInt(constants.CallCountCell, c.write.getInt(constants.CallCountCell)+1)
	return nil
}

// dispatch implements spec §4.3's reader closure body, mirroring
// writeCall's field order.
func (c *Codec) dispatch(sp *spec) error {
	args := make([]Value, len(sp.Args))

	for i, kind := range sp.Args {
		if kind != proc.String {
			continue
		}
		args[i] = Str(c.readString())
	}

	var instanceID int32
	if sp.instanced() {
		instanceID = c.read.getInt(c.readPos)
		c.readPos++
	}

	for i, kind := range sp.Args {
		switch kind {
		case proc.Int:
			args[i] = Int(c.read.getInt(c.readPos))
			c.readPos++
		case proc.Float:
			args[i] = Float(c.read.getFloat(c.readPos))
			c.readPos++
		}
	}

	if sp.instanced() {
		key := sp.Instance + "." + sp.Name
		h, ok := c.instanceHandlers[key]
		if !ok {
			return nil
		}
		return h(instanceID, args)
	}

	h, ok := c.directHandlers[sp.Name]
	if !ok {
		return nil
	}
	return h(args)
}

// writeString implements spec §4.5: length cell, then one cell per
// code unit (a rune, here — Go strings are UTF-8, so "code unit" at
// this wire layer means one decoded rune per 32-bit cell).
func (c *Codec) writeString(pos int, s string) int {
	runes := []rune(s)
	c.write.putInt(pos, int32(len(runes)))
	pos++
	for _, r := range runes {
		c.write.putInt(pos, int32(r))
		pos++
	}
	return pos
}

func (c *Codec) readString() string {
	n := c.read.getInt(c.readPos)
	c.readPos++
	runes := make([]rune, n)
	for i := range runes {
		runes[i] = rune(c.read.getInt(c.readPos))
		c.readPos++
	}
	return string(runes)
}
