package zone

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrDecode is matched by every error returned from Decode.
var ErrDecode = errors.New("zone: decode error")

// DecodeError describes malformed zone bytes.
type DecodeError struct {
	ID     string
	Offset int // byte offset into the encoded zone
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("zone %s: decode at byte %d: %v", e.ID, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Tail kinds in the encoded form.
const (
	tailLast     byte = 0 // FixedTail with the last transition's offset
	tailFixed    byte = 1 // FixedTail with an explicit offset
	tailDaylight byte = 2 // DaylightTail
)

// Encode serialises z into its compact binary form:
//
//	uvarint  number of pooled offsets
//	varint   each pooled offset, in seconds
//	uvarint  pool index of the initial offset
//	uvarint  number of transitions
//	         each transition as varint delta to the previous instant
//	         (the first relative to zero) and uvarint pool index
//	byte     tail kind, followed by the tail payload
//
// The ID is not part of the encoding.
func Encode(z *Zone) ([]byte, error) {
	var (
		pool  []Offset
		index = make(map[Offset]uint64)
	)
	intern := func(o Offset) uint64 {
		if i, ok := index[o]; ok {
			return i
		}
		i := uint64(len(pool))
		pool = append(pool, o)
		index[o] = i
		return i
	}

	initial := intern(z.initial)
	types := make([]uint64, len(z.transitions))
	for i, t := range z.transitions {
		types[i] = intern(t.Offset)
	}

	b := binary.AppendUvarint(nil, uint64(len(pool)))
	for _, o := range pool {
		b = binary.AppendVarint(b, int64(o))
	}
	b = binary.AppendUvarint(b, initial)
	b = binary.AppendUvarint(b, uint64(len(z.transitions)))
	var prev int64
	for i, t := range z.transitions {
		b = binary.AppendVarint(b, t.At-prev)
		b = binary.AppendUvarint(b, types[i])
		prev = t.At
	}

	switch tail := z.tail.(type) {
	case FixedTail:
		last := z.initial
		if n := len(z.transitions); n > 0 {
			last = z.transitions[n-1].Offset
		}
		if tail.Offset == last {
			b = append(b, tailLast)
		} else {
			b = append(b, tailFixed)
			b = binary.AppendVarint(b, int64(tail.Offset))
		}
	case DaylightTail:
		b = append(b, tailDaylight)
		b = binary.AppendVarint(b, int64(tail.Standard))
		b = appendRecurrence(b, tail.Start)
		b = appendRecurrence(b, tail.End)
	default:
		return nil, fmt.Errorf("zone %s: unsupported tail %T", z.id, z.tail)
	}
	return b, nil
}

func appendRecurrence(b []byte, r Recurrence) []byte {
	b = binary.AppendVarint(b, int64(r.Savings))
	b = append(b, byte(r.Month))
	b = binary.AppendVarint(b, int64(r.Day))
	b = append(b, byte(r.Weekday+1))
	if r.Advance {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = binary.AppendVarint(b, int64(r.At))
	return append(b, byte(r.Mode))
}

// decoder reads varints from a byte slice and remembers the first error.
type decoder struct {
	id  string
	buf []byte
	pos int
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = &DecodeError{ID: d.id, Offset: d.pos, Err: fmt.Errorf(format, args...)}
	}
}

func (d *decoder) uvarint(what string) uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		d.fail("read %s: truncated or overflowing uvarint", what)
		return 0
	}
	d.pos += n
	return v
}

func (d *decoder) varint(what string) int64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.buf[d.pos:])
	if n <= 0 {
		d.fail("read %s: truncated or overflowing varint", what)
		return 0
	}
	d.pos += n
	return v
}

func (d *decoder) byte(what string) byte {
	if d.err != nil {
		return 0
	}
	if d.pos >= len(d.buf) {
		d.fail("read %s: unexpected end of data", what)
		return 0
	}
	v := d.buf[d.pos]
	d.pos++
	return v
}

func (d *decoder) offset(what string) Offset {
	v := d.varint(what)
	if d.err == nil && (v < -int64(MaxOffset) || v > int64(MaxOffset)) {
		d.fail("%s out of range: %d", what, v)
	}
	return Offset(v)
}

func (d *decoder) recurrence(what string) Recurrence {
	r := Recurrence{
		Savings: d.offset(what + " savings"),
		Month:   time.Month(d.byte(what + " month")),
		Day:     int(d.varint(what + " day")),
		Weekday: int(d.byte(what+" weekday")) - 1,
		Advance: d.byte(what+" advance") != 0,
	}
	at := d.varint(what + " time")
	if d.err == nil && (at < -maxRecurrenceAt || at > maxRecurrenceAt) {
		d.fail("%s time out of range: %d", what, at)
	}
	r.At = int32(at)
	r.Mode = Mode(d.byte(what + " mode"))
	if d.err == nil {
		if err := r.validate(); err != nil {
			d.fail("%s: %v", what, err)
		}
	}
	return r
}

// Decode parses bytes produced by Encode into a zone with the given ID.
// Any structural inconsistency yields an error matching ErrDecode; there
// is no partial result.
func Decode(id string, b []byte) (*Zone, error) {
	d := &decoder{id: id, buf: b}

	n := d.uvarint("offset pool size")
	if d.err == nil && n > uint64(len(b)) {
		d.fail("offset pool size %d exceeds data length", n)
	}
	var pool []Offset
	if d.err == nil {
		pool = make([]Offset, n)
	}
	for i := range pool {
		pool[i] = d.offset("pooled offset")
	}
	poolOffset := func(what string) Offset {
		i := d.uvarint(what)
		if d.err != nil {
			return 0
		}
		if i >= uint64(len(pool)) {
			d.fail("%s %d out of range [0, %d)", what, i, len(pool))
			return 0
		}
		return pool[i]
	}

	initial := poolOffset("initial offset index")

	count := d.uvarint("transition count")
	if d.err == nil && count > uint64(len(b)) {
		d.fail("transition count %d exceeds data length", count)
	}
	var transitions []Transition
	if d.err == nil && count > 0 {
		transitions = make([]Transition, count)
	}
	var prev int64
	for i := range transitions {
		delta := d.varint("transition delta")
		if d.err == nil && i > 0 && delta <= 0 {
			d.fail("transition %d: non-increasing delta %d", i, delta)
		}
		prev += delta
		transitions[i] = Transition{At: prev, Offset: poolOffset("transition offset index")}
	}

	var tail Tail
	switch kind := d.byte("tail kind"); kind {
	case tailLast:
		// New derives the tail from the last offset.
	case tailFixed:
		tail = FixedTail{Offset: d.offset("fixed tail offset")}
	case tailDaylight:
		tail = DaylightTail{
			Standard: d.offset("standard offset"),
			Start:    d.recurrence("daylight start"),
			End:      d.recurrence("daylight end"),
		}
	default:
		d.fail("unknown tail kind %d", kind)
	}

	if d.err == nil && d.pos != len(b) {
		d.fail("%d trailing bytes", len(b)-d.pos)
	}
	if d.err != nil {
		return nil, d.err
	}

	z, err := New(id, initial, transitions, tail)
	if err != nil {
		return nil, &DecodeError{ID: id, Offset: d.pos, Err: err}
	}
	return z, nil
}
