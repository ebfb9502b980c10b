// Package tzif reads and writes compiled time zone files in the TZif
// format of RFC 8536, as found below /usr/share/zoneinfo.
// https://datatracker.ietf.org/doc/html/rfc8536
package tzif

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// All multi-octet integers are big-endian two's complement.
var order = binary.BigEndian

// Version identifies the format of a TZif file. V1 files use 32-bit
// transition times; V2 and later repeat the data with 64-bit times and
// add a footer with a POSIX TZ string.
type Version byte

const (
	V1 Version = 0x00
	V2 Version = '2'
	V3 Version = '3' // allows TZ string extensions (hours up to 167, negative)
	V4 Version = '4' // allows truncated leap second tables
)

func (v Version) String() string {
	switch v {
	case V1:
		return "V1 (0x00)"
	case V2:
		return "V2 (0x32)"
	case V3:
		return "V3 (0x33)"
	case V4:
		return "V4 (0x34)"
	default:
		return fmt.Sprintf("<undefined version (%d)>", v)
	}
}

// Magic identifies a TZif file.
var Magic = [4]byte{'T', 'Z', 'i', 'f'}

// ErrMagic is returned for input that does not start with Magic.
var ErrMagic = errors.New("tzif: invalid magic")

// Header is the fixed-size header preceding each data block.
//
//	+---------------+---+
//	|  magic    (4) |ver|
//	+---------------+---+---------------------------------------+
//	|           [unused - reserved for future use] (15)         |
//	+---------------+---------------+---------------+-----------+
//	|  isutcnt  (4) |  isstdcnt (4) |  leapcnt  (4) |
//	+---------------+---------------+---------------+
//	|  timecnt  (4) |  typecnt  (4) |  charcnt  (4) |
//	+---------------+---------------+---------------+
type Header struct {
	Version  Version
	Reserved [15]byte
	Isutcnt  uint32
	Isstdcnt uint32
	Leapcnt  uint32
	Timecnt  uint32
	Typecnt  uint32
	Charcnt  uint32
}

// Write writes the magic and the header to w.
func (h Header) Write(w io.Writer) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	return binary.Write(w, order, h)
}

// ReadHeader reads the magic and a header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var (
		h     Header
		magic [4]byte
	)
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return h, fmt.Errorf("reading magic: %w", err)
	}
	if magic != Magic {
		return h, fmt.Errorf("%w: %q", ErrMagic, magic[:])
	}
	if err := binary.Read(r, order, &h); err != nil {
		return h, fmt.Errorf("reading header: %w", err)
	}
	return h, nil
}

// LocalTimeType is a local time type record.
//
//	+---------------+---+---+
//	|  utoff (4)    |dst|idx|
//	+---------------+---+---+
type LocalTimeType struct {
	// Utoff is added to UT to get local time, in seconds.
	Utoff int32
	Dst   bool
	// Idx indexes the NUL-terminated designation in Data.Designations.
	Idx uint8
}

// LeapSecond is a leap second record. In V1 blocks Occur is 32 bits wide.
type LeapSecond struct {
	Occur int64
	Corr  int32
}

// Data is the content of one data block. V1 transition times are widened
// to 64 bits when read.
//
//	+---------------------------------------------------------+
//	|  transition times          (timecnt x TIME_SIZE)        |
//	|  transition types          (timecnt)                    |
//	|  local time type records   (typecnt x 6)                |
//	|  time zone designations    (charcnt)                    |
//	|  leap-second records       (leapcnt x (TIME_SIZE + 4))  |
//	|  standard/wall indicators  (isstdcnt)                   |
//	|  UT/local indicators       (isutcnt)                    |
//	+---------------------------------------------------------+
type Data struct {
	TransitionTimes []int64
	TransitionTypes []uint8
	Types           []LocalTimeType
	Designations    []byte
	LeapSeconds     []LeapSecond
	StandardWall    []bool
	UTLocal         []bool
}

// Designation returns the abbreviation of local time type i, such as "CET".
func (d Data) Designation(i int) string {
	idx := int(d.Types[i].Idx)
	if idx >= len(d.Designations) {
		return ""
	}
	end := bytes.IndexByte(d.Designations[idx:], 0)
	if end < 0 {
		return string(d.Designations[idx:])
	}
	return string(d.Designations[idx : idx+end])
}

func (d Data) header(v Version) Header {
	return Header{
		Version:  v,
		Isutcnt:  uint32(len(d.UTLocal)),
		Isstdcnt: uint32(len(d.StandardWall)),
		Leapcnt:  uint32(len(d.LeapSeconds)),
		Timecnt:  uint32(len(d.TransitionTimes)),
		Typecnt:  uint32(len(d.Types)),
		Charcnt:  uint32(len(d.Designations)),
	}
}

// write writes the block with 4-byte (V1) or 8-byte time values.
func (d Data) write(w io.Writer, wide bool) error {
	putTime := func(t int64) error {
		if wide {
			return binary.Write(w, order, t)
		}
		return binary.Write(w, order, int32(t))
	}
	for _, t := range d.TransitionTimes {
		if err := putTime(t); err != nil {
			return err
		}
	}
	if _, err := w.Write(d.TransitionTypes); err != nil {
		return err
	}
	for _, t := range d.Types {
		if err := binary.Write(w, order, t); err != nil {
			return err
		}
	}
	if _, err := w.Write(d.Designations); err != nil {
		return err
	}
	for _, l := range d.LeapSeconds {
		if err := putTime(l.Occur); err != nil {
			return err
		}
		if err := binary.Write(w, order, l.Corr); err != nil {
			return err
		}
	}
	if err := binary.Write(w, order, d.StandardWall); err != nil {
		return err
	}
	return binary.Write(w, order, d.UTLocal)
}

func readData(r io.Reader, h Header, wide bool) (Data, error) {
	var d Data
	getTime := func() (int64, error) {
		if wide {
			var t int64
			err := binary.Read(r, order, &t)
			return t, err
		}
		var t int32
		err := binary.Read(r, order, &t)
		return int64(t), err
	}

	if h.Timecnt > 0 {
		d.TransitionTimes = make([]int64, h.Timecnt)
		for i := range d.TransitionTimes {
			t, err := getTime()
			if err != nil {
				return d, fmt.Errorf("reading transition times: %w", err)
			}
			d.TransitionTimes[i] = t
		}
		d.TransitionTypes = make([]uint8, h.Timecnt)
		if _, err := io.ReadFull(r, d.TransitionTypes); err != nil {
			return d, fmt.Errorf("reading transition types: %w", err)
		}
	}
	if h.Typecnt > 0 {
		d.Types = make([]LocalTimeType, h.Typecnt)
		if err := binary.Read(r, order, d.Types); err != nil {
			return d, fmt.Errorf("reading local time type records: %w", err)
		}
	}
	if h.Charcnt > 0 {
		d.Designations = make([]byte, h.Charcnt)
		if _, err := io.ReadFull(r, d.Designations); err != nil {
			return d, fmt.Errorf("reading time zone designations: %w", err)
		}
	}
	if h.Leapcnt > 0 {
		d.LeapSeconds = make([]LeapSecond, h.Leapcnt)
		for i := range d.LeapSeconds {
			occur, err := getTime()
			if err != nil {
				return d, fmt.Errorf("reading leap second record: %w", err)
			}
			d.LeapSeconds[i].Occur = occur
			if err := binary.Read(r, order, &d.LeapSeconds[i].Corr); err != nil {
				return d, fmt.Errorf("reading leap second record: %w", err)
			}
		}
	}
	if h.Isstdcnt > 0 {
		d.StandardWall = make([]bool, h.Isstdcnt)
		if err := binary.Read(r, order, d.StandardWall); err != nil {
			return d, fmt.Errorf("reading standard/wall indicators: %w", err)
		}
	}
	if h.Isutcnt > 0 {
		d.UTLocal = make([]bool, h.Isutcnt)
		if err := binary.Read(r, order, d.UTLocal); err != nil {
			return d, fmt.Errorf("reading UT/local indicators: %w", err)
		}
	}
	return d, nil
}

// File is a decoded TZif file. For V2+ files Data holds the 64-bit block
// and the V1 block is discarded.
type File struct {
	Version Version
	Data    Data
	// TZString is the POSIX TZ rule from the footer of V2+ files. It
	// applies after the last transition and may be empty.
	TZString string
}

// Decode reads a TZif file from r.
func Decode(r io.Reader) (File, error) {
	br := bufio.NewReader(r)
	var f File

	h, err := ReadHeader(br)
	if err != nil {
		return f, fmt.Errorf("read v1 header: %w", err)
	}
	f.Version = h.Version
	f.Data, err = readData(br, h, false)
	if err != nil {
		return f, fmt.Errorf("read v1 data block: %w", err)
	}
	if f.Version == V1 {
		return f, nil
	}

	h, err = ReadHeader(br)
	if err != nil {
		return f, fmt.Errorf("read v2 header: %w", err)
	}
	if h.Version != f.Version {
		return f, fmt.Errorf("inconsistent version: v1 header = %v, v2 header = %v", f.Version, h.Version)
	}
	f.Data, err = readData(br, h, true)
	if err != nil {
		return f, fmt.Errorf("read v2 data block: %w", err)
	}
	f.TZString, err = readFooter(br)
	if err != nil {
		return f, fmt.Errorf("read footer: %w", err)
	}
	return f, nil
}

const newline = '\n'

func readFooter(r *bufio.Reader) (string, error) {
	c, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("reading newline: %w", err)
	}
	if c != newline {
		return "", fmt.Errorf("expected newline: %v", c)
	}
	s, err := r.ReadString(newline)
	if err != nil {
		return "", fmt.Errorf("reading TZ string: %w", err)
	}
	return s[:len(s)-1], nil
}

// Encode writes f to w. V2+ files get a V1 block holding the transitions
// that fit 32-bit times, as RFC 8536 section 4 recommends.
func (f File) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	v1 := f.Data
	if f.Version > V1 {
		v1 = f.Data.fit32()
	}
	if err := v1.header(f.Version).Write(bw); err != nil {
		return fmt.Errorf("write v1 header: %w", err)
	}
	if err := v1.write(bw, false); err != nil {
		return fmt.Errorf("write v1 data: %w", err)
	}
	if f.Version > V1 {
		if err := f.Data.header(f.Version).Write(bw); err != nil {
			return fmt.Errorf("write v2 header: %w", err)
		}
		if err := f.Data.write(bw, true); err != nil {
			return fmt.Errorf("write v2 data: %w", err)
		}
		bw.WriteByte(newline)
		bw.WriteString(f.TZString)
		bw.WriteByte(newline)
	}
	return bw.Flush()
}

// fit32 drops transitions and leap seconds outside the int32 range.
func (d Data) fit32() Data {
	out := d
	out.TransitionTimes, out.TransitionTypes = nil, nil
	for i, t := range d.TransitionTimes {
		if t >= math.MinInt32 && t <= math.MaxInt32 {
			out.TransitionTimes = append(out.TransitionTimes, t)
			out.TransitionTypes = append(out.TransitionTypes, d.TransitionTypes[i])
		}
	}
	out.LeapSeconds = nil
	for _, l := range d.LeapSeconds {
		if l.Occur >= math.MinInt32 && l.Occur <= math.MaxInt32 {
			out.LeapSeconds = append(out.LeapSeconds, l)
		}
	}
	return out
}
