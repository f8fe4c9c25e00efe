// Package canlog turns CAN frames into the text records of a datalogger
// and streams them into a log file on a fatlog volume.
package canlog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/calsol/fatlog/checkpoint"
)

const (
	// MaxDataLength is the payload limit of a classic CAN frame.
	MaxDataLength = 8

	maxStandardID = 0x7FF
	maxExtendedID = 0x1FFFFFFF
)

var ErrFrame = errors.New("invalid CAN frame")

// Frame is a classic CAN data frame.
type Frame struct {
	ID       uint32
	Data     []byte
	Extended bool
}

// DLC returns the data length code, which for classic frames is the payload length.
func (f Frame) DLC() int {
	return len(f.Data)
}

func (f Frame) String() string {
	return string(AppendRecord(nil, f)[:RecordLength(f)-1])
}

// RecordLength returns the length of the record AppendRecord produces for f.
func RecordLength(f Frame) int {
	id := 3
	if f.Extended {
		id = 8
	}
	return id + 3 + 3*len(f.Data) + 1
}

// AppendRecord appends the text record of f to dst:
//
//	SSS,LL,DD,DD,...\n
//
// The identifier is upper case hex with three digits, eight for extended
// frames. The length and every data byte are two hex digits.
func AppendRecord(dst []byte, f Frame) []byte {
	if f.Extended {
		dst = appendHex(dst, f.ID, 8)
	} else {
		dst = appendHex(dst, f.ID&maxStandardID, 3)
	}
	dst = append(dst, ',')
	dst = appendHex(dst, uint32(len(f.Data)), 2)
	for _, b := range f.Data {
		dst = append(dst, ',')
		dst = appendHex(dst, uint32(b), 2)
	}
	return append(dst, '\n')
}

func appendHex(dst []byte, v uint32, digits int) []byte {
	const hex = "0123456789ABCDEF"
	for shift := 4 * (digits - 1); shift >= 0; shift -= 4 {
		dst = append(dst, hex[(v>>shift)&0xF])
	}
	return dst
}

// ParseFrame parses a single frame from one of these line formats:
//
//	(1700000000.000000) can0 0DE#4C4F4C4455434B53   candump -L
//	can0  0DE   [8]  4C 4F 4C 44 55 43 4B 53       candump
//	0DE#4C4F4C4455434B53                           cansend
//	0DE,08,4C,4F,4C,44,55,43,4B,53                 a record
//
// Identifiers with more than three digits are extended.
func ParseFrame(line string) (Frame, error) {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Frame{}, checkpoint.From(fmt.Errorf("%w: empty line", ErrFrame))
	}

	switch {
	case strings.Contains(fields[len(fields)-1], "#"):
		return parseCompact(fields[len(fields)-1])
	case strings.Contains(line, ","):
		return parseRecord(line)
	case len(fields) >= 3 && strings.HasPrefix(fields[2], "["):
		return parseCandump(fields[1:])
	}
	return Frame{}, checkpoint.From(fmt.Errorf("%w: unknown format %q", ErrFrame, line))
}

// parseCompact parses ID#DATA.
func parseCompact(s string) (Frame, error) {
	id, data, _ := strings.Cut(s, "#")
	f, err := parseID(id)
	if err != nil {
		return Frame{}, err
	}
	if len(data)%2 != 0 {
		return Frame{}, checkpoint.From(fmt.Errorf("%w: odd payload %q", ErrFrame, data))
	}
	for i := 0; i < len(data); i += 2 {
		b, err := parseByte(data[i : i+2])
		if err != nil {
			return Frame{}, err
		}
		f.Data = append(f.Data, b)
	}
	return f, checkLength(f)
}

// parseRecord parses the output of AppendRecord.
func parseRecord(s string) (Frame, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return Frame{}, checkpoint.From(fmt.Errorf("%w: record %q", ErrFrame, s))
	}
	f, err := parseID(parts[0])
	if err != nil {
		return Frame{}, err
	}
	dlc, err := parseByte(parts[1])
	if err != nil {
		return Frame{}, err
	}
	if int(dlc) != len(parts)-2 {
		return Frame{}, checkpoint.From(fmt.Errorf("%w: length %d with %d bytes", ErrFrame, dlc, len(parts)-2))
	}
	for _, p := range parts[2:] {
		b, err := parseByte(p)
		if err != nil {
			return Frame{}, err
		}
		f.Data = append(f.Data, b)
	}
	return f, checkLength(f)
}

// parseCandump parses "ID [N] DD DD ..." with the interface name removed.
func parseCandump(fields []string) (Frame, error) {
	f, err := parseID(fields[0])
	if err != nil {
		return Frame{}, err
	}
	n, err := strconv.Atoi(strings.Trim(fields[1], "[]"))
	if err != nil || n != len(fields)-2 {
		return Frame{}, checkpoint.From(fmt.Errorf("%w: length %s with %d bytes", ErrFrame, fields[1], len(fields)-2))
	}
	for _, p := range fields[2:] {
		b, err := parseByte(p)
		if err != nil {
			return Frame{}, err
		}
		f.Data = append(f.Data, b)
	}
	return f, checkLength(f)
}

func parseID(s string) (Frame, error) {
	id, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Frame{}, checkpoint.Wrap(err, ErrFrame)
	}
	f := Frame{ID: uint32(id), Extended: len(s) > 3}
	if (!f.Extended && id > maxStandardID) || id > maxExtendedID {
		return Frame{}, checkpoint.From(fmt.Errorf("%w: identifier %s out of range", ErrFrame, s))
	}
	return f, nil
}

func parseByte(s string) (byte, error) {
	b, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, checkpoint.Wrap(err, ErrFrame)
	}
	return byte(b), nil
}

func checkLength(f Frame) error {
	if len(f.Data) > MaxDataLength {
		return checkpoint.From(fmt.Errorf("%w: %d data bytes", ErrFrame, len(f.Data)))
	}
	return nil
}
