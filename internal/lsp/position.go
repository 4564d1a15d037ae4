package lsp

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// OffsetEncoding is the unit a server uses for Position.Character.
// It is fixed for the lifetime of a server connection.
type OffsetEncoding int

const (
	// OffsetEncodingUTF16 counts UTF-16 code units. This is the LSP default.
	OffsetEncodingUTF16 OffsetEncoding = iota
	// OffsetEncodingUTF8 counts bytes, which is what the editor uses.
	OffsetEncodingUTF8
)

// String returns the protocol name of the encoding.
func (e OffsetEncoding) String() string {
	switch e {
	case OffsetEncodingUTF8:
		return "utf-8"
	case OffsetEncodingUTF16:
		return "utf-16"
	default:
		return fmt.Sprintf("OffsetEncoding(%d)", int(e))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e OffsetEncoding) MarshalText() ([]byte, error) {
	switch e {
	case OffsetEncodingUTF8, OffsetEncodingUTF16:
		return []byte(e.String()), nil
	default:
		return nil, fmt.Errorf("unknown offset encoding %d", int(e))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *OffsetEncoding) UnmarshalText(text []byte) error {
	enc, err := ParseOffsetEncoding(string(text))
	if err != nil {
		return err
	}
	*e = enc
	return nil
}

// ParseOffsetEncoding parses "utf-8" or "utf-16" (case-insensitive).
func ParseOffsetEncoding(s string) (OffsetEncoding, error) {
	switch strings.ToLower(s) {
	case "utf-8", "utf8":
		return OffsetEncodingUTF8, nil
	case "utf-16", "utf16":
		return OffsetEncodingUTF16, nil
	default:
		return 0, fmt.Errorf("unknown offset encoding %q (want utf-8 or utf-16)", s)
	}
}

// ToProtocolOffset converts a byte column within line into the protocol's
// character offset under enc.
//
// The column must land on a character boundary and must not exceed len(line);
// otherwise the returned error matches ErrPositionOutOfRange. Bytes that are
// not valid UTF-8 count as one character each.
func ToProtocolOffset(line string, byteColumn int, enc OffsetEncoding) (int, error) {
	if byteColumn < 0 || byteColumn > len(line) {
		return 0, &PositionError{Column: byteColumn, Length: len(line), Reason: "outside the line"}
	}

	units := 0
	for i := 0; i < byteColumn; {
		r, size := utf8.DecodeRuneInString(line[i:])
		if i+size > byteColumn {
			return 0, &PositionError{Column: byteColumn, Length: len(line), Reason: "inside a character"}
		}
		units += codeUnits(r, enc, size)
		i += size
	}
	return units, nil
}

// FromProtocolOffset is the inverse of ToProtocolOffset: it converts a
// protocol character offset under enc back to a byte column within line.
func FromProtocolOffset(line string, offset int, enc OffsetEncoding) (int, error) {
	if offset < 0 {
		return 0, &PositionError{Column: offset, Length: len(line), Reason: "negative offset"}
	}

	units := 0
	i := 0
	for i < len(line) && units < offset {
		r, size := utf8.DecodeRuneInString(line[i:])
		units += codeUnits(r, enc, size)
		i += size
	}

	switch {
	case units < offset:
		return 0, &PositionError{Column: offset, Length: len(line), Reason: "outside the line"}
	case units > offset:
		return 0, &PositionError{Column: offset, Length: len(line), Reason: "inside a character"}
	}
	return i, nil
}

// codeUnits returns how many protocol units a decoded character occupies.
func codeUnits(r rune, enc OffsetEncoding, size int) int {
	if enc == OffsetEncodingUTF8 {
		return size
	}
	if r > 0xFFFF {
		return 2 // surrogate pair
	}
	return 1
}

// LineIndex splits document content into lines once so positions can be
// translated without rescanning the whole text.
type LineIndex struct {
	content string
	starts  []int // byte offset of each line start
}

// NewLineIndex creates an index for content. Lines are separated by '\n';
// content ending in a newline has a final empty line.
func NewLineIndex(content string) *LineIndex {
	li := &LineIndex{content: content, starts: []int{0}}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			li.starts = append(li.starts, i+1)
		}
	}
	return li
}

// LineCount returns the number of lines.
func (li *LineIndex) LineCount() int {
	return len(li.starts)
}

// Line returns the content of a line (excluding newline).
func (li *LineIndex) Line(n int) (string, bool) {
	if n < 0 || n >= len(li.starts) {
		return "", false
	}
	start := li.starts[n]
	end := len(li.content)
	if n+1 < len(li.starts) {
		end = li.starts[n+1] - 1
	}
	return li.content[start:end], true
}

// ProtocolPosition converts a zero-based line and byte column into a
// protocol Position under enc.
func (li *LineIndex) ProtocolPosition(line, byteColumn int, enc OffsetEncoding) (Position, error) {
	text, ok := li.Line(line)
	if !ok {
		return Position{}, fmt.Errorf("line %d of %d: %w", line, li.LineCount(), ErrPositionOutOfRange)
	}
	ch, err := ToProtocolOffset(text, byteColumn, enc)
	if err != nil {
		return Position{}, fmt.Errorf("line %d: %w", line, err)
	}
	return Position{Line: line, Character: ch}, nil
}

// ByteColumn converts a protocol Position under enc into a zero-based byte
// column on the same line.
func (li *LineIndex) ByteColumn(pos Position, enc OffsetEncoding) (int, error) {
	text, ok := li.Line(pos.Line)
	if !ok {
		return 0, fmt.Errorf("line %d of %d: %w", pos.Line, li.LineCount(), ErrPositionOutOfRange)
	}
	col, err := FromProtocolOffset(text, pos.Character, enc)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", pos.Line, err)
	}
	return col, nil
}

// ComparePositions returns -1 if a < b, 0 if a == b, 1 if a > b.
func ComparePositions(a, b Position) int {
	if a.Line < b.Line {
		return -1
	}
	if a.Line > b.Line {
		return 1
	}
	if a.Character < b.Character {
		return -1
	}
	if a.Character > b.Character {
		return 1
	}
	return 0
}

// Covers reports whether pos lies within r, both ends inclusive.
func (r Range) Covers(pos Position) bool {
	return ComparePositions(r.Start, pos) <= 0 && ComparePositions(pos, r.End) <= 0
}
