package editor

import "fmt"

// Meta identifies the editor context a request came from. It is immutable
// once parsed and travels with every continuation spawned by the request.
type Meta struct {
	Session  string `toml:"session"`
	Client   string `toml:"client"`
	Buffile  string `toml:"buffile"`
	Filetype string `toml:"filetype"`
	Version  uint64 `toml:"version"`
	// Fifo, when set, is a named pipe the editor is blocked reading; commands
	// for this request are written there instead of going through kak -p.
	Fifo string `toml:"fifo"`
}

// Position is an editor cursor position: 1-based line, 1-based byte column.
type Position struct {
	Line   int `toml:"line"`
	Column int `toml:"column"`
}

// String renders the position the way the editor writes selections.
func (p Position) String() string {
	return fmt.Sprintf("%d.%d", p.Line, p.Column)
}

// Range is an editor selection description.
type Range struct {
	Start Position `toml:"start"`
	End   Position `toml:"end"`
}

func (r Range) String() string {
	return r.Start.String() + "," + r.End.String()
}
