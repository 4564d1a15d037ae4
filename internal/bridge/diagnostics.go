package bridge

import (
	"github.com/dshills/lspbridge/internal/lsp"
)

// FileDiagnostics holds the diagnostics last published for one file.
type FileDiagnostics struct {
	Path        string
	Version     int
	Diagnostics []lsp.Diagnostic

	// Aggregated counts by severity
	ErrorCount   int
	WarningCount int
	InfoCount    int
	HintCount    int
}

// DiagnosticStore maps files to their latest diagnostics. Each publish
// replaces a file's entry wholesale and keeps the server's order. The store
// is owned by the loop goroutine and has no lock.
type DiagnosticStore struct {
	files map[string]*FileDiagnostics
}

// NewDiagnosticStore creates an empty store.
func NewDiagnosticStore() *DiagnosticStore {
	return &DiagnosticStore{files: make(map[string]*FileDiagnostics)}
}

// Replace sets the diagnostics of path.
func (s *DiagnosticStore) Replace(path string, version int, diags []lsp.Diagnostic) {
	fd := &FileDiagnostics{
		Path:        path,
		Version:     version,
		Diagnostics: diags,
	}
	for _, d := range diags {
		switch d.Severity {
		case lsp.DiagnosticSeverityError:
			fd.ErrorCount++
		case lsp.DiagnosticSeverityWarning:
			fd.WarningCount++
		case lsp.DiagnosticSeverityInformation:
			fd.InfoCount++
		case lsp.DiagnosticSeverityHint:
			fd.HintCount++
		}
	}
	s.files[path] = fd
}

// Get returns the diagnostics of path and whether any were published.
func (s *DiagnosticStore) Get(path string) ([]lsp.Diagnostic, bool) {
	fd, ok := s.files[path]
	if !ok {
		return nil, false
	}
	return fd.Diagnostics, true
}

// File returns the entry of path, or an empty entry.
func (s *DiagnosticStore) File(path string) FileDiagnostics {
	if fd, ok := s.files[path]; ok {
		return *fd
	}
	return FileDiagnostics{Path: path}
}

// Covering returns the diagnostics whose range covers pos, in store order.
func Covering(diags []lsp.Diagnostic, pos lsp.Position) []lsp.Diagnostic {
	var out []lsp.Diagnostic
	for _, d := range diags {
		if d.Range.Covers(pos) {
			out = append(out, d)
		}
	}
	return out
}
