package bridge

import "errors"

var (
	// ErrDocumentNotOpen indicates a position in a buffer the bridge has no
	// draft of, typically one closed after the request was sent.
	ErrDocumentNotOpen = errors.New("document not open")

	// ErrUnknownMethod indicates an editor request for an unsupported method.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrUnknownPrecedence indicates an invalid hover precedence name.
	ErrUnknownPrecedence = errors.New("unknown hover precedence")
)
