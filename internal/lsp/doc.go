// Package lsp holds the protocol side of the bridge: the LSP data model,
// position translation between editor byte columns and the server's offset
// encoding, JSON-RPC parameter shaping, inbound message classification and
// the stdio transport.
//
// # Positions
//
// The editor addresses text by byte column. A server addresses it by
// Position.Character counted in the OffsetEncoding agreed for the connection:
// bytes for utf-8, UTF-16 code units for utf-16. ToProtocolOffset and
// FromProtocolOffset translate one line; LineIndex applies them to whole
// documents:
//
//	idx := lsp.NewLineIndex(text)
//	pos, err := idx.ProtocolPosition(line, byteCol, lsp.OffsetEncodingUTF16)
//	if errors.Is(err, lsp.ErrPositionOutOfRange) {
//	    // stale or malformed position; abandon the request
//	}
//
// # Messages
//
// Transport.Call returns a request ID immediately. Responses and server
// initiated requests arrive through the deliver callback given to
// Transport.Start as ServerMessage values; matching responses to their
// requests is left to the caller.
//
// # Thread Safety
//
// Transport writes are serialized internally and the read loop runs in its
// own goroutine. Everything else in the package is plain data and pure
// functions.
package lsp
