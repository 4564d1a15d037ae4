// Package editor talks to the editor side of the bridge.
//
// Requests arrive as TOML documents on a per-session unix socket and are
// parsed into a Request carrying Meta (session, client, buffer, filetype,
// version) and method-specific params. Responses go back as editor commands
// through a Sink, either with `kak -p <session>` or through the fifo a
// synchronous request supplied.
//
// Every string spliced into a command must go through Quote. Tokenize is its
// inverse and is what the editor does when it evaluates the command.
package editor
