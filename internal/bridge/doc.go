// Package bridge connects editor requests to language servers.
//
// A Context owns every piece of mutable state: the servers of each Route,
// the drafts of open buffers, and the diagnostics servers have published.
// Run processes one event at a time on a single goroutine; listener and
// transport goroutines only hand events to it. No locks are involved.
//
// Requests to a server are issued with Call, which registers a continuation
// keyed by the request ID. The continuation runs at most once, when the
// response arrives. It never runs if the route closes or the request times
// out first. Continuations re-check positions against the current draft
// because the buffer may have changed or closed in the meantime.
//
// Results are turned into editor commands here:
//
//	lsp-show-hover <line>.<column> <text>
//	menu <title> <command> ...
//	lsp-execute-command <id> <arguments>
//	lsp-apply-workspace-edit <edit>
//	lsp-show-error <text>
package bridge
