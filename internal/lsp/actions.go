package lsp

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// ActionOrCommand is one element of a textDocument/codeAction result: either
// a bare Command or a CodeAction. Exactly one field is set.
type ActionOrCommand struct {
	Command *Command
	Action  *CodeAction
}

// MarshalJSON implements json.Marshaler.
func (a ActionOrCommand) MarshalJSON() ([]byte, error) {
	if a.Command != nil {
		return json.Marshal(a.Command)
	}
	return json.Marshal(a.Action)
}

// UnmarshalJSON implements json.Unmarshaler. A Command is recognized by a
// string "command" member; a CodeAction's "command" is an object, if present.
func (a *ActionOrCommand) UnmarshalJSON(data []byte) error {
	if gjson.GetBytes(data, "command").Type == gjson.String {
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			return fmt.Errorf("command: %w", err)
		}
		*a = ActionOrCommand{Command: &cmd}
		return nil
	}

	var action CodeAction
	if err := json.Unmarshal(data, &action); err != nil {
		return fmt.Errorf("code action: %w", err)
	}
	*a = ActionOrCommand{Action: &action}
	return nil
}

// Title returns the title of whichever variant is set.
func (a ActionOrCommand) Title() string {
	if a.Command != nil {
		return a.Command.Title
	}
	if a.Action != nil {
		return a.Action.Title
	}
	return ""
}

// SelectionKind tells what selecting a menu entry should do.
type SelectionKind int

const (
	// SelectExecuteCommand runs workspace/executeCommand.
	SelectExecuteCommand SelectionKind = iota
	// SelectApplyEdit applies the action's workspace edit.
	SelectApplyEdit
)

// MenuEntry is the uniform presentation of an ActionOrCommand.
type MenuEntry struct {
	Title   string
	Kind    SelectionKind
	Command string         // SelectExecuteCommand
	Args    []any          // SelectExecuteCommand
	Edit    *WorkspaceEdit // SelectApplyEdit
}

// Normalize turns an ActionOrCommand into a MenuEntry. A CodeAction that
// carries a Command is presented as that Command; a CodeAction without one
// keeps its own title and applies its edit when selected.
func (a ActionOrCommand) Normalize() MenuEntry {
	cmd := a.Command
	if cmd == nil && a.Action != nil {
		cmd = a.Action.Command
	}
	if cmd != nil {
		return MenuEntry{
			Title:   cmd.Title,
			Kind:    SelectExecuteCommand,
			Command: cmd.Command,
			Args:    cmd.Arguments,
		}
	}

	entry := MenuEntry{Kind: SelectApplyEdit}
	if a.Action != nil {
		entry.Title = a.Action.Title
		entry.Edit = a.Action.Edit
	}
	return entry
}
