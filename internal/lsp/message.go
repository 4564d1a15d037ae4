package lsp

import (
	"encoding/json"
	"fmt"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tidwall/gjson"
)

// ServerMessage is a message received from a language server: either a
// request or notification the server initiated, or a response to one of
// ours. Exactly one field is set.
type ServerMessage struct {
	Request  *jsonrpc2.Request
	Response *jsonrpc2.Response
}

// IsNotification reports whether the message is a server notification.
func (m ServerMessage) IsNotification() bool {
	return m.Request != nil && m.Request.Notif
}

// ParseServerMessage classifies and decodes one JSON-RPC message body.
// Anything carrying a method is a request or notification; anything else
// with an id is a response.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	if !gjson.ValidBytes(data) {
		return ServerMessage{}, fmt.Errorf("%w: malformed json", ErrInvalidMessage)
	}

	if gjson.GetBytes(data, "method").Exists() {
		var req jsonrpc2.Request
		if err := json.Unmarshal(data, &req); err != nil {
			return ServerMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return ServerMessage{Request: &req}, nil
	}

	if !gjson.GetBytes(data, "id").Exists() {
		return ServerMessage{}, fmt.Errorf("%w: neither method nor id", ErrInvalidMessage)
	}

	var resp jsonrpc2.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return ServerMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return ServerMessage{Response: &resp}, nil
}

// DecodeParams unmarshals the params of a server request into v.
func DecodeParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return fmt.Errorf("%s: missing params", req.Method)
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return fmt.Errorf("%s: decode params: %w", req.Method, err)
	}
	return nil
}
