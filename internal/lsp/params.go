package lsp

import (
	"bytes"
	"encoding/json"
)

// ParamsKind is the JSON-RPC shape of a request's params member.
type ParamsKind int

const (
	ParamsNone ParamsKind = iota
	ParamsArray
	ParamsMap
)

// Params holds request parameters in one of the three JSON-RPC shapes.
type Params struct {
	Kind  ParamsKind
	Array []json.RawMessage
	Map   map[string]json.RawMessage
}

// MarshalJSON implements json.Marshaler. ParamsNone encodes as null.
func (p Params) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case ParamsArray:
		if p.Array == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(p.Array)
	case ParamsMap:
		if p.Map == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(p.Map)
	default:
		return []byte("null"), nil
	}
}

// Raw returns the encoded params, or nil for ParamsNone so the member can be
// omitted from the request.
func (p Params) Raw() *json.RawMessage {
	if p.Kind == ParamsNone {
		return nil
	}
	data, err := p.MarshalJSON()
	if err != nil {
		return nil
	}
	raw := json.RawMessage(data)
	return &raw
}

// ToParams converts any payload into JSON-RPC params, choosing the shape
// from the payload's own serialized form: null gives ParamsNone, a scalar
// gives a one-element array, an array stays an array and an object becomes
// a map. It never fails; a payload that cannot be marshaled yields ParamsNone.
// Use ToParamsChecked to observe that failure.
func ToParams(v any) Params {
	p, _ := ToParamsChecked(v)
	return p
}

// ToParamsChecked is ToParams but reports a marshaling failure as a
// *SerializationError.
func ToParamsChecked(v any) (Params, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Params{}, &SerializationError{What: "params", Err: err}
	}
	return paramsFromJSON(data), nil
}

func paramsFromJSON(data []byte) Params {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Params{}
	}

	switch data[0] {
	case 'n':
		return Params{}
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err == nil {
			if arr == nil {
				arr = []json.RawMessage{}
			}
			return Params{Kind: ParamsArray, Array: arr}
		}
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(data, &m); err == nil {
			return Params{Kind: ParamsMap, Map: m}
		}
	}

	scalar := make(json.RawMessage, len(data))
	copy(scalar, data)
	return Params{Kind: ParamsArray, Array: []json.RawMessage{scalar}}
}
