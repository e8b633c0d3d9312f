package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// params is a decoded request payload.
type params map[string]any

// decodePayload accepts text payloads (JSON in a string, []byte or json.RawMessage) and
// already-parsed values alike. Empty text means "no parameters".
func decodePayload(payload any) (params, error) {
	switch v := payload.(type) {
	case nil:
		return params{}, nil
	case string:
		return decodeText([]byte(v))
	case []byte:
		return decodeText(v)
	case json.RawMessage:
		return decodeText(v)
	case map[string]any:
		if v == nil {
			return params{}, nil
		}
		return params(v), nil
	case map[string]string:
		out := make(params, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %T payload: %w", payload, err)
		}
		return decodeText(data)
	}
}

func decodeText(data []byte) (params, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return params{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return params{}, nil
	}
	return out, nil
}

// str returns a parameter as text. Missing, null and empty values report ok=false;
// non-string values are rendered with fmt so validation can name them.
func (p params) str(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, s != ""
	default:
		return fmt.Sprint(s), true
	}
}
