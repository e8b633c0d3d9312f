package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Option is one answer choice of a question.
type Option struct {
	Key  string `json:"key" yaml:"key"`
	Text string `json:"text" yaml:"text"`
}

// Options keeps answer choices in insertion order. It encodes as a JSON object
// ({"A": "...", "B": "..."}) and decodes from either that object form or an array of
// {key, text} records. Go maps would lose the display order, hence the slice.
type Options []Option

// Text returns the display text for key.
func (o Options) Text(key string) (string, bool) {
	for _, opt := range o {
		if opt.Key == key {
			return opt.Text, true
		}
	}
	return "", false
}

// Keys returns the option keys in order.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	for _, opt := range o {
		keys = append(keys, opt.Key)
	}
	return keys
}

// Clone returns a copy that shares no backing array with o.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	copy(out, o)
	return out
}

func (o Options) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, opt := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(opt.Key)
		if err != nil {
			return nil, err
		}
		text, err := json.Marshal(opt.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(text)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Options) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*o = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []Option
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*o = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("options: expected object or array, got %v", tok)
	}
	out := Options{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("options: expected string key, got %v", keyTok)
		}
		var text string
		if err := dec.Decode(&text); err != nil {
			return fmt.Errorf("options: value for %q: %w", key, err)
		}
		out = append(out, Option{Key: key, Text: text})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = out
	return nil
}

func (o *Options) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(Options, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var key, text string
			if err := node.Content[i].Decode(&key); err != nil {
				return err
			}
			if err := node.Content[i+1].Decode(&text); err != nil {
				return err
			}
			out = append(out, Option{Key: key, Text: text})
		}
		*o = out
		return nil
	case yaml.SequenceNode:
		var list []Option
		if err := node.Decode(&list); err != nil {
			return err
		}
		*o = list
		return nil
	default:
		return fmt.Errorf("options: line %d: expected mapping or sequence", node.Line)
	}
}
