package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Params carries extra request parameters passed through verbatim.
type Params map[string]any

// merge overlays named on top of extra, so explicit arguments win.
func merge(named Params, extra []Params) Params {
	out := Params{}
	for _, e := range extra {
		for k, v := range e {
			out[k] = v
		}
	}
	for k, v := range named {
		out[k] = v
	}
	return out
}

// Int is an integer the node may encode as a JSON string or number.
type Int int64

func (i *Int) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return err
	}
	if s == "" {
		*i = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*i = Int(n)
	return nil
}

// Bool accepts true/false, "true"/"false" and "1"/"0", in quotes or not.
type Bool bool

func (b *Bool) UnmarshalJSON(data []byte) error {
	s, err := unquote(data)
	if err != nil {
		return err
	}
	switch s {
	case "true", "1":
		*b = true
	case "false", "0", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %q", s)
	}
	return nil
}

// List decodes a JSON array. The node sends an empty string for empty lists, which decodes to nil.
type List[T any] []T

func (l *List[T]) UnmarshalJSON(data []byte) error {
	if isEmptyValue(data) {
		*l = nil
		return nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// Map decodes a JSON object. An empty string decodes to nil, as for List.
type Map[V any] map[string]V

func (m *Map[V]) UnmarshalJSON(data []byte) error {
	if isEmptyValue(data) {
		*m = nil
		return nil
	}
	var items map[string]V
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*m = items
	return nil
}

func isEmptyValue(data []byte) bool {
	data = bytes.TrimSpace(data)
	return bytes.Equal(data, []byte(`""`)) || bytes.Equal(data, []byte("null"))
}

func unquote(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return string(data), nil
}
