package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// object is a JSON object decoded one level deep so that every required
// field can be checked for presence and primitive type before use.
type object map[string]json.RawMessage

func isNull(b []byte) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}

func decodeObject(b []byte) (object, error) {
	if len(bytes.TrimSpace(b)) == 0 || isNull(b) {
		return nil, malformed("", "expected object, got null")
	}
	var o object
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, malformed("", "expected object")
	}
	return o, nil
}

// present reports a field that exists and is not JSON null.
func (o object) present(name string) (json.RawMessage, bool) {
	raw, ok := o[name]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

func (o object) str(name string) (string, error) {
	raw, ok := o.present(name)
	if !ok {
		return "", malformed(name, "required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", malformed(name, "expected string")
	}
	return s, nil
}

func (o object) optStr(name string) (*string, error) {
	if _, ok := o.present(name); !ok {
		return nil, nil
	}
	s, err := o.str(name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (o object) integer(name string) (int, error) {
	raw, ok := o.present(name)
	if !ok {
		return 0, malformed(name, "required")
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, malformed(name, "expected integer")
	}
	return n, nil
}

func (o object) optInt(name string) (*int, error) {
	if _, ok := o.present(name); !ok {
		return nil, nil
	}
	n, err := o.integer(name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (o object) count(name string) (int, error) {
	n, err := o.integer(name)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, malformed(name, "must be non-negative")
	}
	return n, nil
}

func (o object) boolean(name string) (bool, error) {
	raw, ok := o.present(name)
	if !ok {
		return false, malformed(name, "required")
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, malformed(name, "expected boolean")
	}
	return b, nil
}

func (o object) optBool(name string) (bool, error) {
	if _, ok := o.present(name); !ok {
		return false, nil
	}
	return o.boolean(name)
}

func (o object) timestamp(name string) (time.Time, error) {
	s, err := o.str(name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, malformed(name, "expected RFC 3339 timestamp")
	}
	return t, nil
}

// into decodes a required nested value, qualifying any field error with name.
func (o object) into(name string, v any) error {
	raw, ok := o.present(name)
	if !ok {
		return malformed(name, "required")
	}
	return decodeInto(name, raw, v)
}

// optInto decodes a nested value if present; it reports whether it was.
func (o object) optInto(name string, v any) (bool, error) {
	raw, ok := o.present(name)
	if !ok {
		return false, nil
	}
	return true, decodeInto(name, raw, v)
}

func (o object) array(name string) ([]json.RawMessage, error) {
	raw, ok := o.present(name)
	if !ok {
		return nil, malformed(name, "required")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, malformed(name, "expected array")
	}
	return items, nil
}

func (o object) cards(name string) ([]Card, error) {
	items, err := o.array(name)
	if err != nil {
		return nil, err
	}
	out := make([]Card, 0, len(items))
	for i, raw := range items {
		var c Card
		if err := c.UnmarshalJSON(raw); err != nil {
			return nil, within(fmt.Sprintf("%s[%d]", name, i), err)
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeInto(name string, raw json.RawMessage, v any) error {
	if u, ok := v.(json.Unmarshaler); ok {
		if err := u.UnmarshalJSON(raw); err != nil {
			return within(name, err)
		}
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return within(name, malformed("", err.Error()))
	}
	return nil
}

// Decode unmarshals data into v, guaranteeing that any failure is reported
// as a MalformedPayloadError.
func Decode(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var mp *MalformedPayloadError
	if errors.As(err, &mp) {
		return mp
	}
	return malformed("", err.Error())
}
