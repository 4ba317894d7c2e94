// Package events defines the realtime wire envelope
// {"event": "<name>", "data": {...}} and the event names.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/valyala/bytebufferpool"
)

var ErrBadFrame = errors.New("malformed frame")

// Encode renders one envelope. The returned slice is owned by the caller and
// may be shared by every connection the event is pushed to.
func Encode(name string, payload any) ([]byte, error) {
	quoted, err := json.Marshal(name)
	if err != nil {
		return nil, err
	}
	data := []byte("{}")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		data = b
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = append(buf.B, `{"event":`...)
	buf.B = append(buf.B, quoted...)
	buf.B = append(buf.B, `,"data":`...)
	buf.B = append(buf.B, data...)
	buf.B = append(buf.B, '}')

	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}

// Frame is a decoded inbound envelope. Data is inspected lazily with gjson.
type Frame struct {
	Name string
	Data gjson.Result
}

// Decode validates raw and extracts the event name and data.
func Decode(raw []byte) (Frame, error) {
	if !gjson.ValidBytes(raw) {
		return Frame{}, ErrBadFrame
	}
	name := gjson.GetBytes(raw, "event")
	if name.Type != gjson.String || name.Str == "" {
		return Frame{}, fmt.Errorf("%w: missing event name", ErrBadFrame)
	}
	return Frame{Name: name.Str, Data: gjson.GetBytes(raw, "data")}, nil
}

// Str returns the string at path inside data. A bare string payload (legacy
// clients send e.g. "register" with just the user id) is returned for path "".
func (f Frame) Str(path string) string {
	if path == "" {
		if f.Data.Type == gjson.String {
			return f.Data.Str
		}
		return ""
	}
	return f.Data.Get(path).String()
}

// Bind decodes data into v.
func (f Frame) Bind(v any) error {
	if !f.Data.Exists() {
		return fmt.Errorf("%w: missing data", ErrBadFrame)
	}
	if err := json.Unmarshal([]byte(f.Data.Raw), v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return nil
}
