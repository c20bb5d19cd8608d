package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// Unmarshal parses the text of a single, already reassembled, frame.
//
// Every failure wraps ErrProtocolViolation.
func Unmarshal(data []byte) (Envelope, error) {
	if !gjson.ValidBytes(data) {
		return Envelope{}, violation("malformed json '%s'", preview(data))
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Envelope{}, violation("frame is not an object '%s'", preview(data))
	}

	kind := root.Get("t")
	if kind.Type != gjson.String {
		return Envelope{}, violation("frame has no 't' discriminator")
	}

	switch Kind(kind.Str) {
	case KindControl:
		c, err := parseControl(root.Get("d"))
		if err != nil {
			return Envelope{}, err
		}
		return NewControl(c), nil

	case KindData:
		d, err := parseData(root.Get("d"))
		if err != nil {
			return Envelope{}, err
		}
		return NewData(d), nil

	default:
		return Envelope{}, violation("unknown frame kind '%s'", kind.Str)
	}
}

func parseControl(r gjson.Result) (Control, error) {
	if !r.IsObject() {
		return Control{}, violation("control body is not an object")
	}

	t := r.Get("t")
	switch ControlType(t.String()) {
	case ControlHeader:
		h := r.Get("d")
		if !h.IsObject() {
			return Control{}, violation("header body is not an object")
		}

		var (
			header Header
			err    error
		)

		if header.Host, err = requiredString(h, "h"); err != nil {
			return Control{}, err
		}

		if header.SessionID, err = requiredString(h, "s"); err != nil {
			return Control{}, err
		}

		if header.Version, err = requiredString(h, "v"); err != nil {
			return Control{}, err
		}

		ts := h.Get("ts")
		if !ts.Exists() {
			return Control{}, violation("header is missing 'ts'")
		}

		if header.TimestampMs, err = parseUint(ts); err != nil {
			return Control{}, err
		}

		return Control{Type: ControlHeader, Header: header}, nil

	case ControlRedirect:
		host, err := requiredString(r, "d")
		if err != nil {
			return Control{}, err
		}

		return Control{Type: ControlRedirect, Redirect: host}, nil

	default:
		return Control{}, violation("unknown control type '%s'", t.String())
	}
}

func parseData(r gjson.Result) (DataMessage, error) {
	if !r.IsObject() {
		return DataMessage{}, violation("data body is not an object")
	}

	var msg DataMessage

	if id := r.Get("r"); present(id) {
		v, err := parseUint(id)
		if err != nil {
			return DataMessage{}, err
		}
		msg.RequestID = &v
	}

	if a := r.Get("a"); present(a) {
		switch Action(a.String()) {
		case ActionQuery, ActionData:
			msg.Action = Action(a.Str)
		default:
			return DataMessage{}, violation("unknown action '%s'", a.Raw)
		}
	}

	b := r.Get("b")
	if !b.IsObject() {
		return DataMessage{}, violation("data message has no body")
	}

	var err error

	if msg.Body.Path, err = optionalString(b, "p"); err != nil {
		return DataMessage{}, err
	}

	if msg.Body.Hash, err = optionalString(b, "h"); err != nil {
		return DataMessage{}, err
	}

	if s := b.Get("s"); present(s) {
		switch Status(s.String()) {
		case StatusOk, StatusFail:
			msg.Body.Status = Status(s.Str)
		default:
			return DataMessage{}, violation("unknown status '%s'", s.Raw)
		}
	}

	if d := b.Get("d"); present(d) {
		msg.Body.Data = json.RawMessage(d.Raw)
	}

	return msg, nil
}

// present treats an explicit null the same as a missing field
func present(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null
}

func requiredString(r gjson.Result, key string) (string, error) {
	v := r.Get(key)
	if v.Type != gjson.String {
		return "", violation("expected '%s' to be a string", key)
	}

	return v.Str, nil
}

func optionalString(r gjson.Result, key string) (*string, error) {
	v := r.Get(key)
	if !present(v) {
		return nil, nil
	}

	if v.Type != gjson.String {
		return nil, violation("expected '%s' to be a string", key)
	}

	return String(v.Str), nil
}

func parseUint(r gjson.Result) (uint64, error) {
	if r.Type != gjson.Number {
		return 0, violation("expected a number, got '%s'", r.Raw)
	}

	v, err := strconv.ParseUint(r.Raw, 10, 64)
	if err != nil {
		return 0, violation("expected an unsigned integer, got '%s'", r.Raw)
	}

	return v, nil
}

func violation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

func preview(data []byte) string {
	const max = 64

	if len(data) > max {
		return string(data[:max]) + "..."
	}

	return string(data)
}
