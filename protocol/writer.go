package protocol

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	ErrEmptyEnvelope   = errors.New("envelope has neither a control nor a data message")
	ErrUnknownControl  = errors.New("unknown control type")
	ErrInvalidDataJSON = errors.New("data is not valid json")
)

// Marshal serialises an Envelope into the text of a single frame.
func Marshal(e Envelope) ([]byte, error) {
	w := &writer{b: []byte(`{}`)}

	switch e.kind {
	case KindControl:
		w.set("t", string(KindControl))
		w.writeControl(e.control)

	case KindData:
		w.set("t", string(KindData))
		w.writeData(e.data)

	default:
		return nil, ErrEmptyEnvelope
	}

	if w.err != nil {
		return nil, w.err
	}

	return w.b, nil
}

// writer accumulates sjson edits, the first error stops all further edits.
type writer struct {
	b   []byte
	err error
}

func (w *writer) set(path string, value interface{}) {
	if w.err != nil {
		return
	}

	w.b, w.err = sjson.SetBytes(w.b, path, value)
}

func (w *writer) setRaw(path string, raw []byte) {
	if w.err != nil {
		return
	}

	w.b, w.err = sjson.SetRawBytes(w.b, path, raw)
}

func (w *writer) writeControl(c Control) {
	switch c.Type {
	case ControlHeader:
		w.set("d.t", string(ControlHeader))
		w.set("d.d.h", c.Header.Host)
		w.set("d.d.s", c.Header.SessionID)
		w.set("d.d.ts", c.Header.TimestampMs)
		w.set("d.d.v", c.Header.Version)

	case ControlRedirect:
		w.set("d.t", string(ControlRedirect))
		w.set("d.d", c.Redirect)

	default:
		if w.err == nil {
			w.err = fmt.Errorf("%w '%s'", ErrUnknownControl, c.Type)
		}
	}
}

func (w *writer) writeData(d DataMessage) {
	if d.RequestID != nil {
		w.set("d.r", *d.RequestID)
	}

	if d.Action != ActionNone {
		w.set("d.a", string(d.Action))
	}

	// The body is always present, even when empty
	w.setRaw("d.b", []byte(`{}`))

	if d.Body.Path != nil {
		w.set("d.b.p", *d.Body.Path)
	}

	if d.Body.Hash != nil {
		w.set("d.b.h", *d.Body.Hash)
	}

	if d.Body.Status != StatusNone {
		w.set("d.b.s", string(d.Body.Status))
	}

	if d.Body.Data != nil {
		if !gjson.ValidBytes(d.Body.Data) {
			if w.err == nil {
				w.err = ErrInvalidDataJSON
			}
			return
		}

		w.setRaw("d.b.d", d.Body.Data)
	}
}
