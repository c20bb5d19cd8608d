package protocol

import "encoding/json"

// Kind is the one letter discriminator of an Envelope.
type Kind string

const (
	KindControl Kind = "c"
	KindData    Kind = "d"
)

// ControlType is the one letter discriminator of a Control message.
type ControlType string

const (
	ControlHeader   ControlType = "h"
	ControlRedirect ControlType = "r"
)

type Action string

const (
	ActionNone  Action = ""
	ActionQuery Action = "q"
	ActionData  Action = "d"
)

type Status string

const (
	StatusNone Status = ""
	StatusOk   Status = "ok"
	StatusFail Status = "fail"
)

// Header is the handshake the server sends once, as the first frame of every
// connection.
type Header struct {
	Host        string
	SessionID   string
	TimestampMs uint64
	Version     string
}

type Control struct {
	Type ControlType

	// Header is set when Type is ControlHeader
	Header Header

	// Redirect is the host to reconnect to when Type is ControlRedirect
	Redirect string
}

type Body struct {
	Path   *string
	Hash   *string
	Status Status
	Data   json.RawMessage
}

type DataMessage struct {
	RequestID *uint64
	Action    Action
	Body      Body
}

// Envelope is a single decoded frame. Exactly one of the control or data
// variants is set; use NewControl and NewData to build one.
type Envelope struct {
	kind    Kind
	control Control
	data    DataMessage
}

func NewControl(c Control) Envelope {
	return Envelope{kind: KindControl, control: c}
}

func NewData(d DataMessage) Envelope {
	return Envelope{kind: KindData, data: d}
}

func (e Envelope) Kind() Kind {
	return e.kind
}

func (e Envelope) Control() (Control, bool) {
	return e.control, e.kind == KindControl
}

func (e Envelope) Data() (DataMessage, bool) {
	return e.data, e.kind == KindData
}

// NewQuery builds the request for path. The hash is always sent empty.
func NewQuery(requestID uint64, path string) Envelope {
	return NewData(DataMessage{
		RequestID: &requestID,
		Action:    ActionQuery,
		Body: Body{
			Path: String(path),
			Hash: String(""),
		},
	})
}

func String(s string) *string {
	return &s
}

func Uint64(v uint64) *uint64 {
	return &v
}
