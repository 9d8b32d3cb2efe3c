// Package uds carries NDJSON messages between logcatoteld and its local
// clients over a Unix domain socket.
package uds

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

var seq atomic.Uint64

// MsgType identifies the kind of message.
type MsgType string

const (
	MsgTypeReq MsgType = "req"
	MsgTypeRes MsgType = "res"
	MsgTypeEvt MsgType = "evt"
)

// Message is the envelope for every line on the socket.
type Message struct {
	Type   MsgType         `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Methods and events.
const (
	MethodPing   = "Ping"
	MethodStatus = "Status"

	EventLogcatLine  = "logcat.line"
	EventIngestStats = "ingest.stats"
)

// PingResponse is the response to a Ping request.
type PingResponse struct {
	Pong    bool   `json:"pong"`
	Version string `json:"version,omitempty"`
}

func encode(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}

func newMessage(typ MsgType, id, method string, data any) (Message, error) {
	raw, err := encode(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, ID: id, Method: method, Data: raw}, nil
}

// NewRequest creates a request with a unique ID.
func NewRequest(method string, data any) (Message, error) {
	return newMessage(MsgTypeReq, fmt.Sprintf("req-%d", seq.Add(1)), method, data)
}

// NewResponse answers the request with the given ID.
func NewResponse(reqID, method string, data any) (Message, error) {
	return newMessage(MsgTypeRes, reqID, method, data)
}

// NewErrorResponse answers a request with an error string.
func NewErrorResponse(reqID, method, errMsg string) Message {
	return Message{Type: MsgTypeRes, ID: reqID, Method: method, Error: errMsg}
}

// NewEvent creates a server-pushed event.
func NewEvent(method string, data any) (Message, error) {
	return newMessage(MsgTypeEvt, fmt.Sprintf("evt-%d", seq.Add(1)), method, data)
}

// UnmarshalData decodes the payload into v.
func (m Message) UnmarshalData(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: empty payload", m.Method)
	}
	return json.Unmarshal(m.Data, v)
}
