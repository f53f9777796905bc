package marionette

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// Direction is the first field of every message.
type Direction uint8

const (
	DirectionRequest  Direction = 0
	DirectionResponse Direction = 1
)

// MaxID is the largest message id.
const MaxID = math.MaxUint32

// Message is a decoded *Request or *Response.
type Message interface {
	MessageID() uint32
	isMessage()
}

// Request is a command sent to the host.
type Request struct {
	ID      uint32
	Command Command
}

// Response is the host's reply. Exactly one of Result and Error is set.
type Response struct {
	ID     uint32
	Result Result
	Error  *ErrorRecord
}

func (r *Request) MessageID() uint32  { return r.ID }
func (r *Response) MessageID() uint32 { return r.ID }
func (*Request) isMessage()           {}
func (*Response) isMessage()          {}

// NewRequest pairs a command with a message id.
func NewRequest(id uint32, cmd Command) *Request {
	return &Request{ID: id, Command: cmd}
}

// ResultResponse builds a successful response.
func ResultResponse(id uint32, r Result) *Response {
	return &Response{ID: id, Result: r}
}

// ErrorResponse builds a host error response.
func ErrorResponse(id uint32, e ErrorRecord) *Response {
	return &Response{ID: id, Error: &e}
}

// IsError reports whether the host answered with an error.
func (r *Response) IsError() bool { return r.Error != nil }

func (r *Request) MarshalJSON() ([]byte, error) {
	name, params, err := encodeCommand(r.Command)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = emptyObject
	}
	return json.Marshal([]any{DirectionRequest, r.ID, name, params})
}

func (r *Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.Error != nil && r.Result != nil:
		return nil, fmt.Errorf("marionette: encode response %d: %w", r.ID, ErrConflictingResponseFields)
	case r.Error != nil:
		return json.Marshal([]any{DirectionResponse, r.ID, r.Error, nil})
	case r.Result != nil:
		result, err := MarshalResult(r.Result)
		if err != nil {
			return nil, err
		}
		return json.Marshal([]any{DirectionResponse, r.ID, nil, json.RawMessage(result)})
	default:
		return nil, fmt.Errorf("marionette: encode response %d: neither result nor error", r.ID)
	}
}

// Encode renders m as a JSON message array.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("marionette: nil message")
	}
	return json.Marshal(m)
}

// Decode parses one message payload. Failures are *DecodeError values
// wrapping one of the package's sentinel errors.
func Decode(data []byte) (Message, error) {
	fields, dir, id, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	if dir == DirectionRequest {
		return decodeRequest(id, fields[2], fields[3])
	}
	return decodeResponse(id, fields[2], fields[3])
}

// DecodeHeader checks the envelope of a message payload and returns its
// direction and id without decoding the name or body fields.
func DecodeHeader(data []byte) (Direction, uint32, error) {
	_, dir, id, err := decodeEnvelope(data)
	return dir, id, err
}

func decodeEnvelope(data []byte) ([]json.RawMessage, Direction, uint32, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, 0, 0, decodeErr("message", ErrNotAMessage, "expected a JSON array")
	}
	var fields []json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, 0, 0, decodeErr("message", ErrNotAMessage, "%v", err)
	}
	switch {
	case len(fields) < 4:
		return nil, 0, 0, decodeErr("message", ErrTruncatedMessage, "%d of 4 fields", len(fields))
	case len(fields) > 4:
		return nil, 0, 0, decodeErr("message", ErrMessageArity, "%d fields", len(fields))
	}
	dir, ok := decodeUint(fields[0], 8)
	if !ok || dir > uint64(DirectionResponse) {
		return nil, 0, 0, decodeErr("direction", ErrInvalidDirection, "%s", fields[0])
	}
	id, ok := decodeUint(fields[1], 32)
	if !ok {
		return nil, 0, 0, decodeErr("id", ErrInvalidID, "%s", fields[1])
	}
	return fields, Direction(dir), uint32(id), nil
}

func decodeRequest(id uint32, nameRaw, params json.RawMessage) (*Request, error) {
	if !utf8.Valid(nameRaw) {
		return nil, decodeErr("name", ErrInvalidCommandName, "not valid UTF-8")
	}
	name, ok := decodeString(nameRaw)
	if !ok {
		return nil, decodeErr("name", ErrInvalidCommandName, "%.64s", nameRaw)
	}
	cmd, err := decodeCommand(name, params)
	if err != nil {
		return nil, err
	}
	return &Request{ID: id, Command: cmd}, nil
}

func decodeResponse(id uint32, errRaw, resultRaw json.RawMessage) (*Response, error) {
	if !isNull(errRaw) {
		var rec ErrorRecord
		if err := rec.UnmarshalJSON(errRaw); err != nil {
			return nil, err
		}
		if !isNull(resultRaw) {
			return nil, decodeErr("result", ErrConflictingResponseFields, "response %d carries an error and a result", id)
		}
		return &Response{ID: id, Error: &rec}, nil
	}
	result, err := DecodeResult(resultRaw)
	if err != nil {
		return nil, err
	}
	return &Response{ID: id, Result: result}, nil
}
