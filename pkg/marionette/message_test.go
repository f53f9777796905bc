package marionette

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeIDBounds(t *testing.T) {
	tests := []struct {
		raw    string
		wantID uint32
		err    error
	}{
		{`[0, 0, "WebDriver:GetTitle", {}]`, 0, nil},
		{`[0, 4294967295, "WebDriver:GetTitle", {}]`, MaxID, nil},
		{`[0, 4294967296, "WebDriver:GetTitle", {}]`, 0, ErrInvalidID},
		{`[0, -1, "WebDriver:GetTitle", {}]`, 0, ErrInvalidID},
		{`[0, 1.0, "WebDriver:GetTitle", {}]`, 0, ErrInvalidID},
		{`[0, "1", "WebDriver:GetTitle", {}]`, 0, ErrInvalidID},
		{`[0, null, "WebDriver:GetTitle", {}]`, 0, ErrInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			msg, err := Decode([]byte(tt.raw))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, msg.MessageID())
		})
	}
}

func TestDecodeResponseExclusivity(t *testing.T) {
	msg, err := Decode([]byte(`[1, 1, {"error":"timeout","message":"","stacktrace":""}, null]`))
	require.NoError(t, err)
	resp, ok := msg.(*Response)
	require.True(t, ok)
	require.True(t, resp.IsError())
	assert.Equal(t, ErrorRecord{Kind: Timeout}, *resp.Error)

	msg, err = Decode([]byte(`[1, 1, null, {"value": null}]`))
	require.NoError(t, err)
	assert.Equal(t, &Response{ID: 1, Result: NullResult{}}, msg)

	_, err = Decode([]byte(`[1, 1, {"error":"timeout","message":"","stacktrace":""}, {"value":null}]`))
	assert.ErrorIs(t, err, ErrConflictingResponseFields)

	_, err = Decode([]byte(`[1, 1, null, null]`))
	assert.ErrorIs(t, err, ErrUndecodableResult)
}

func TestDecodeStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{"object", `{"id": 1}`, ErrNotAMessage},
		{"null", `null`, ErrNotAMessage},
		{"invalid json", `[0, 1,`, ErrNotAMessage},
		{"three fields", `[0, 1, "WebDriver:GetTitle"]`, ErrTruncatedMessage},
		{"empty", `[]`, ErrTruncatedMessage},
		{"five fields", `[0, 1, "WebDriver:GetTitle", {}, null]`, ErrMessageArity},
		{"direction 2", `[2, 1, "WebDriver:GetTitle", {}]`, ErrInvalidDirection},
		{"direction string", `["0", 1, "WebDriver:GetTitle", {}]`, ErrInvalidDirection},
		{"name not string", `[0, 1, 5, {}]`, ErrInvalidCommandName},
		{"name null", `[0, 1, null, {}]`, ErrInvalidCommandName},
		{"unknown name", `[0, 1, "hooba", {}]`, ErrUnknownCommand},
		{"unexpected params", `[0, 1, "WebDriver:GetTimeouts", {"value": true}]`, ErrInvalidParameterShape},
		{"params array", `[0, 1, "WebDriver:GetTitle", []]`, ErrInvalidParameterShape},
		{"params string", `[0, 1, "WebDriver:GetTitle", "x"]`, ErrInvalidParameterShape},
		{"unknown error kind", `[1, 1, {"error": "flooba", "message": "", "stacktrace": ""}, null]`, ErrUnrecognizedErrorKind},
		{"error not object", `[1, 1, "timeout", null]`, ErrInvalidErrorRecord},
		{"error without kind", `[1, 1, {"message": "x"}, null]`, ErrInvalidErrorRecord},
		{"undecodable result", `[1, 1, null, 17]`, ErrUndecodableResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			var de *DecodeError
			assert.True(t, errors.As(err, &de))
		})
	}
}

func TestDecodeNullParamsIsBareName(t *testing.T) {
	msg, err := Decode([]byte(`[0, 3, "WebDriver:GetTimeouts", null]`))
	require.NoError(t, err)
	assert.Equal(t, &Request{ID: 3, Command: GetTimeouts{}}, msg)
}

func TestEncodeRequest(t *testing.T) {
	data, err := Encode(NewRequest(1, GetTitle{}))
	require.NoError(t, err)
	assert.JSONEq(t, `[0, 1, "WebDriver:GetTitle", {}]`, string(data))

	data, err = Encode(NewRequest(2, Navigate{URL: "https://example.com"}))
	require.NoError(t, err)
	assert.JSONEq(t, `[0, 2, "WebDriver:Navigate", {"url": "https://example.com"}]`, string(data))
}

func TestEncodeResponse(t *testing.T) {
	data, err := Encode(ResultResponse(4, StringResult("title")))
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 4, null, {"value": "title"}]`, string(data))

	data, err = Encode(ErrorResponse(5, ErrorRecord{Kind: NoSuchElement, Message: "gone", Stack: "at foo"}))
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 5, {"error": "no such element", "message": "gone", "stacktrace": "at foo"}, null]`, string(data))

	_, err = Encode(&Response{ID: 6, Result: NullResult{}, Error: &ErrorRecord{Kind: Timeout}})
	assert.ErrorIs(t, err, ErrConflictingResponseFields)

	_, err = Encode(&Response{ID: 6})
	assert.Error(t, err)
}

func TestResponseRoundTrip(t *testing.T) {
	messages := []Message{
		ResultResponse(0, BoolResult(true)),
		ResultResponse(MaxID, WindowRectResult{Width: 10, Height: 10}),
		ErrorResponse(9, ErrorRecord{Kind: UnexpectedAlertOpen, Message: "alert", Data: map[string]any{"text": "hi"}}),
	}
	for _, kind := range ErrorKinds() {
		messages = append(messages, ErrorResponse(1, ErrorRecord{Kind: kind, Message: kind.String()}))
	}
	for _, m := range messages {
		data, err := Encode(m)
		require.NoError(t, err)
		got, err := Decode(data)
		require.NoError(t, err, "payload %s", data)
		assert.Equal(t, m, got)
	}
}

func TestDecodeHeader(t *testing.T) {
	dir, id, err := DecodeHeader([]byte(`[0, 5, "hooba", {}]`))
	require.NoError(t, err)
	assert.Equal(t, DirectionRequest, dir)
	assert.Equal(t, uint32(5), id)

	dir, id, err = DecodeHeader([]byte(`[1, 7, null, 17]`))
	require.NoError(t, err)
	assert.Equal(t, DirectionResponse, dir)
	assert.Equal(t, uint32(7), id)

	_, _, err = DecodeHeader([]byte(`[2, 1, null, null]`))
	assert.ErrorIs(t, err, ErrInvalidDirection)
	_, _, err = DecodeHeader([]byte(`[0, 1, "WebDriver:GetTitle"]`))
	assert.ErrorIs(t, err, ErrTruncatedMessage)
}
