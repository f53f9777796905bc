package marionette

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindCatalog(t *testing.T) {
	kinds := ErrorKinds()
	assert.Len(t, kinds, 28)
	seen := map[string]bool{}
	for _, k := range kinds {
		name := k.String()
		assert.False(t, seen[name], "duplicate identifier %q", name)
		seen[name] = true

		parsed, err := ParseErrorKind(name)
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	for _, name := range []string{"no such element", "invalid session id", "unknown error"} {
		assert.True(t, seen[name], name)
	}
}

func TestParseErrorKindRejectsUnknown(t *testing.T) {
	for _, name := range []string{"flooba", "", "No Such Element", "no_such_element"} {
		_, err := ParseErrorKind(name)
		assert.ErrorIs(t, err, ErrUnrecognizedErrorKind, name)
	}
}

func TestErrorRecordDefaults(t *testing.T) {
	var rec ErrorRecord
	require.NoError(t, json.Unmarshal([]byte(`{"error": "no such window"}`), &rec))
	assert.Equal(t, ErrorRecord{Kind: NoSuchWindow}, rec)

	require.NoError(t, json.Unmarshal([]byte(`{"error": "javascript error", "message": null, "stacktrace": "x"}`), &rec))
	assert.Equal(t, ErrorRecord{Kind: JavascriptError, Stack: "x"}, rec)

	assert.Error(t, json.Unmarshal([]byte(`{"error": "timeout", "message": 5}`), &rec))
	assert.Error(t, json.Unmarshal([]byte(`{"error": "timeout", "extra": true}`), &rec))
}

func TestErrorRecordString(t *testing.T) {
	assert.Equal(t, "timeout", ErrorRecord{Kind: Timeout}.String())
	assert.Equal(t, "no such element: #missing", ErrorRecord{Kind: NoSuchElement, Message: "#missing"}.String())
}

func TestInvalidErrorKindDoesNotEncode(t *testing.T) {
	_, err := json.Marshal(ErrorRecord{})
	assert.Error(t, err)
}

func TestScriptTimeoutKindAndValueAreDistinct(t *testing.T) {
	assert.Equal(t, "script timeout", ScriptTimeoutError.String())
	kind, err := ParseErrorKind("script timeout")
	require.NoError(t, err)
	assert.Equal(t, ScriptTimeoutError, kind)

	ms := uint64(30000)
	assert.Equal(t, &ms, Timeouts{Script: ScriptTimeout{Set: true, Value: &ms}}.Script.Value)
}

func TestErrorRecordEmptyDataDecodesAsNil(t *testing.T) {
	var rec ErrorRecord
	require.NoError(t, json.Unmarshal([]byte(`{"error": "unexpected alert open", "data": {}}`), &rec))
	assert.Nil(t, rec.Data)

	raw, err := json.Marshal(ErrorRecord{Kind: UnexpectedAlertOpen, Data: map[string]any{}})
	require.NoError(t, err)
	var back ErrorRecord
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, ErrorRecord{Kind: UnexpectedAlertOpen}, back)

	require.NoError(t, json.Unmarshal([]byte(`{"error": "unexpected alert open", "data": {"text": "hi"}}`), &rec))
	assert.Equal(t, map[string]any{"text": "hi"}, rec.Data)
}
