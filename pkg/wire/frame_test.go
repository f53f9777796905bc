package wire

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	assert.Equal(t, []byte(`2:[]`), Encode([]byte(`[]`)))
	assert.Equal(t, []byte(`0:`), Encode(nil))
}

func TestReadWriteRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte(`[0,1,"WebDriver:GetTitle",{}]`),
		[]byte("12:34:56"),
		[]byte("0123456789"),
		bytes.Repeat([]byte{0xff, ':'}, 4096),
	}
	var stream bytes.Buffer
	for _, p := range payloads {
		require.NoError(t, WriteFrame(&stream, p))
	}
	for i, want := range payloads {
		got, err := ReadFrame(&stream)
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want, got, "frame %d", i)
	}
	_, err := ReadFrame(&stream)
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, err, ErrFraming)
}

func TestReadFrameDoesNotConsumeNextFrame(t *testing.T) {
	// strings.Reader is an io.ByteReader; iotest-style plain readers take the other path.
	readers := map[string]func(string) io.Reader{
		"byte reader": func(s string) io.Reader { return strings.NewReader(s) },
		"plain reader": func(s string) io.Reader {
			return struct{ io.Reader }{strings.NewReader(s)}
		},
	}
	for name, mk := range readers {
		t.Run(name, func(t *testing.T) {
			r := mk("3:abc5:hello")
			first, err := ReadFrame(r)
			require.NoError(t, err)
			assert.Equal(t, "abc", string(first))
			rest, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, "5:hello", string(rest))
		})
	}
}

func TestReadFrameErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"non digit", "1x:a"},
		{"sign", "-1:a"},
		{"empty prefix", ":abc"},
		{"leading zero", "03:abc"},
		{"closed inside prefix", "12"},
		{"closed inside payload", "10:short"},
		{"oversized", "99999999999999999999:"},
		{"empty stream", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(strings.NewReader(tt.input))
			require.Error(t, err)
			var fe *FramingError
			assert.True(t, errors.As(err, &fe))
			assert.ErrorIs(t, err, ErrFraming)
		})
	}
}

func TestReadFrameTruncatedPayloadIsUnexpectedEOF(t *testing.T) {
	_, err := ReadFrame(strings.NewReader("5:ab"))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameLimit(t *testing.T) {
	_, err := ReadFrameLimit(strings.NewReader("11:hello world"), 10)
	assert.ErrorIs(t, err, ErrFraming)

	got, err := ReadFrameLimit(strings.NewReader("10:helloworld"), 10)
	require.NoError(t, err)
	assert.Equal(t, "helloworld", string(got))

	got, err = ReadFrameLimit(strings.NewReader("0:"), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadFrameLimitRejectsPrefixOverflow(t *testing.T) {
	for _, limit := range []int{math.MaxInt, math.MaxInt / 10, 1 << 40} {
		_, err := ReadFrameLimit(strings.NewReader("99999999999999999999:x"), limit)
		assert.ErrorIs(t, err, ErrFraming, "limit %d", limit)
	}

	// A single digit above a tiny limit is still rejected.
	_, err := ReadFrameLimit(strings.NewReader("9:abcdefghi"), 5)
	assert.ErrorIs(t, err, ErrFraming)

	got, err := ReadFrameLimit(strings.NewReader("5:abcde"), 5)
	require.NoError(t, err)
	assert.Equal(t, "abcde", string(got))
}
