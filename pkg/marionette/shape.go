package marionette

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
)

var (
	jsonNull    = []byte("null")
	emptyObject = json.RawMessage("{}")
)

// object is a JSON object whose member values are left undecoded.
type object map[string]json.RawMessage

func parseObject(raw []byte) (object, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	if obj == nil {
		obj = object{}
	}
	return obj, true
}

// present reports whether key exists with a non-null value.
func (o object) present(key string) bool {
	v, ok := o[key]
	return ok && !isNull(v)
}

// only reports whether every key of o is one of allowed.
func (o object) only(allowed ...string) bool {
	for key := range o {
		found := false
		for _, a := range allowed {
			if key == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (o object) string(key string) (string, bool) {
	return decodeString(o[key])
}

func isNull(raw []byte) bool {
	return bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

func decodeString(raw []byte) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// decodeUint accepts only a plain decimal integer literal that fits in bits.
// Fractions, exponents, signs and null are rejected.
func decodeUint(raw []byte, bits int) (uint64, bool) {
	v, err := strconv.ParseUint(string(bytes.TrimSpace(raw)), 10, bits)
	if err != nil {
		return 0, false
	}
	return v, true
}

// decodeArray splits a JSON array into its elements. null is not an array.
func decodeArray(raw []byte) ([]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, false
	}
	return elems, true
}

// decodeStrict unmarshals raw into v, failing on unknown object keys and
// on trailing data.
func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after value")
	}
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nilIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}
