package marionette

import (
	"encoding/json"
	"errors"
	"math"
)

// Result is a successful reply from the host. Results are untagged on the
// wire; DecodeResult identifies them by shape.
type Result interface {
	isResult()
}

// BoolResult travels as {"value": bool}.
type BoolResult bool

// NullResult travels as {"value": null}.
type NullResult struct{}

// NewWindowResult describes a window opened by WebDriver:NewWindow.
type NewWindowResult struct {
	Handle string `json:"handle"`
	Type   string `json:"type"`
}

// WindowRectResult is a window position and size in whole CSS pixels.
type WindowRectResult struct {
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

// ElementRectResult is an element's bounding box in fractional CSS pixels.
type ElementRectResult struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// StringResult travels as {"value": string}.
type StringResult string

// StringsResult is a bare list of strings.
type StringsResult []string

// ElementResult travels as {"value": <web element>}.
type ElementResult struct {
	Element WebElement
}

// ElementsResult is a bare list of web elements.
type ElementsResult []WebElement

// CookiesResult is a bare list of cookies.
type CookiesResult []Cookie

// TimeoutsResult is a bare timeouts object.
type TimeoutsResult struct {
	Timeouts
}

// SessionResult is the reply to WebDriver:NewSession.
type SessionResult struct {
	SessionID    string
	Capabilities map[string]any
}

// ValueResult is any other {"value": ...} reply, such as a script result.
type ValueResult struct {
	Value any
}

func (BoolResult) isResult()        {}
func (NullResult) isResult()        {}
func (NewWindowResult) isResult()   {}
func (WindowRectResult) isResult()  {}
func (ElementRectResult) isResult() {}
func (StringResult) isResult()      {}
func (StringsResult) isResult()     {}
func (ElementResult) isResult()     {}
func (ElementsResult) isResult()    {}
func (CookiesResult) isResult()     {}
func (TimeoutsResult) isResult()    {}
func (SessionResult) isResult()     {}
func (ValueResult) isResult()       {}

func (r BoolResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]bool{"value": bool(r)})
}

func (NullResult) MarshalJSON() ([]byte, error) {
	return []byte(`{"value":null}`), nil
}

func (r ElementRectResult) MarshalJSON() ([]byte, error) {
	fields := [...]struct {
		key string
		v   float64
	}{{"x", r.X}, {"y", r.Y}, {"width", r.Width}, {"height", r.Height}}
	buf := []byte{'{'}
	for i, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return nil, errors.New("element rect: non-finite " + f.key)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '"')
		buf = append(buf, f.key...)
		buf = append(buf, '"', ':')
		buf = append(buf, formatFloat(f.v)...)
	}
	return append(buf, '}'), nil
}

func (r StringResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"value": string(r)})
}

func (r StringsResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(nonNilStrings(r))
}

func (r ElementResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]WebElement{"value": r.Element})
}

func (r ElementsResult) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]WebElement(r))
}

func (r CookiesResult) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Cookie(r))
}

func (r SessionResult) MarshalJSON() ([]byte, error) {
	caps := r.Capabilities
	if caps == nil {
		caps = map[string]any{}
	}
	return json.Marshal(struct {
		SessionID    string         `json:"sessionId"`
		Capabilities map[string]any `json:"capabilities"`
	}{r.SessionID, caps})
}

func (r ValueResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"value": r.Value})
}

// resultCandidates is the decode priority order. Earlier entries win when
// a payload fits more than one shape, so the order is part of the protocol.
var resultCandidates = []func(json.RawMessage) (Result, bool){
	matchBool,
	matchNull,
	matchNewWindow,
	matchWindowRect,
	matchElementRect,
	matchString,
	matchStrings,
	matchElement,
	matchElements,
	matchCookies,
	matchTimeouts,
	matchSession,
	matchValue,
}

// DecodeResult identifies a result by trying each catalogued shape in
// priority order.
func DecodeResult(raw json.RawMessage) (Result, error) {
	for _, candidate := range resultCandidates {
		if r, ok := candidate(raw); ok {
			return r, nil
		}
	}
	return nil, decodeErr("result", ErrUndecodableResult, "%.64s", raw)
}

// MarshalResult renders r in its wire shape.
func MarshalResult(r Result) ([]byte, error) {
	if r == nil {
		return nil, errors.New("marionette: nil result")
	}
	return json.Marshal(r)
}

// valueMember returns the "value" member of a {"value": ...} object.
func valueMember(raw json.RawMessage) (json.RawMessage, bool) {
	obj, ok := parseObject(raw)
	if !ok || len(obj) != 1 {
		return nil, false
	}
	v, ok := obj["value"]
	return v, ok
}

func matchBool(raw json.RawMessage) (Result, bool) {
	v, ok := valueMember(raw)
	if !ok || isNull(v) {
		return nil, false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return nil, false
	}
	return BoolResult(b), true
}

func matchNull(raw json.RawMessage) (Result, bool) {
	v, ok := valueMember(raw)
	if !ok || !isNull(v) {
		return nil, false
	}
	return NullResult{}, true
}

func matchNewWindow(raw json.RawMessage) (Result, bool) {
	obj, ok := parseObject(raw)
	if !ok || len(obj) != 2 {
		return nil, false
	}
	handle, ok1 := obj.string("handle")
	typ, ok2 := obj.string("type")
	if !ok1 || !ok2 {
		return nil, false
	}
	return NewWindowResult{Handle: handle, Type: typ}, true
}

func rectMembers(raw json.RawMessage) ([4]json.RawMessage, bool) {
	var out [4]json.RawMessage
	obj, ok := parseObject(raw)
	if !ok || len(obj) != 4 {
		return out, false
	}
	for i, key := range [...]string{"x", "y", "width", "height"} {
		if !obj.present(key) {
			return out, false
		}
		out[i] = obj[key]
	}
	return out, true
}

func matchWindowRect(raw json.RawMessage) (Result, bool) {
	members, ok := rectMembers(raw)
	if !ok {
		return nil, false
	}
	var vals [4]int32
	for i, m := range members {
		// A fractional or exponent literal fails here and falls through to ElementRect.
		if err := json.Unmarshal(m, &vals[i]); err != nil {
			return nil, false
		}
	}
	return WindowRectResult{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, true
}

func matchElementRect(raw json.RawMessage) (Result, bool) {
	members, ok := rectMembers(raw)
	if !ok {
		return nil, false
	}
	var vals [4]float64
	for i, m := range members {
		if err := json.Unmarshal(m, &vals[i]); err != nil {
			return nil, false
		}
	}
	return ElementRectResult{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, true
}

func matchString(raw json.RawMessage) (Result, bool) {
	v, ok := valueMember(raw)
	if !ok {
		return nil, false
	}
	s, ok := decodeString(v)
	if !ok {
		return nil, false
	}
	return StringResult(s), true
}

func matchStrings(raw json.RawMessage) (Result, bool) {
	elems, ok := decodeArray(raw)
	if !ok {
		return nil, false
	}
	out := make(StringsResult, 0, len(elems))
	for _, e := range elems {
		s, ok := decodeString(e)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func matchElement(raw json.RawMessage) (Result, bool) {
	v, ok := valueMember(raw)
	if !ok {
		return nil, false
	}
	var el WebElement
	if err := el.UnmarshalJSON(v); err != nil {
		return nil, false
	}
	return ElementResult{Element: el}, true
}

func matchElements(raw json.RawMessage) (Result, bool) {
	elems, ok := decodeArray(raw)
	if !ok {
		return nil, false
	}
	out := make(ElementsResult, len(elems))
	for i, e := range elems {
		if err := out[i].UnmarshalJSON(e); err != nil {
			return nil, false
		}
	}
	return out, true
}

func matchCookies(raw json.RawMessage) (Result, bool) {
	elems, ok := decodeArray(raw)
	if !ok {
		return nil, false
	}
	out := make(CookiesResult, len(elems))
	for i, e := range elems {
		if err := out[i].UnmarshalJSON(e); err != nil {
			return nil, false
		}
	}
	return out, true
}

func matchTimeouts(raw json.RawMessage) (Result, bool) {
	var t Timeouts
	if err := t.UnmarshalJSON(raw); err != nil {
		return nil, false
	}
	return TimeoutsResult{Timeouts: t}, true
}

func matchSession(raw json.RawMessage) (Result, bool) {
	obj, ok := parseObject(raw)
	if !ok || len(obj) != 2 || !obj.present("capabilities") {
		return nil, false
	}
	id, ok := obj.string("sessionId")
	if !ok {
		return nil, false
	}
	caps, ok := parseObject(obj["capabilities"])
	if !ok {
		return nil, false
	}
	var out SessionResult
	out.SessionID = id
	if len(caps) > 0 {
		if err := json.Unmarshal(obj["capabilities"], &out.Capabilities); err != nil {
			return nil, false
		}
	}
	return out, true
}

func matchValue(raw json.RawMessage) (Result, bool) {
	v, ok := valueMember(raw)
	if !ok {
		return nil, false
	}
	var out ValueResult
	if err := json.Unmarshal(v, &out.Value); err != nil {
		return nil, false
	}
	return out, true
}
