package marionette

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ElementKey is the object key that marks a web element reference.
const ElementKey = "element-6066-11e4-a52e-4f735466cecf"

// WebElement is an opaque handle to an element in the browser.
type WebElement struct {
	ID string
}

func (e WebElement) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{ElementKey: e.ID})
}

func (e *WebElement) UnmarshalJSON(data []byte) error {
	obj, ok := parseObject(data)
	if !ok || len(obj) != 1 {
		return errors.New("web element: expected single-key object")
	}
	id, ok := obj.string(ElementKey)
	if !ok {
		return fmt.Errorf("web element: missing %q", ElementKey)
	}
	e.ID = id
	return nil
}

// Cookie is a browser cookie. Expiry is in seconds since the epoch.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Path     *string `json:"path,omitempty"`
	Domain   *string `json:"domain,omitempty"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
	Expiry   *uint64 `json:"expiry,omitempty"`
	SameSite *string `json:"sameSite,omitempty"`
}

func (c *Cookie) UnmarshalJSON(data []byte) error {
	obj, ok := parseObject(data)
	if !ok {
		return errors.New("cookie: expected object")
	}
	if !obj.present("name") || !obj.present("value") {
		return errors.New("cookie: name and value are required")
	}
	type plain Cookie
	var p plain
	if err := decodeStrict(data, &p); err != nil {
		return fmt.Errorf("cookie: %w", err)
	}
	*c = Cookie(p)
	return nil
}

// ScriptTimeout is the script timeout of a Timeouts value. It is either
// unset, explicitly cleared (Set with a nil Value) or a duration in ms.
type ScriptTimeout struct {
	Set   bool
	Value *uint64
}

// Timeouts holds session timeouts in milliseconds. Nil fields are unset.
type Timeouts struct {
	Implicit *uint64
	PageLoad *uint64
	Script   ScriptTimeout
}

func (t Timeouts) MarshalJSON() ([]byte, error) {
	wire := struct {
		Implicit *uint64         `json:"implicit,omitempty"`
		PageLoad *uint64         `json:"pageLoad,omitempty"`
		Script   json.RawMessage `json:"script,omitempty"`
	}{Implicit: t.Implicit, PageLoad: t.PageLoad}
	if t.Script.Set {
		wire.Script = jsonNull
		if t.Script.Value != nil {
			wire.Script = strconv.AppendUint(nil, *t.Script.Value, 10)
		}
	}
	return json.Marshal(wire)
}

func (t *Timeouts) UnmarshalJSON(data []byte) error {
	obj, ok := parseObject(data)
	if !ok || !obj.only("implicit", "pageLoad", "script") {
		return errors.New("timeouts: expected object with implicit, pageLoad, script")
	}
	var out Timeouts
	for key, dst := range map[string]**uint64{"implicit": &out.Implicit, "pageLoad": &out.PageLoad} {
		if !obj.present(key) {
			continue
		}
		v, ok := decodeUint(obj[key], 64)
		if !ok {
			return fmt.Errorf("timeouts: %s is not an unsigned integer", key)
		}
		*dst = &v
	}
	if raw, ok := obj["script"]; ok {
		out.Script.Set = true
		if !isNull(raw) {
			v, ok := decodeUint(raw, 64)
			if !ok {
				return errors.New("timeouts: script is not an unsigned integer")
			}
			out.Script.Value = &v
		}
	}
	*t = out
	return nil
}

// Frame references a browsing context: a frame index, a frame element, or
// the top-level context when both fields are nil.
type Frame struct {
	Index   *uint16
	Element *string
}

// FrameIndex references the nth child frame.
func FrameIndex(n uint16) Frame { return Frame{Index: &n} }

// FrameElement references the frame owning the given element.
func FrameElement(id string) Frame { return Frame{Element: &id} }

// TopFrame references the top-level browsing context.
func TopFrame() Frame { return Frame{} }

// IsTop reports whether f references the top-level browsing context.
func (f Frame) IsTop() bool { return f.Index == nil && f.Element == nil }

func (f Frame) MarshalJSON() ([]byte, error) {
	switch {
	case f.Index != nil && f.Element != nil:
		return nil, errors.New("frame: index and element are mutually exclusive")
	case f.Index != nil:
		return json.Marshal(map[string]uint16{"id": *f.Index})
	case f.Element != nil:
		return json.Marshal(map[string]string{"element": *f.Element})
	default:
		return []byte(`{"id":null}`), nil
	}
}

func (f *Frame) UnmarshalJSON(data []byte) error {
	obj, ok := parseObject(data)
	if !ok || !obj.only("id", "element") {
		return errors.New("frame: expected object with id or element")
	}
	var out Frame
	if obj.present("id") {
		n, ok := decodeUint(obj["id"], 16)
		if !ok {
			return errors.New("frame: id is not a frame index")
		}
		idx := uint16(n)
		out.Index = &idx
	}
	if obj.present("element") {
		el, ok := obj.string("element")
		if !ok {
			return errors.New("frame: element is not a string")
		}
		out.Element = &el
	}
	if out.Index != nil && out.Element != nil {
		return errors.New("frame: conflicting frame identifiers")
	}
	*f = out
	return nil
}

// Selector is a locator strategy.
type Selector string

const (
	CSSSelector     Selector = "css selector"
	LinkText        Selector = "link text"
	PartialLinkText Selector = "partial link text"
	TagName         Selector = "tag name"
	XPath           Selector = "xpath"
)

func (s *Selector) UnmarshalJSON(data []byte) error {
	v, ok := decodeString(data)
	if !ok {
		return errors.New("selector: expected string")
	}
	switch sel := Selector(v); sel {
	case CSSSelector, LinkText, PartialLinkText, TagName, XPath:
		*s = sel
		return nil
	}
	return fmt.Errorf("selector: unknown strategy %q", v)
}

// AppStatus is a quit flag understood by Marionette:Quit.
type AppStatus string

const (
	AttemptQuit  AppStatus = "eAttemptQuit"
	ConsiderQuit AppStatus = "eConsiderQuit"
	ForceQuit    AppStatus = "eForceQuit"
	Restart      AppStatus = "eRestart"
)

func (a *AppStatus) UnmarshalJSON(data []byte) error {
	v, ok := decodeString(data)
	if !ok {
		return errors.New("app status: expected string")
	}
	switch st := AppStatus(v); st {
	case AttemptQuit, ConsiderQuit, ForceQuit, Restart:
		*a = st
		return nil
	}
	return fmt.Errorf("app status: unknown flag %q", v)
}

// Context is the privilege context commands run in.
type Context string

const (
	ChromeContext  Context = "chrome"
	ContentContext Context = "content"
)

func (c *Context) UnmarshalJSON(data []byte) error {
	v, ok := decodeString(data)
	if !ok {
		return errors.New("context: expected string")
	}
	switch ctx := Context(v); ctx {
	case ChromeContext, ContentContext:
		*c = ctx
		return nil
	}
	return fmt.Errorf("context: unknown context %q", v)
}

// formatFloat renders f so that it always reads back as a fraction on the
// wire: 8 becomes 8.0.
func formatFloat(f float64) []byte {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	return []byte(s)
}
