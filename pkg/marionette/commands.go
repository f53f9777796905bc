package marionette

import (
	"encoding/json"
	"errors"
)

// Command is an outbound request to the host. The set of implementations
// is closed; see catalog.go for the wire name of each.
type Command interface {
	isCommand()
}

// Commands without parameters.
type (
	AcceptAlert          struct{}
	CloseWindow          struct{}
	DeleteCookies        struct{}
	DeleteSession        struct{}
	DismissAlert         struct{}
	FullscreenWindow     struct{}
	GetActiveElement     struct{}
	GetAlertText         struct{}
	GetCookies           struct{}
	GetCurrentURL        struct{}
	GetPageSource        struct{}
	GetTimeouts          struct{}
	GetTitle             struct{}
	GetWindowHandle      struct{}
	GetWindowHandles     struct{}
	GetWindowRect        struct{}
	Back                 struct{}
	Forward              struct{}
	MaximizeWindow       struct{}
	MinimizeWindow       struct{}
	Refresh              struct{}
	ReleaseActions       struct{}
	SwitchToParentFrame  struct{}
	GetContext           struct{}
	GetScreenOrientation struct{}
)

// AddCookie sets a cookie. The cookie travels wrapped under a "cookie" key.
type AddCookie struct {
	Cookie Cookie `json:"cookie"`
}

// DeleteCookie removes the named cookie. The name travels wrapped under a
// "name" key.
type DeleteCookie struct {
	Name string `json:"name"`
}

// ElementClear clears an editable element.
type ElementClear struct {
	ID string `json:"id"`
}

// ElementClick clicks an element.
type ElementClick struct {
	ID string `json:"id"`
}

// ElementSendKeys types Text into an element. Value is the legacy
// per-character form of the same input.
type ElementSendKeys struct {
	ID    string
	Text  string
	Value []string
}

func (c ElementSendKeys) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID    string   `json:"id"`
		Text  string   `json:"text"`
		Value []string `json:"value"`
	}{c.ID, c.Text, nonNilStrings(c.Value)})
}

func (c *ElementSendKeys) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID    string   `json:"id"`
		Text  string   `json:"text"`
		Value []string `json:"value"`
	}
	if err := decodeStrict(data, &wire); err != nil {
		return err
	}
	*c = ElementSendKeys{ID: wire.ID, Text: wire.Text, Value: nilIfEmpty(wire.Value)}
	return nil
}

// Script is the body and arguments of a script execution.
type Script struct {
	Script string `json:"script"`
	Args   []any  `json:"args,omitempty"`
}

// ExecuteScript runs a synchronous script in the current browsing context.
type ExecuteScript struct {
	Script
}

// ExecuteAsyncScript runs a script that reports completion via callback.
type ExecuteAsyncScript struct {
	Script
}

// Locator selects elements with a strategy and expression.
type Locator struct {
	Using Selector `json:"using"`
	Value string   `json:"value"`
}

// FindElement locates the first matching element in the document.
type FindElement struct {
	Locator
}

// FindElements locates every matching element in the document.
type FindElements struct {
	Locator
}

// FindElementFrom locates the first match below Element. It shares its
// wire name with FindElement.
type FindElementFrom struct {
	Element string `json:"element"`
	Locator
}

// FindElementsFrom locates every match below Element. It shares its wire
// name with FindElements.
type FindElementsFrom struct {
	Element string `json:"element"`
	Locator
}

// Navigate loads URL in the current top-level browsing context.
type Navigate struct {
	URL string `json:"url"`
}

// GetCSSValue reads a computed style property of an element.
type GetCSSValue struct {
	ID       string `json:"id"`
	Property string `json:"propertyName"`
}

// GetElementAttribute reads a DOM attribute.
type GetElementAttribute struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetElementProperty reads a DOM property.
type GetElementProperty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GetElementRect struct {
	ID string `json:"id"`
}

type GetElementTagName struct {
	ID string `json:"id"`
}

type GetElementText struct {
	ID string `json:"id"`
}

type IsElementDisplayed struct {
	ID string `json:"id"`
}

type IsElementEnabled struct {
	ID string `json:"id"`
}

type IsElementSelected struct {
	ID string `json:"id"`
}

// NewSession starts an automation session with the requested capabilities.
type NewSession struct {
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

// NewWindow opens a tab or window. Type is a hint: "tab" or "window".
type NewWindow struct {
	Type *string `json:"type,omitempty"`
}

// PerformActions dispatches a sequence of input source actions.
type PerformActions struct {
	Actions []any
}

func (c PerformActions) MarshalJSON() ([]byte, error) {
	actions := c.Actions
	if actions == nil {
		actions = []any{}
	}
	return json.Marshal(map[string][]any{"actions": actions})
}

func (c *PerformActions) UnmarshalJSON(data []byte) error {
	var wire struct {
		Actions []any `json:"actions"`
	}
	if err := decodeStrict(data, &wire); err != nil {
		return err
	}
	c.Actions = nilIfEmpty(wire.Actions)
	return nil
}

// PrintPage is a paper size in centimetres.
type PrintPage struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PrintMargins are page margins in centimetres.
type PrintMargins struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// Print renders the current page to PDF.
type Print struct {
	Orientation string        `json:"orientation,omitempty"`
	Scale       float64       `json:"scale,omitempty"`
	Background  bool          `json:"background,omitempty"`
	Page        *PrintPage    `json:"page,omitempty"`
	Margin      *PrintMargins `json:"margin,omitempty"`
	PageRanges  []string      `json:"pageRanges,omitempty"`
	ShrinkToFit *bool         `json:"shrinkToFit,omitempty"`
}

// SendAlertText types into a user prompt.
type SendAlertText struct {
	Text  string
	Value []string
}

func (c SendAlertText) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Text  string   `json:"text"`
		Value []string `json:"value"`
	}{c.Text, nonNilStrings(c.Value)})
}

func (c *SendAlertText) UnmarshalJSON(data []byte) error {
	var wire struct {
		Text  string   `json:"text"`
		Value []string `json:"value"`
	}
	if err := decodeStrict(data, &wire); err != nil {
		return err
	}
	*c = SendAlertText{Text: wire.Text, Value: nilIfEmpty(wire.Value)}
	return nil
}

// SetTimeouts updates the session timeouts. Unset fields are left alone.
type SetTimeouts struct {
	Timeouts
}

// SetWindowRect moves and resizes the window. Nil fields are left alone.
type SetWindowRect struct {
	X      *int32 `json:"x,omitempty"`
	Y      *int32 `json:"y,omitempty"`
	Width  *int32 `json:"width,omitempty"`
	Height *int32 `json:"height,omitempty"`
}

// SwitchToFrame changes the current browsing context to a frame.
type SwitchToFrame struct {
	Frame
}

// SwitchToWindow focuses the window or tab with the given handle.
type SwitchToWindow struct {
	Handle string `json:"handle"`
}

// ScreenshotIntent distinguishes what a screenshot captures. All intents
// share one wire form; the intent is derived from the options.
type ScreenshotIntent int

const (
	ViewportIntent ScreenshotIntent = iota
	ElementIntent
	FullPageIntent
)

func (i ScreenshotIntent) String() string {
	switch i {
	case ElementIntent:
		return "element"
	case FullPageIntent:
		return "full page"
	default:
		return "viewport"
	}
}

// TakeScreenshot captures the viewport, an element, or the full page.
// Build it with ViewportScreenshot, ElementScreenshot or FullPageScreenshot.
type TakeScreenshot struct {
	ID         *string
	Highlights []*string
	Full       bool
}

// ViewportScreenshot captures the visible part of the page.
func ViewportScreenshot() TakeScreenshot { return TakeScreenshot{} }

// ElementScreenshot captures the bounding box of an element.
func ElementScreenshot(id string) TakeScreenshot { return TakeScreenshot{ID: &id} }

// FullPageScreenshot captures the whole scrollable document.
func FullPageScreenshot() TakeScreenshot { return TakeScreenshot{Full: true} }

// Intent reports which capture the options describe.
func (c TakeScreenshot) Intent() ScreenshotIntent {
	switch {
	case c.Full:
		return FullPageIntent
	case c.ID != nil:
		return ElementIntent
	default:
		return ViewportIntent
	}
}

func (c TakeScreenshot) MarshalJSON() ([]byte, error) {
	highlights := c.Highlights
	if highlights == nil {
		highlights = []*string{}
	}
	return json.Marshal(struct {
		ID         *string   `json:"id"`
		Highlights []*string `json:"highlights"`
		Full       bool      `json:"full"`
	}{c.ID, highlights, c.Full})
}

func (c *TakeScreenshot) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID         *string   `json:"id"`
		Highlights []*string `json:"highlights"`
		Full       bool      `json:"full"`
	}
	if err := decodeStrict(data, &wire); err != nil {
		return err
	}
	*c = TakeScreenshot{ID: wire.ID, Highlights: nilIfEmpty(wire.Highlights), Full: wire.Full}
	return nil
}

// AcceptConnections toggles whether the host accepts new connections.
type AcceptConnections struct {
	Value bool `json:"value"`
}

// Quit shuts down or restarts the application.
type Quit struct {
	Flags []AppStatus
}

func (c Quit) MarshalJSON() ([]byte, error) {
	flags := c.Flags
	if flags == nil {
		flags = []AppStatus{}
	}
	return json.Marshal(map[string][]AppStatus{"flags": flags})
}

func (c *Quit) UnmarshalJSON(data []byte) error {
	var wire struct {
		Flags []AppStatus `json:"flags"`
	}
	if err := decodeStrict(data, &wire); err != nil {
		return err
	}
	if wire.Flags == nil {
		return errors.New("quit: flags required")
	}
	c.Flags = nilIfEmpty(wire.Flags)
	return nil
}

// SetContext switches between chrome and content privilege.
type SetContext struct {
	Value Context `json:"value"`
}

func (AcceptAlert) isCommand()          {}
func (AddCookie) isCommand()            {}
func (CloseWindow) isCommand()          {}
func (DeleteCookie) isCommand()         {}
func (DeleteCookies) isCommand()        {}
func (DeleteSession) isCommand()        {}
func (DismissAlert) isCommand()         {}
func (ElementClear) isCommand()         {}
func (ElementClick) isCommand()         {}
func (ElementSendKeys) isCommand()      {}
func (ExecuteAsyncScript) isCommand()   {}
func (ExecuteScript) isCommand()        {}
func (FindElement) isCommand()          {}
func (FindElementFrom) isCommand()      {}
func (FindElements) isCommand()         {}
func (FindElementsFrom) isCommand()     {}
func (FullscreenWindow) isCommand()     {}
func (Navigate) isCommand()             {}
func (GetActiveElement) isCommand()     {}
func (GetAlertText) isCommand()         {}
func (GetCookies) isCommand()           {}
func (GetCSSValue) isCommand()          {}
func (GetCurrentURL) isCommand()        {}
func (GetElementAttribute) isCommand()  {}
func (GetElementProperty) isCommand()   {}
func (GetElementRect) isCommand()       {}
func (GetElementTagName) isCommand()    {}
func (GetElementText) isCommand()       {}
func (GetPageSource) isCommand()        {}
func (GetTimeouts) isCommand()          {}
func (GetTitle) isCommand()             {}
func (GetWindowHandle) isCommand()      {}
func (GetWindowHandles) isCommand()     {}
func (GetWindowRect) isCommand()        {}
func (Back) isCommand()                 {}
func (Forward) isCommand()              {}
func (IsElementDisplayed) isCommand()   {}
func (IsElementEnabled) isCommand()     {}
func (IsElementSelected) isCommand()    {}
func (MaximizeWindow) isCommand()       {}
func (MinimizeWindow) isCommand()       {}
func (NewSession) isCommand()           {}
func (NewWindow) isCommand()            {}
func (PerformActions) isCommand()       {}
func (Print) isCommand()                {}
func (Refresh) isCommand()              {}
func (ReleaseActions) isCommand()       {}
func (SendAlertText) isCommand()        {}
func (SetTimeouts) isCommand()          {}
func (SetWindowRect) isCommand()        {}
func (SwitchToFrame) isCommand()        {}
func (SwitchToParentFrame) isCommand()  {}
func (SwitchToWindow) isCommand()       {}
func (TakeScreenshot) isCommand()       {}
func (AcceptConnections) isCommand()    {}
func (Quit) isCommand()                 {}
func (GetContext) isCommand()           {}
func (SetContext) isCommand()           {}
func (GetScreenOrientation) isCommand() {}
