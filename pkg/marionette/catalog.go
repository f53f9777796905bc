package marionette

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Wire name prefixes of the two command families.
const (
	WebDriverPrefix  = "WebDriver:"
	MarionettePrefix = "Marionette:"
)

// variant describes how one Command type appears on the wire. Variants
// sharing a name are tried in table order when decoding.
type variant struct {
	name string
	// proto is the zero value of the command type.
	proto Command
	// required lists parameter keys that must be present and non-null.
	required []string
}

func (v variant) unit() bool {
	return reflect.TypeOf(v.proto).NumField() == 0
}

var webDriverCommands = []variant{
	{name: "WebDriver:AcceptAlert", proto: AcceptAlert{}},
	{name: "WebDriver:AddCookie", proto: AddCookie{}, required: []string{"cookie"}},
	{name: "WebDriver:CloseWindow", proto: CloseWindow{}},
	{name: "WebDriver:DeleteCookie", proto: DeleteCookie{}, required: []string{"name"}},
	{name: "WebDriver:DeleteAllCookies", proto: DeleteCookies{}},
	{name: "WebDriver:DeleteSession", proto: DeleteSession{}},
	{name: "WebDriver:DismissAlert", proto: DismissAlert{}},
	{name: "WebDriver:ElementClear", proto: ElementClear{}, required: []string{"id"}},
	{name: "WebDriver:ElementClick", proto: ElementClick{}, required: []string{"id"}},
	{name: "WebDriver:ElementSendKeys", proto: ElementSendKeys{}, required: []string{"id", "text"}},
	{name: "WebDriver:ExecuteAsyncScript", proto: ExecuteAsyncScript{}, required: []string{"script"}},
	{name: "WebDriver:ExecuteScript", proto: ExecuteScript{}, required: []string{"script"}},
	{name: "WebDriver:FindElement", proto: FindElement{}, required: []string{"using", "value"}},
	{name: "WebDriver:FindElement", proto: FindElementFrom{}, required: []string{"element", "using", "value"}},
	{name: "WebDriver:FindElements", proto: FindElements{}, required: []string{"using", "value"}},
	{name: "WebDriver:FindElements", proto: FindElementsFrom{}, required: []string{"element", "using", "value"}},
	{name: "WebDriver:FullscreenWindow", proto: FullscreenWindow{}},
	{name: "WebDriver:Navigate", proto: Navigate{}, required: []string{"url"}},
	{name: "WebDriver:GetActiveElement", proto: GetActiveElement{}},
	{name: "WebDriver:GetAlertText", proto: GetAlertText{}},
	{name: "WebDriver:GetCookies", proto: GetCookies{}},
	{name: "WebDriver:GetElementCSSValue", proto: GetCSSValue{}, required: []string{"id", "propertyName"}},
	{name: "WebDriver:GetCurrentURL", proto: GetCurrentURL{}},
	{name: "WebDriver:GetElementAttribute", proto: GetElementAttribute{}, required: []string{"id", "name"}},
	{name: "WebDriver:GetElementProperty", proto: GetElementProperty{}, required: []string{"id", "name"}},
	{name: "WebDriver:GetElementRect", proto: GetElementRect{}, required: []string{"id"}},
	{name: "WebDriver:GetElementTagName", proto: GetElementTagName{}, required: []string{"id"}},
	{name: "WebDriver:GetElementText", proto: GetElementText{}, required: []string{"id"}},
	{name: "WebDriver:GetPageSource", proto: GetPageSource{}},
	{name: "WebDriver:GetTimeouts", proto: GetTimeouts{}},
	{name: "WebDriver:GetTitle", proto: GetTitle{}},
	{name: "WebDriver:GetWindowHandle", proto: GetWindowHandle{}},
	{name: "WebDriver:GetWindowHandles", proto: GetWindowHandles{}},
	{name: "WebDriver:GetWindowRect", proto: GetWindowRect{}},
	{name: "WebDriver:Back", proto: Back{}},
	{name: "WebDriver:Forward", proto: Forward{}},
	{name: "WebDriver:IsElementDisplayed", proto: IsElementDisplayed{}, required: []string{"id"}},
	{name: "WebDriver:IsElementEnabled", proto: IsElementEnabled{}, required: []string{"id"}},
	{name: "WebDriver:IsElementSelected", proto: IsElementSelected{}, required: []string{"id"}},
	{name: "WebDriver:MaximizeWindow", proto: MaximizeWindow{}},
	{name: "WebDriver:MinimizeWindow", proto: MinimizeWindow{}},
	{name: "WebDriver:NewSession", proto: NewSession{}},
	{name: "WebDriver:NewWindow", proto: NewWindow{}},
	{name: "WebDriver:PerformActions", proto: PerformActions{}, required: []string{"actions"}},
	{name: "WebDriver:Print", proto: Print{}},
	{name: "WebDriver:Refresh", proto: Refresh{}},
	{name: "WebDriver:ReleaseActions", proto: ReleaseActions{}},
	{name: "WebDriver:SendAlertText", proto: SendAlertText{}, required: []string{"text"}},
	{name: "WebDriver:SetTimeouts", proto: SetTimeouts{}},
	{name: "WebDriver:SetWindowRect", proto: SetWindowRect{}},
	{name: "WebDriver:SwitchToFrame", proto: SwitchToFrame{}},
	{name: "WebDriver:SwitchToParentFrame", proto: SwitchToParentFrame{}},
	{name: "WebDriver:SwitchToWindow", proto: SwitchToWindow{}, required: []string{"handle"}},
	{name: "WebDriver:TakeScreenshot", proto: TakeScreenshot{}},
}

var marionetteCommands = []variant{
	{name: "Marionette:AcceptConnections", proto: AcceptConnections{}, required: []string{"value"}},
	{name: "Marionette:Quit", proto: Quit{}, required: []string{"flags"}},
	{name: "Marionette:GetContext", proto: GetContext{}},
	{name: "Marionette:SetContext", proto: SetContext{}, required: []string{"value"}},
	{name: "Marionette:GetScreenOrientation", proto: GetScreenOrientation{}},
}

var variantsByType = func() map[reflect.Type]variant {
	m := make(map[reflect.Type]variant)
	for _, family := range [][]variant{webDriverCommands, marionetteCommands} {
		for _, v := range family {
			t := reflect.TypeOf(v.proto)
			if _, dup := m[t]; dup {
				panic("marionette: command type registered twice: " + t.String())
			}
			m[t] = v
		}
	}
	return m
}()

// CommandName returns the wire name of cmd.
func CommandName(cmd Command) (string, error) {
	v, err := lookupVariant(cmd)
	if err != nil {
		return "", err
	}
	return v.name, nil
}

// Commands returns the zero value of every catalogued command, in table order.
func Commands() []Command {
	out := make([]Command, 0, len(webDriverCommands)+len(marionetteCommands))
	for _, family := range [][]variant{webDriverCommands, marionetteCommands} {
		for _, v := range family {
			out = append(out, v.proto)
		}
	}
	return out
}

func lookupVariant(cmd Command) (variant, error) {
	if cmd == nil {
		return variant{}, fmt.Errorf("marionette: nil command")
	}
	v, ok := variantsByType[reflect.TypeOf(cmd)]
	if !ok {
		return variant{}, fmt.Errorf("marionette: unregistered command type %T", cmd)
	}
	return v, nil
}

// encodeCommand returns the wire name and parameter object of cmd. params
// is nil for commands without parameters.
func encodeCommand(cmd Command) (string, json.RawMessage, error) {
	v, err := lookupVariant(cmd)
	if err != nil {
		return "", nil, err
	}
	if v.unit() {
		return v.name, nil, nil
	}
	params, err := json.Marshal(cmd)
	if err != nil {
		return "", nil, fmt.Errorf("marionette: encode %s: %w", v.name, err)
	}
	return v.name, params, nil
}

// decodeCommand resolves name and params against the catalog. A nil,
// null or empty-object params means the command is named alone.
func decodeCommand(name string, params json.RawMessage) (Command, error) {
	family := familyOf(name)
	if family == nil {
		return nil, decodeErr("name", ErrUnknownCommand, "%q", name)
	}
	obj := object{}
	if len(bytes.TrimSpace(params)) > 0 && !isNull(params) {
		var ok bool
		if obj, ok = parseObject(params); !ok {
			return nil, decodeErr("params", ErrInvalidParameterShape, "%s: params must be an object", name)
		}
	}
	known := false
	for _, v := range family {
		if v.name != name {
			continue
		}
		known = true
		if cmd, ok := v.match(obj, params); ok {
			return cmd, nil
		}
	}
	if !known {
		return nil, decodeErr("name", ErrUnknownCommand, "%q", name)
	}
	return nil, decodeErr("params", ErrInvalidParameterShape, "%s does not accept %s", name, describeKeys(obj))
}

// match is a structural test: a false result is a mismatch, not a failure.
func (v variant) match(obj object, raw json.RawMessage) (Command, bool) {
	if v.unit() {
		return v.proto, len(obj) == 0
	}
	for _, key := range v.required {
		if !obj.present(key) {
			return nil, false
		}
	}
	if len(obj) == 0 {
		raw = emptyObject
	}
	ptr := reflect.New(reflect.TypeOf(v.proto))
	if err := decodeStrict(raw, ptr.Interface()); err != nil {
		return nil, false
	}
	return ptr.Elem().Interface().(Command), true
}

func familyOf(name string) []variant {
	switch {
	case strings.HasPrefix(name, WebDriverPrefix):
		return webDriverCommands
	case strings.HasPrefix(name, MarionettePrefix):
		return marionetteCommands
	default:
		return nil
	}
}

func describeKeys(obj object) string {
	if len(obj) == 0 {
		return "empty params"
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return "keys " + strings.Join(keys, ",")
}

// MarshalCommand renders cmd in its reconstructed form: the bare wire name
// for commands without parameters, otherwise {name: params}.
func MarshalCommand(cmd Command) ([]byte, error) {
	name, params, err := encodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	if params == nil {
		return json.Marshal(name)
	}
	return json.Marshal(map[string]json.RawMessage{name: params})
}

// UnmarshalCommand parses the reconstructed form produced by MarshalCommand.
// {name: {}} is accepted as the bare name.
func UnmarshalCommand(data []byte) (Command, error) {
	if name, ok := decodeString(data); ok {
		return decodeCommand(name, nil)
	}
	obj, ok := parseObject(data)
	if !ok || len(obj) != 1 {
		return nil, decodeErr("command", ErrInvalidCommandName, "expected a name or a single-key object")
	}
	for name, params := range obj {
		return decodeCommand(name, params)
	}
	return nil, decodeErr("command", ErrInvalidCommandName, "empty command object")
}
