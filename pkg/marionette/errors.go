package marionette

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind identifies a host-reported error. The set is closed: an
// identifier outside the catalog cannot be decoded.
type ErrorKind uint8

const (
	DetachedShadowRoot ErrorKind = iota + 1
	ElementClickIntercepted
	ElementNotInteractable
	InsecureCertificate
	InvalidArgument
	InvalidCookieDomain
	InvalidElementState
	InvalidSelector
	InvalidSessionID
	JavascriptError
	MoveTargetOutOfBounds
	NoSuchAlert
	NoSuchCookie
	NoSuchElement
	NoSuchFrame
	NoSuchShadowRoot
	NoSuchWindow
	ScriptTimeoutError
	SessionNotCreated
	StaleElementReference
	Timeout
	UnableToCaptureScreen
	UnableToSetCookie
	UnexpectedAlertOpen
	UnknownCommand
	UnknownError
	UnknownMethod
	UnsupportedOperation
)

var errorKindNames = map[ErrorKind]string{
	DetachedShadowRoot:      "detached shadow root",
	ElementClickIntercepted: "element click intercepted",
	ElementNotInteractable:  "element not interactable",
	InsecureCertificate:     "insecure certificate",
	InvalidArgument:         "invalid argument",
	InvalidCookieDomain:     "invalid cookie domain",
	InvalidElementState:     "invalid element state",
	InvalidSelector:         "invalid selector",
	InvalidSessionID:        "invalid session id",
	JavascriptError:         "javascript error",
	MoveTargetOutOfBounds:   "move target out of bounds",
	NoSuchAlert:             "no such alert",
	NoSuchCookie:            "no such cookie",
	NoSuchElement:           "no such element",
	NoSuchFrame:             "no such frame",
	NoSuchShadowRoot:        "no such shadow root",
	NoSuchWindow:            "no such window",
	ScriptTimeoutError:      "script timeout",
	SessionNotCreated:       "session not created",
	StaleElementReference:   "stale element reference",
	Timeout:                 "timeout",
	UnableToCaptureScreen:   "unable to capture screen",
	UnableToSetCookie:       "unable to set cookie",
	UnexpectedAlertOpen:     "unexpected alert open",
	UnknownCommand:          "unknown command",
	UnknownError:            "unknown error",
	UnknownMethod:           "unknown method",
	UnsupportedOperation:    "unsupported operation",
}

var errorKindsByName = func() map[string]ErrorKind {
	m := make(map[string]ErrorKind, len(errorKindNames))
	for kind, name := range errorKindNames {
		m[name] = kind
	}
	return m
}()

// ErrorKinds returns every catalogued kind in declaration order.
func ErrorKinds() []ErrorKind {
	kinds := make([]ErrorKind, 0, len(errorKindNames))
	for k := DetachedShadowRoot; k <= UnsupportedOperation; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// ParseErrorKind maps a wire identifier to its kind.
func ParseErrorKind(s string) (ErrorKind, error) {
	kind, ok := errorKindsByName[s]
	if !ok {
		return 0, &DecodeError{Field: "error", Err: ErrUnrecognizedErrorKind, Detail: fmt.Sprintf("%q", s)}
	}
	return kind, nil
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	name, ok := errorKindNames[k]
	if !ok {
		return nil, fmt.Errorf("marionette: invalid error kind %d", uint8(k))
	}
	return []byte(name), nil
}

func (k *ErrorKind) UnmarshalText(text []byte) error {
	kind, err := ParseErrorKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ErrorRecord is an error reported by the host. It is a normal response
// outcome, not a local failure.
type ErrorRecord struct {
	Kind    ErrorKind
	Message string
	Stack   string
	// Data carries the optional structured detail some errors attach,
	// such as the text of an unexpected alert. An empty object decodes as nil.
	Data map[string]any
}

type errorRecordWire struct {
	Error      ErrorKind      `json:"error"`
	Message    string         `json:"message"`
	Stacktrace string         `json:"stacktrace"`
	Data       map[string]any `json:"data,omitempty"`
}

func (e ErrorRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(errorRecordWire{Error: e.Kind, Message: e.Message, Stacktrace: e.Stack, Data: e.Data})
}

func (e *ErrorRecord) UnmarshalJSON(data []byte) error {
	obj, ok := parseObject(data)
	if !ok || !obj.only("error", "message", "stacktrace", "data") {
		return &DecodeError{Field: "error", Err: ErrInvalidErrorRecord, Detail: "not an error object"}
	}
	name, ok := obj.string("error")
	if !ok {
		return &DecodeError{Field: "error", Err: ErrInvalidErrorRecord, Detail: "missing error identifier"}
	}
	kind, err := ParseErrorKind(name)
	if err != nil {
		return err
	}
	rec := ErrorRecord{Kind: kind}
	for key, dst := range map[string]*string{"message": &rec.Message, "stacktrace": &rec.Stack} {
		if !obj.present(key) {
			continue
		}
		s, ok := obj.string(key)
		if !ok {
			return &DecodeError{Field: key, Err: ErrInvalidErrorRecord, Detail: "not a string"}
		}
		*dst = s
	}
	if obj.present("data") {
		if err := json.Unmarshal(obj["data"], &rec.Data); err != nil {
			return &DecodeError{Field: "data", Err: ErrInvalidErrorRecord, Detail: err.Error()}
		}
		if len(rec.Data) == 0 {
			rec.Data = nil
		}
	}
	*e = rec
	return nil
}

func (e ErrorRecord) String() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

var (
	// ErrNotAMessage indicates a payload that is not a JSON array.
	ErrNotAMessage = errors.New("not a message")
	// ErrTruncatedMessage indicates fewer than four message fields.
	ErrTruncatedMessage = errors.New("truncated message")
	// ErrMessageArity indicates more than four message fields.
	ErrMessageArity = errors.New("too many message fields")
	// ErrInvalidDirection indicates a direction other than 0 or 1.
	ErrInvalidDirection = errors.New("invalid direction")
	// ErrInvalidID indicates an id outside the unsigned 32-bit range.
	ErrInvalidID = errors.New("invalid message id")
	// ErrInvalidCommandName indicates a request whose name is not a string.
	ErrInvalidCommandName = errors.New("invalid command name")
	// ErrUnknownCommand indicates a name absent from the command catalog.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidParameterShape indicates params that fit no variant of the named command.
	ErrInvalidParameterShape = errors.New("invalid parameter shape")
	// ErrConflictingResponseFields indicates a response carrying both an error and a result.
	ErrConflictingResponseFields = errors.New("conflicting response fields")
	// ErrUndecodableResult indicates a result matching no catalogued shape.
	ErrUndecodableResult = errors.New("undecodable result")
	// ErrUnrecognizedErrorKind indicates an error identifier outside the catalog.
	ErrUnrecognizedErrorKind = errors.New("unrecognized error kind")
	// ErrInvalidErrorRecord indicates an error field that is not an error object.
	ErrInvalidErrorRecord = errors.New("invalid error record")
)

// DecodeError reports a message that was delimited correctly but could not
// be interpreted. Err is one of the sentinel errors above.
type DecodeError struct {
	Field  string
	Err    error
	Detail string
}

func (e *DecodeError) Error() string {
	msg := "marionette: decode " + e.Field + ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(field string, sentinel error, format string, args ...any) error {
	return &DecodeError{Field: field, Err: sentinel, Detail: fmt.Sprintf(format, args...)}
}
