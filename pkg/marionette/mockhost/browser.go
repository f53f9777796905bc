package mockhost

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rexliu/geckowire/pkg/marionette"
)

// Browser is a small stateful stand-in for Firefox. It keeps one session,
// a current URL, windows, timeouts and cookies, and answers everything else
// with "unsupported operation".
type Browser struct {
	mu       sync.Mutex
	session  string
	sessions int
	url      string
	context  marionette.Context
	timeouts marionette.Timeouts
	windows  []string
	current  string
	cookies  []marionette.Cookie
}

// NewBrowser returns a browser showing about:blank in one window.
func NewBrowser() *Browser {
	implicit, pageLoad, script := uint64(0), uint64(300000), uint64(30000)
	return &Browser{
		url:     "about:blank",
		context: marionette.ContentContext,
		timeouts: marionette.Timeouts{
			Implicit: &implicit,
			PageLoad: &pageLoad,
			Script:   marionette.ScriptTimeout{Set: true, Value: &script},
		},
		windows: []string{"window-1"},
		current: "window-1",
	}
}

// Serve implements Handler.
func (b *Browser) Serve(req *marionette.Request) marionette.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	result, rec := b.handle(req.Command)
	if rec != nil {
		return marionette.ErrorResponse(req.ID, *rec)
	}
	return marionette.ResultResponse(req.ID, result)
}

func fail(kind marionette.ErrorKind, format string, args ...any) (marionette.Result, *marionette.ErrorRecord) {
	return nil, &marionette.ErrorRecord{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (b *Browser) handle(cmd marionette.Command) (marionette.Result, *marionette.ErrorRecord) {
	name, err := marionette.CommandName(cmd)
	if err != nil {
		return fail(marionette.UnknownCommand, "%v", err)
	}
	if _, ok := cmd.(marionette.NewSession); !ok && b.session == "" && strings.HasPrefix(name, marionette.WebDriverPrefix) {
		return fail(marionette.InvalidSessionID, "no session")
	}

	switch c := cmd.(type) {
	case marionette.NewSession:
		if b.session != "" {
			return fail(marionette.SessionNotCreated, "session %s already running", b.session)
		}
		b.sessions++
		b.session = fmt.Sprintf("mock-session-%d", b.sessions)
		caps := map[string]any{"browserName": "firefox", "moz:headless": true}
		for k, v := range c.Capabilities {
			caps[k] = v
		}
		return marionette.SessionResult{SessionID: b.session, Capabilities: caps}, nil
	case marionette.DeleteSession:
		b.session = ""
		return marionette.NullResult{}, nil
	case marionette.Quit:
		b.session = ""
		return marionette.NullResult{}, nil
	case marionette.GetContext:
		return marionette.StringResult(b.context), nil
	case marionette.SetContext:
		b.context = c.Value
		return marionette.NullResult{}, nil
	case marionette.Navigate:
		u, err := url.Parse(c.URL)
		if err != nil || u.Scheme == "" {
			return fail(marionette.InvalidArgument, "invalid url %q", c.URL)
		}
		b.url = c.URL
		return marionette.NullResult{}, nil
	case marionette.GetCurrentURL:
		return marionette.StringResult(b.url), nil
	case marionette.GetTitle:
		return marionette.StringResult(titleOf(b.url)), nil
	case marionette.GetPageSource:
		return marionette.StringResult("<html><head><title>" + titleOf(b.url) + "</title></head><body></body></html>"), nil
	case marionette.Refresh, marionette.Back, marionette.Forward:
		return marionette.NullResult{}, nil
	case marionette.GetTimeouts:
		return marionette.TimeoutsResult{Timeouts: b.timeouts}, nil
	case marionette.SetTimeouts:
		if c.Implicit != nil {
			b.timeouts.Implicit = c.Implicit
		}
		if c.PageLoad != nil {
			b.timeouts.PageLoad = c.PageLoad
		}
		if c.Script.Set {
			b.timeouts.Script = c.Script
		}
		return marionette.NullResult{}, nil
	case marionette.GetWindowHandle:
		return marionette.StringResult(b.current), nil
	case marionette.GetWindowHandles:
		return marionette.StringsResult(append([]string(nil), b.windows...)), nil
	case marionette.NewWindow:
		typ := "tab"
		if c.Type != nil {
			typ = *c.Type
		}
		handle := fmt.Sprintf("window-%d", len(b.windows)+1)
		b.windows = append(b.windows, handle)
		return marionette.NewWindowResult{Handle: handle, Type: typ}, nil
	case marionette.SwitchToWindow:
		for _, w := range b.windows {
			if w == c.Handle {
				b.current = w
				return marionette.NullResult{}, nil
			}
		}
		return fail(marionette.NoSuchWindow, "no window %s", c.Handle)
	case marionette.GetWindowRect:
		return marionette.WindowRectResult{Width: 1280, Height: 720}, nil
	case marionette.AddCookie:
		b.cookies = append(b.cookies, c.Cookie)
		return marionette.NullResult{}, nil
	case marionette.GetCookies:
		return marionette.CookiesResult(append([]marionette.Cookie(nil), b.cookies...)), nil
	case marionette.DeleteCookie:
		kept := b.cookies[:0]
		for _, ck := range b.cookies {
			if ck.Name != c.Name {
				kept = append(kept, ck)
			}
		}
		b.cookies = kept
		return marionette.NullResult{}, nil
	case marionette.DeleteCookies:
		b.cookies = nil
		return marionette.NullResult{}, nil
	case marionette.FindElement:
		return fail(marionette.NoSuchElement, "unable to locate element: %s", c.Value)
	case marionette.FindElements:
		return marionette.ElementsResult{}, nil
	case marionette.ExecuteScript:
		return marionette.NullResult{}, nil
	}
	return fail(marionette.UnsupportedOperation, "%s is not supported by the mock host", name)
}

func titleOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}
