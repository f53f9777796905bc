package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rexliu/geckowire/pkg/ipc"
	"github.com/rexliu/geckowire/pkg/marionette"
	"github.com/rexliu/geckowire/pkg/session"
)

func (d *daemon) registerHandlers(srv *ipc.Server) {
	srv.Register("ping", d.handlePing)
	srv.Register("dispatch", d.handleDispatch)
	srv.Register("close_session", d.handleCloseSession)
	srv.Register("list_sessions", d.handleListSessions)
	srv.Register("session_history", d.handleSessionHistory)
	srv.RegisterStream("subscribe_events", d.hub.serve)
}

type pingResult struct {
	Now        int64  `json:"now"`
	Profile    string `json:"profile"`
	Marionette string `json:"marionette"`
	Breaker    string `json:"breaker"`
	Sessions   int    `json:"sessions"`
	UptimeMs   int64  `json:"uptimeMs"`
}

func (d *daemon) handlePing(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	now := time.Now()
	return pingResult{
		Now:        now.UnixMilli(),
		Profile:    d.cfg.ProfileName,
		Marionette: d.dialer.Addr(),
		Breaker:    d.dialer.State().String(),
		Sessions:   len(d.registry.Sessions()),
		UptimeMs:   now.Sub(d.started).Milliseconds(),
	}, nil
}

type dispatchParams struct {
	SessionID string          `json:"sessionId,omitempty"`
	Command   json.RawMessage `json:"command"`
}

type dispatchResult struct {
	SessionID string                  `json:"sessionId"`
	Result    json.RawMessage         `json:"result,omitempty"`
	Error     *marionette.ErrorRecord `json:"error,omitempty"`
}

func (d *daemon) handleDispatch(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var p dispatchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, ipc.Errorf(ipc.CodeInvalidRequest, "invalid params", nil)
	}
	if len(p.Command) == 0 {
		return nil, ipc.Errorf(ipc.CodeInvalidRequest, "command required", nil)
	}
	cmd, err := marionette.UnmarshalCommand(p.Command)
	if err != nil {
		return nil, ipc.Errorf(ipc.CodeDecodeFailed, err.Error(), nil)
	}

	out, err := d.registry.Dispatch(ctx, p.SessionID, cmd)
	if err != nil {
		details := map[string]any{}
		if out.SessionID != "" {
			details["sessionId"] = out.SessionID
		}
		var de *marionette.DecodeError
		switch {
		case errors.Is(err, session.ErrUnknownSession):
			return nil, ipc.Errorf(ipc.CodeUnknownSession, err.Error(), map[string]any{"sessionId": p.SessionID})
		case errors.As(err, &de):
			return nil, ipc.Errorf(ipc.CodeDecodeFailed, err.Error(), details)
		default:
			return nil, ipc.Errorf(ipc.CodeSessionFailed, err.Error(), details)
		}
	}

	res := dispatchResult{SessionID: out.SessionID, Error: out.Error}
	if out.Result != nil {
		raw, err := marionette.MarshalResult(out.Result)
		if err != nil {
			return nil, ipc.Errorf(ipc.CodeInternal, err.Error(), nil)
		}
		res.Result = raw
	}
	return res, nil
}

type sessionParams struct {
	SessionID string `json:"sessionId"`
}

func (d *daemon) handleCloseSession(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var p sessionParams
	if err := json.Unmarshal(params, &p); err != nil || p.SessionID == "" {
		return nil, ipc.Errorf(ipc.CodeInvalidRequest, "sessionId required", nil)
	}
	d.registry.Close(p.SessionID)
	return map[string]any{"sessionId": p.SessionID, "closed": true}, nil
}

func (d *daemon) handleListSessions(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	return map[string]any{"sessions": d.registry.Sessions()}, nil
}

type historyParams struct {
	Limit int `json:"limit"`
}

func (d *daemon) handleSessionHistory(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var p historyParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, ipc.Errorf(ipc.CodeInvalidRequest, "invalid params", nil)
		}
	}
	records, err := d.store.List(ctx, p.Limit)
	if err != nil {
		return nil, ipc.Errorf(ipc.CodeStorage, err.Error(), nil)
	}
	return map[string]any{"sessions": records}, nil
}
