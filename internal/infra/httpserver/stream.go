package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	appai "github.com/bryanwahyu/codesight/internal/application/ai"
	apphistory "github.com/bryanwahyu/codesight/internal/application/history"
	domauth "github.com/bryanwahyu/codesight/internal/domain/auth"
	"github.com/bryanwahyu/codesight/internal/domain/history"
	"github.com/bryanwahyu/codesight/internal/middleware"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamReadLimit  = 64 << 10
)

// StreamRequest is a client action on the history stream.
type StreamRequest struct {
	Action string               `json:"action"` // refresh | submit | delete | favorite | notes
	ID     string               `json:"id,omitempty"`
	Notes  string               `json:"user_notes,omitempty"`
	Form   *appai.SubmitCommand `json:"form,omitempty"`
}

// StreamMessage is pushed to the client. Type is one of state, flow,
// result, error.
type StreamMessage struct {
	Type   string              `json:"type"`
	Action string              `json:"action,omitempty"`
	State  *history.State      `json:"state,omitempty"`
	Flow   appai.State         `json:"flow,omitempty"`
	Result *appai.SubmitResult `json:"result,omitempty"`
	Status int                 `json:"status,omitempty"`
	Error  string              `json:"error,omitempty"`
	Fields map[string]string   `json:"fields,omitempty"`

	// RetryAfter is set with status 429, in seconds.
	RetryAfter int `json:"retry_after,omitempty"`
}

// streamConn serializes writes; gorilla allows one concurrent writer.
type streamConn struct {
	ws  *websocket.Conn
	log *slog.Logger
	mu  sync.Mutex
}

func (c *streamConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(streamWriteWait))
	err := c.ws.WriteJSON(v)
	if err != nil {
		c.log.Debug("websocket write failed", "error", err)
	}
	return err
}

func (c *streamConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait))
}

func (r *Router) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     r.checkOrigin,
	}
}

// checkOrigin accepts same-host origins and the configured CORS origins.
func (r *Router) checkOrigin(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, req.Host) {
		return true
	}
	for _, o := range r.opts.CORSOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// GET /v1/history/stream
// One connection is one mounted history view: it owns a Synchronizer and
// an analyzer Flow until the socket closes.
func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) {
	p, ok := domauth.PrincipalFrom(req.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": domauth.ErrUnauthenticated.Error()})
		return
	}
	log := middleware.LoggerFrom(req.Context()).With("user_id", p.UserID)

	ws, err := r.upgrader().Upgrade(w, req, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	conn := &streamConn{ws: ws, log: log}

	if r.metrics != nil {
		r.metrics.ActiveStreams.Inc()
		defer r.metrics.ActiveStreams.Dec()
	}

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	opts := apphistory.SyncOptions{Capacity: r.opts.Capacity, Log: log}
	if r.metrics != nil {
		opts.OnEvent = func(t history.EventType, refetch bool) {
			r.metrics.ObserveSyncEvent(string(t), refetch)
		}
	}
	view := apphistory.NewSynchronizer(p.UserID, r.lister, r.feed, opts)
	view.Start(ctx)
	defer view.Close()

	flow := r.aiSvc.NewFlow(func(st appai.State) {
		_ = conn.send(StreamMessage{Type: "flow", Flow: st})
	})

	log.Info("history stream opened")
	go r.pumpStream(ctx, cancel, conn, view)

	ws.SetReadLimit(streamReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(streamPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		var msg StreamRequest
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("history stream read failed", "error", err)
			}
			break
		}
		r.dispatchStream(ctx, conn, view, flow, msg)
	}
	log.Info("history stream closed")
}

// pumpStream forwards view states and keeps the connection alive.
func (r *Router) pumpStream(ctx context.Context, cancel context.CancelFunc, conn *streamConn, view *apphistory.Synchronizer) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-view.Done():
			return
		case st := <-view.Updates():
			if err := conn.send(StreamMessage{Type: "state", State: &st}); err != nil {
				cancel()
				return
			}
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				cancel()
				return
			}
		}
	}
}

func (r *Router) dispatchStream(ctx context.Context, conn *streamConn, view *apphistory.Synchronizer, flow *appai.Flow, msg StreamRequest) {
	switch msg.Action {
	case "refresh":
		if err := view.Refresh(ctx); err != nil {
			r.sendStreamError(conn, msg.Action, err)
		}

	case "submit":
		if msg.Form == nil {
			r.sendStreamError(conn, msg.Action, badRequest("form is required"))
			return
		}
		// same per-user budget as POST /v1/analyses
		if r.limiter != nil {
			p, _ := domauth.PrincipalFrom(ctx)
			if err := r.limiter.Check(middleware.UserKey(p.UserID)); err != nil {
				r.sendStreamError(conn, msg.Action, err)
				return
			}
		}
		cmd := *msg.Form
		cmd.Title = middleware.SanitizeString(cmd.Title)
		// The cycle outlives the socket; a late result is simply dropped.
		go r.submitFromStream(context.WithoutCancel(ctx), conn, view, flow, cmd)

	case "delete", "favorite", "notes":
		if err := middleware.ValidateItemID(msg.ID); err != nil {
			r.sendStreamError(conn, msg.Action, badRequest(err.Error()))
			return
		}
		ev, err := r.mutateFromStream(ctx, msg)
		if err != nil {
			r.sendStreamError(conn, msg.Action, err)
			return
		}
		if err := view.ApplyLocal(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			r.sendStreamError(conn, msg.Action, err)
		}

	default:
		r.sendStreamError(conn, msg.Action, badRequest("unknown action"))
	}
}

func (r *Router) submitFromStream(ctx context.Context, conn *streamConn, view *apphistory.Synchronizer, flow *appai.Flow, cmd appai.SubmitCommand) {
	res, err := flow.Submit(ctx, cmd)
	if err != nil {
		r.sendStreamError(conn, "submit", err)
		return
	}
	if res.Item != nil {
		// view may already be closed; the insert is in the store regardless
		_ = view.ApplyLocal(ctx, history.ChangeEvent{Type: history.EventInsert, New: res.Item})
	}
	_ = conn.send(StreamMessage{Type: "result", Action: "submit", Result: &res})
}

func (r *Router) mutateFromStream(ctx context.Context, msg StreamRequest) (history.ChangeEvent, error) {
	id := history.ItemID(msg.ID)
	switch msg.Action {
	case "delete":
		if err := r.history.Delete(ctx, id); err != nil {
			return history.ChangeEvent{}, err
		}
		owner, _ := domauth.RequireOwner(ctx)
		return history.ChangeEvent{Type: history.EventDelete, Old: &history.Item{ID: id, OwnerID: owner}}, nil
	case "favorite":
		cur, err := r.history.Get(ctx, id)
		if err != nil {
			return history.ChangeEvent{}, err
		}
		it, err := r.history.ToggleFavorite(ctx, id, cur.IsFavorite)
		if err != nil {
			return history.ChangeEvent{}, err
		}
		return history.ChangeEvent{Type: history.EventUpdate, New: it}, nil
	default:
		it, err := r.history.UpdateNotes(ctx, id, msg.Notes)
		if err != nil {
			return history.ChangeEvent{}, err
		}
		return history.ChangeEvent{Type: history.EventUpdate, New: it}, nil
	}
}

func (r *Router) sendStreamError(conn *streamConn, action string, err error) {
	status, body := r.classify(err)
	msg := StreamMessage{Type: "error", Action: action, Status: status}
	msg.Error, _ = body["error"].(string)
	if fields, ok := body["fields"].(map[string]string); ok {
		msg.Fields = fields
	}
	msg.RetryAfter, _ = body["retry_after"].(int)
	if status >= http.StatusInternalServerError {
		conn.log.Error("history stream action failed", "action", action, "error", err)
	}
	_ = conn.send(msg)
}
