package ws

import (
	"context"
	"sync"

	"qrgate/internal/generator"
	"qrgate/internal/model"
	"qrgate/internal/repo"
	"qrgate/internal/workflow"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const recentEvents = 20

// Handler handles a single websocket connection.
type Handler struct {
	Conn      *websocket.Conn
	Machine   *workflow.Machine
	Generator *generator.Generator
	Repo      repo.Repository
	Log       *zap.Logger
	SendMu    sync.Mutex
}

func NewHandler(conn *websocket.Conn, m *workflow.Machine, g *generator.Generator, r repo.Repository, log *zap.Logger) *Handler {
	return &Handler{
		Conn:      conn,
		Machine:   m,
		Generator: g,
		Repo:      r,
		Log:       log,
	}
}

// Notify implements workflow.Notifier: every snapshot transition is pushed as
// a state event.
func (h *Handler) Notify(snap model.Snapshot) {
	h.send(model.Event{Type: "event", Event: "state", Data: snap})
}

func (h *Handler) send(v any) {
	h.SendMu.Lock()
	defer h.SendMu.Unlock()
	if err := h.Conn.WriteJSON(v); err != nil {
		h.Log.Debug("ws write failed", zap.Error(err))
	}
}

func (h *Handler) respond(req model.Request, data any, err error) {
	resp := model.Response{Type: "response", RequestID: req.RequestID}
	if err != nil {
		resp.Code = -1
		resp.Message = err.Error()
	} else {
		resp.Message = "success"
		resp.Data = data
	}
	h.send(resp)
}

// Loop reads requests until the connection drops. The camera keeps scanning
// across cycles, so nothing workflow-side is torn down here beyond the
// snapshot subscription.
func (h *Handler) Loop() {
	h.Machine.Subscribe(h)
	defer func() {
		h.Machine.Unsubscribe(h)
		h.Conn.Close()
	}()

	for {
		var req model.Request
		if err := h.Conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.Log.Warn("ws read failed", zap.Error(err))
			}
			return
		}
		h.handleRequest(req)
	}
}

func (h *Handler) handleRequest(req model.Request) {
	switch req.Command {
	case "scan":
		snap := h.Machine.OnScanSuccess(req.Params["text"])
		h.respond(req, snap, nil)

	case "scan_error":
		// detection noise fires on every frame without a code, swallow it
		h.Machine.OnScanError(req.Params["message"])
		h.respond(req, nil, nil)

	case "entry", "exit":
		kind := model.ActionEntry
		if req.Command == "exit" {
			kind = model.ActionExit
		}
		// the backend call blocks, keep reading frames meanwhile
		go func() {
			err := h.Machine.Submit(context.Background(), kind)
			h.respond(req, h.Machine.Snapshot(), err)
		}()

	case "reset":
		h.respond(req, h.Machine.Reset(), nil)

	case "state":
		h.respond(req, h.Machine.Snapshot(), nil)

	case "generate":
		res, err := h.Generator.Generate(req.Params["email"])
		h.respond(req, res, err)

	case "verify":
		h.respond(req, h.Generator.Verify(req.Params["email"]), nil)

	case "recent":
		events, err := h.Repo.Recent(recentEvents)
		h.respond(req, events, err)

	default:
		h.respond(req, nil, errUnknownCommand(req.Command))
	}
}

type errUnknownCommand string

func (e errUnknownCommand) Error() string { return "unknown command: " + string(e) }
