package ws

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"qrgate/internal/generator"
	"qrgate/internal/model"
	"qrgate/internal/repo"
	"qrgate/internal/workflow"
	"qrgate/pkg/backend"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type envelope struct {
	Type      string         `json:"type"`
	Event     string         `json:"event"`
	RequestID string         `json:"request_id"`
	Code      int            `json:"code"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
}

// readUntil drains envelopes until pred matches, failing the test if the
// connection goes quiet first.
func readUntil(t *testing.T, conn *websocket.Conn, pred func(envelope) bool) envelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var env envelope
		require.NoError(t, conn.ReadJSON(&env))
		if pred(env) {
			return env
		}
	}
}

func response(id string) func(envelope) bool {
	return func(e envelope) bool { return e.Type == "response" && e.RequestID == id }
}

func stateWith(pred func(map[string]any) bool) func(envelope) bool {
	return func(e envelope) bool { return e.Type == "event" && e.Event == "state" && pred(e.Data) }
}

func dialTestServer(t *testing.T, backendHandler http.Handler) *websocket.Conn {
	t.Helper()

	backendSrv := httptest.NewServer(backendHandler)
	t.Cleanup(backendSrv.Close)

	log := zaptest.NewLogger(t)
	store, err := repo.NewSQLiteRepo(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	machine := workflow.NewMachine(backend.NewClient(backendSrv.URL, 5*time.Second), store, log)
	gen := generator.New(generator.Options{PixelWidth: 64}, t.TempDir(), "http://localhost:8088", log)

	srv := httptest.NewServer(NewServer(machine, gen, store, log))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, id, command string, params map[string]string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(model.Request{RequestID: id, Command: command, Params: params}))
}

func TestScanEntryFlow(t *testing.T) {
	conn := dialTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/qr/allow-entry", r.URL.Path)
		w.Write([]byte(`{"status":"ok"}`))
	}))

	// fresh connections get the current snapshot pushed immediately
	env := readUntil(t, conn, stateWith(func(d map[string]any) bool { return true }))
	assert.Equal(t, "idle", env.Data["phase"])

	send(t, conn, "r1", "scan", map[string]string{"text": "user@example.com"})
	env = readUntil(t, conn, response("r1"))
	assert.Equal(t, 0, env.Code)
	assert.Equal(t, "eHZodUNoe2Rwc29oMWZycA==", env.Data["encoded"])

	// the submit runs async: submitting and resolved states are pushed, then
	// the response lands
	send(t, conn, "r2", "entry", nil)
	env = readUntil(t, conn, stateWith(func(d map[string]any) bool { return d["phase"] == "resolved" }))
	assert.Equal(t, "entry", env.Data["action"])
	assert.Contains(t, env.Data["status"], "success")

	env = readUntil(t, conn, response("r2"))
	assert.Equal(t, 0, env.Code)
}

func TestScanErrorIsSwallowed(t *testing.T) {
	conn := dialTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send(t, conn, "e1", "scan_error", map[string]string{"message": "NotFoundException"})
	env := readUntil(t, conn, response("e1"))
	assert.Equal(t, 0, env.Code)

	send(t, conn, "s1", "state", nil)
	env = readUntil(t, conn, response("s1"))
	assert.Equal(t, "idle", env.Data["phase"])
}

func TestEntryWithoutScanReturnsError(t *testing.T) {
	conn := dialTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no backend call expected")
	}))

	send(t, conn, "r1", "entry", nil)
	env := readUntil(t, conn, response("r1"))
	assert.Equal(t, -1, env.Code)
	assert.Contains(t, env.Message, "no scan result")
}

func TestResetCommand(t *testing.T) {
	conn := dialTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	send(t, conn, "r1", "scan", map[string]string{"text": "gate-7"})
	readUntil(t, conn, response("r1"))

	send(t, conn, "r2", "reset", nil)
	env := readUntil(t, conn, response("r2"))
	assert.Equal(t, 0, env.Code)
	assert.Equal(t, "idle", env.Data["phase"])
	assert.Nil(t, env.Data["scan_text"])
}

func TestGenerateAndVerifyCommands(t *testing.T) {
	conn := dialTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send(t, conn, "g1", "generate", map[string]string{"email": "visitor@qrgate.dev"})
	env := readUntil(t, conn, response("g1"))
	require.Equal(t, 0, env.Code)
	assert.Equal(t, "eWx2bHdydUN0dWpkd2gxZ2h5", env.Data["token"])

	send(t, conn, "g2", "generate", map[string]string{"email": ""})
	env = readUntil(t, conn, response("g2"))
	assert.Equal(t, -1, env.Code)

	send(t, conn, "v1", "verify", map[string]string{"email": "user@example.com"})
	env = readUntil(t, conn, response("v1"))
	require.Equal(t, 0, env.Code)
	assert.Equal(t, true, env.Data["match"])
	assert.Equal(t, "user@example.com", env.Data["decoded"])
}

func TestUnknownCommand(t *testing.T) {
	conn := dialTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send(t, conn, "x1", "frobnicate", nil)
	env := readUntil(t, conn, response("x1"))
	assert.Equal(t, -1, env.Code)
	assert.Contains(t, env.Message, "unknown command")
}
