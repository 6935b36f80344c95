package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dotside-studios/davi-ndef-viewer/host/demohost"
	"github.com/dotside-studios/davi-ndef-viewer/ndef"
	"github.com/dotside-studios/davi-ndef-viewer/protocol"
	"github.com/dotside-studios/davi-ndef-viewer/scanlog"
	"github.com/dotside-studios/davi-ndef-viewer/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, hostCfg demohost.Config, cfg Config) *Server {
	t.Helper()
	if hostCfg.Interval == 0 {
		hostCfg.Interval = 10 * time.Millisecond
	}
	cfg.Scanner = session.NewScanner(demohost.New(hostCfg), scanlog.NewStore())
	srv := New(cfg)
	t.Cleanup(srv.Stop)
	return srv
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
}

// Two batches: one message, then two messages (one raw, one structured).
const (
	batchA = `{"messages":[{"records":[{"tnf":1,"type":"VA==","payload":"aGVsbG8="}]}]}`
	batchB = `{"source":"bench","messages":[
		{"raw":"D1 01 05 54 68 65 6C 6C 6F"},
		{"records":[{"tnf":1,"type":"VA==","payload":"aGVsbG8="},{"tnf":9,"type":"eA==","payload":"/w=="}]}
	]}`
)

func TestRESTInjectAndBrowse(t *testing.T) {
	srv := newTestServer(t, demohost.Config{}, Config{})
	h := srv.Handler()

	for _, body := range []string{batchA, batchB} {
		rec := doRequest(t, h, http.MethodPost, "/api/v1/batches", body, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("POST /batches = %d: %s", rec.Code, rec.Body.String())
		}
	}

	var summaries []protocol.BatchSummaryPayload
	decodeJSON(t, doRequest(t, h, http.MethodGet, "/api/v1/batches", "", nil), &summaries)
	if len(summaries) != 2 {
		t.Fatalf("got %d batches, want 2", len(summaries))
	}
	if summaries[0].Label != "One Message" || summaries[0].Source != session.SourceHTTP {
		t.Errorf("batch 0 summary = %+v", summaries[0])
	}
	if summaries[1].Label != "2 Messages" || summaries[1].Source != "bench" {
		t.Errorf("batch 1 summary = %+v", summaries[1])
	}

	var detail protocol.BatchDetailPayload
	decodeJSON(t, doRequest(t, h, http.MethodGet, "/api/v1/batches/1", "", nil), &detail)
	if len(detail.Messages) != 2 || detail.Messages[1].Title != "2 Records" {
		t.Errorf("batch 1 detail = %+v", detail)
	}

	var msg protocol.MessageDetailPayload
	decodeJSON(t, doRequest(t, h, http.MethodGet, "/api/v1/batches/1/messages/1", "", nil), &msg)
	if msg.Title != " 2 Records found in Message" {
		t.Errorf("title = %q", msg.Title)
	}
	lines := strings.Split(msg.Body, "\n")
	if len(lines) != 2 || lines[0] != "hello" || !strings.HasPrefix(lines[1], "<unreadable payload") {
		t.Errorf("body = %q", msg.Body)
	}
	if len(msg.Records) != 2 || msg.Records[1].Label != ndef.LabelUnknown {
		t.Errorf("records = %+v", msg.Records)
	}

	var raw protocol.MessageDetailPayload
	decodeJSON(t, doRequest(t, h, http.MethodGet, "/api/v1/batches/1/messages/0", "", nil), &raw)
	if raw.Body != "hello" || raw.Records[0].Label != ndef.LabelWellKnown {
		t.Errorf("raw message detail = %+v", raw)
	}
}

func TestRESTErrors(t *testing.T) {
	srv := newTestServer(t, demohost.Config{}, Config{})
	h := srv.Handler()
	doRequest(t, h, http.MethodPost, "/api/v1/batches", batchA, nil)

	tests := []struct {
		name, method, path, body string
		status                   int
		code                     string
	}{
		{"batch past end", http.MethodGet, "/api/v1/batches/1", "", http.StatusNotFound, protocol.ErrCodeIndexOutOfRange},
		{"negative batch", http.MethodGet, "/api/v1/batches/-1", "", http.StatusNotFound, protocol.ErrCodeIndexOutOfRange},
		{"message past end", http.MethodGet, "/api/v1/batches/0/messages/1", "", http.StatusNotFound, protocol.ErrCodeIndexOutOfRange},
		{"non-numeric index", http.MethodGet, "/api/v1/batches/x", "", http.StatusBadRequest, protocol.ErrCodeInvalidRequest},
		{"bad JSON", http.MethodPost, "/api/v1/batches", "{", http.StatusBadRequest, protocol.ErrCodeInvalidRequest},
		{"no messages", http.MethodPost, "/api/v1/batches", `{"messages":[]}`, http.StatusBadRequest, protocol.ErrCodeInvalidRequest},
		{"truncated raw", http.MethodPost, "/api/v1/batches", `{"messages":[{"raw":"D1 01 05 54 68"}]}`, http.StatusBadRequest, protocol.ErrCodeInvalidNDEF},
		{"TNF out of range", http.MethodPost, "/api/v1/batches", `{"messages":[{"records":[{"tnf":300}]}]}`, http.StatusBadRequest, protocol.ErrCodeInvalidNDEF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, tt.method, tt.path, tt.body, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			var resp struct {
				ErrorCode string `json:"errorCode"`
			}
			decodeJSON(t, rec, &resp)
			if resp.ErrorCode != tt.code {
				t.Errorf("errorCode = %q, want %q", resp.ErrorCode, tt.code)
			}
		})
	}

	if got := srv.store.BatchCount(); got != 1 {
		t.Errorf("rejected requests changed the log: BatchCount = %d", got)
	}
}

func TestRESTClearLog(t *testing.T) {
	srv := newTestServer(t, demohost.Config{}, Config{})
	h := srv.Handler()
	doRequest(t, h, http.MethodPost, "/api/v1/batches", batchA, nil)

	if rec := doRequest(t, h, http.MethodDelete, "/api/v1/batches", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE /batches = %d", rec.Code)
	}
	if got := srv.store.BatchCount(); got != 0 {
		t.Errorf("BatchCount after clear = %d", got)
	}
}

func TestRESTSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, demohost.Config{}, Config{})
	h := srv.Handler()

	var state protocol.SessionPayload
	decodeJSON(t, doRequest(t, h, http.MethodGet, "/api/v1/session", "", nil), &state)
	if state.State != "idle" || state.Host != "demo" {
		t.Errorf("initial session = %+v", state)
	}

	steps := []struct {
		path   string
		status int
		state  string
	}{
		{"/api/v1/session/start", http.StatusOK, "scanning"},
		{"/api/v1/session/start", http.StatusConflict, "scanning"},
		{"/api/v1/session/stop", http.StatusOK, "idle"},
		{"/api/v1/session/stop", http.StatusConflict, "idle"},
		{"/api/v1/session/start", http.StatusOK, "scanning"},
	}
	for i, step := range steps {
		rec := doRequest(t, h, http.MethodPost, step.path, "", nil)
		if rec.Code != step.status {
			t.Fatalf("step %d %s = %d, want %d", i, step.path, rec.Code, step.status)
		}
		if got := srv.scanner.State().String(); got != step.state {
			t.Errorf("step %d state = %s, want %s", i, got, step.state)
		}
	}
}

func TestRESTSecret(t *testing.T) {
	srv := newTestServer(t, demohost.Config{}, Config{APISecret: "s3cret"})
	h := srv.Handler()

	if rec := doRequest(t, h, http.MethodGet, "/api/v1/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health without secret = %d, want 200", rec.Code)
	}

	tests := []struct {
		name   string
		path   string
		header http.Header
		status int
	}{
		{"missing", "/api/v1/batches", nil, http.StatusUnauthorized},
		{"wrong query", "/api/v1/batches?secret=nope", nil, http.StatusUnauthorized},
		{"query", "/api/v1/batches?secret=s3cret", nil, http.StatusOK},
		{"header", "/api/v1/batches", http.Header{"X-Api-Secret": {"s3cret"}}, http.StatusOK},
		{"websocket", "/ws", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		if rec := doRequest(t, h, http.MethodGet, tt.path, "", tt.header); rec.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.status)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, demohost.Config{}, Config{})
	rec := doRequest(t, srv.Handler(), http.MethodOptions, "/api/v1/batches", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != CORSAllowMethods {
		t.Errorf("Allow-Methods = %q", got)
	}
}

// wsFrame is either a broadcast or a response.
type wsFrame struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

type wsDisplay struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialDisplay(t *testing.T, srv *Server) *wsDisplay {
	t.Helper()
	srv.startBackground()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + DisplayWSPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsDisplay{t: t, conn: conn}
}

// next reads frames until one of type typ (and id, if set) arrives.
func (d *wsDisplay) next(typ, id string) wsFrame {
	d.t.Helper()
	d.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f wsFrame
		if err := d.conn.ReadJSON(&f); err != nil {
			d.t.Fatalf("waiting for %s: %v", typ, err)
		}
		if f.Type == typ && (id == "" || f.ID == id) {
			return f
		}
	}
}

func (d *wsDisplay) request(id, typ string, payload map[string]any) {
	d.t.Helper()
	if err := d.conn.WriteJSON(protocol.WebSocketRequest{ID: id, Type: typ, Payload: payload}); err != nil {
		d.t.Fatalf("write %s: %v", typ, err)
	}
}

func TestWebSocketInitialStateAndRefresh(t *testing.T) {
	srv := newTestServer(t, demohost.Config{}, Config{})
	d := dialDisplay(t, srv)

	var state protocol.SessionPayload
	json.Unmarshal(d.next(protocol.WSTypeSessionState, "").Payload, &state)
	if state.State != "idle" {
		t.Errorf("initial state = %+v", state)
	}
	var snap protocol.LogChangedPayload
	json.Unmarshal(d.next(protocol.WSTypeLogChanged, "").Payload, &snap)
	if snap.Reason != "snapshot" || snap.BatchCount != 0 {
		t.Errorf("initial snapshot = %+v", snap)
	}

	doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/batches", batchB, nil)

	var changed protocol.LogChangedPayload
	json.Unmarshal(d.next(protocol.WSTypeLogChanged, "").Payload, &changed)
	if changed.Reason != "appended" || changed.BatchCount != 1 {
		t.Fatalf("logChanged = %+v", changed)
	}
	if changed.Latest == nil || changed.Latest.Label != "2 Messages" {
		t.Errorf("latest = %+v", changed.Latest)
	}

	d.request("c1", protocol.WSTypeClearLog, nil)
	if f := d.next(protocol.WSTypeClearLog, "c1"); !f.Success {
		t.Errorf("clearLog failed: %s", f.Error)
	}
	var cleared protocol.LogChangedPayload
	for cleared.Reason != "cleared" {
		json.Unmarshal(d.next(protocol.WSTypeLogChanged, "").Payload, &cleared)
	}
	if cleared.BatchCount != 0 {
		t.Errorf("cleared = %+v", cleared)
	}
}

func TestWebSocketRequests(t *testing.T) {
	srv := newTestServer(t, demohost.Config{}, Config{})
	srv.scanner.Deliver("test", []ndef.Message{ndef.NewMessage(ndef.NewURIRecord("https://example.com"))})
	d := dialDisplay(t, srv)

	d.request("1", protocol.WSTypeListBatches, nil)
	var summaries []protocol.BatchSummaryPayload
	json.Unmarshal(d.next(protocol.WSTypeListBatches, "1").Payload, &summaries)
	if len(summaries) != 1 || summaries[0].Source != "test" {
		t.Errorf("listBatches = %+v", summaries)
	}

	d.request("2", protocol.WSTypeGetBatch, map[string]any{"batch": 0})
	var batch protocol.BatchDetailPayload
	json.Unmarshal(d.next(protocol.WSTypeGetBatch, "2").Payload, &batch)
	if len(batch.Messages) != 1 || batch.Messages[0].Title != "1 Records" {
		t.Errorf("getBatch = %+v", batch)
	}

	d.request("3", protocol.WSTypeGetMessage, map[string]any{"batch": 0, "message": 0})
	var msg protocol.MessageDetailPayload
	json.Unmarshal(d.next(protocol.WSTypeGetMessage, "3").Payload, &msg)
	if msg.Title != " 1 Records found in Message" || len(msg.Records) != 1 {
		t.Errorf("getMessage = %+v", msg)
	}

	errorTests := []struct {
		id, typ string
		payload map[string]any
		code    string
	}{
		{"4", protocol.WSTypeGetMessage, map[string]any{"batch": 0, "message": 3}, protocol.ErrCodeIndexOutOfRange},
		{"5", protocol.WSTypeGetMessage, map[string]any{"batch": 0}, protocol.ErrCodeInvalidRequest},
		{"6", protocol.WSTypeGetBatch, map[string]any{"batch": 1.5}, protocol.ErrCodeInvalidRequest},
		{"7", "writeTag", nil, protocol.ErrCodeUnknownType},
		{"8", protocol.WSTypeStopSession, nil, protocol.ErrCodeSessionError},
	}
	for _, tt := range errorTests {
		d.request(tt.id, tt.typ, tt.payload)
		f := d.next(protocol.WSTypeError, tt.id)
		var payload struct {
			Code string `json:"code"`
		}
		json.Unmarshal(f.Payload, &payload)
		if f.Success || payload.Code != tt.code {
			t.Errorf("request %s (%s): code = %q, want %q", tt.id, tt.typ, payload.Code, tt.code)
		}
	}
}

func TestWebSocketSessionInvalidatedBroadcast(t *testing.T) {
	script := demohost.Config{
		Batches: [][]ndef.Message{{ndef.NewMessage(ndef.NewTextRecord("hi", "en"))}},
		EndWith: session.ErrTimeout,
	}
	srv := newTestServer(t, script, Config{})
	d := dialDisplay(t, srv)

	d.request("s", protocol.WSTypeStartSession, nil)
	var state protocol.SessionPayload
	json.Unmarshal(d.next(protocol.WSTypeStartSession, "s").Payload, &state)
	if state.State != "scanning" {
		t.Errorf("startSession state = %+v", state)
	}

	var changed protocol.LogChangedPayload
	json.Unmarshal(d.next(protocol.WSTypeLogChanged, "").Payload, &changed)
	if changed.Reason == "snapshot" {
		json.Unmarshal(d.next(protocol.WSTypeLogChanged, "").Payload, &changed)
	}
	if changed.Latest == nil || changed.Latest.Source != "demo" {
		t.Errorf("logChanged = %+v", changed)
	}

	var ended protocol.SessionInvalidatedPayload
	json.Unmarshal(d.next(protocol.WSTypeSessionInvalidated, "").Payload, &ended)
	if ended.Reason != "timeout" || ended.Host != "demo" {
		t.Errorf("sessionInvalidated = %+v", ended)
	}
	if got := srv.scanner.State(); got != session.StateIdle {
		t.Errorf("state after invalidation = %v", got)
	}
}

func TestMultipleDisplaysReceiveBroadcasts(t *testing.T) {
	srv := newTestServer(t, demohost.Config{}, Config{})
	a := dialDisplay(t, srv)
	b := dialDisplay(t, srv)

	// Each display gets its snapshot once registered.
	a.next(protocol.WSTypeLogChanged, "")
	b.next(protocol.WSTypeLogChanged, "")
	if got := srv.ClientCount(); got != 2 {
		t.Fatalf("ClientCount = %d, want 2", got)
	}

	srv.scanner.Deliver("test", []ndef.Message{{}})
	for _, d := range []*wsDisplay{a, b} {
		var changed protocol.LogChangedPayload
		json.Unmarshal(d.next(protocol.WSTypeLogChanged, "").Payload, &changed)
		if changed.BatchCount != 1 {
			t.Errorf("logChanged = %+v", changed)
		}
	}
}

func TestMDNSText(t *testing.T) {
	txt := strings.Join(mdnsText(true, false), ",")
	for _, want := range []string{"scheme=wss", "path=/ws", "device_path=/ws/device", "secret=false"} {
		if !strings.Contains(txt, want) {
			t.Errorf("TXT %q missing %q", txt, want)
		}
	}
}
