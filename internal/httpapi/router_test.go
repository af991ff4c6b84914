package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/deckpilot/deckd/internal/driver"
	"github.com/deckpilot/deckd/internal/store"
)

type fakeControl struct {
	mu       sync.Mutex
	buttons  []store.Button
	vars     map[string]string
	replaced int
	reloads  int
	states   chan driver.State
}

func newFakeControl() *fakeControl {
	return &fakeControl{
		vars:   map[string]string{"SCENE": "intro"},
		states: make(chan driver.State, 8),
	}
}

func (f *fakeControl) Buttons() []store.Button {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Button, len(f.buttons))
	copy(out, f.buttons)
	return out
}

func (f *fakeControl) ReplaceButtons(buttons []store.Button) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buttons = buttons
	f.replaced++
}

func (f *fakeControl) MergeVariables(updates map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range updates {
		f.vars[k] = v
	}
}

func (f *fakeControl) State() driver.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	vars := make(map[string]string, len(f.vars))
	for k, v := range f.vars {
		vars[k] = v
	}
	return driver.State{Page: 0, TotalPages: 1, Variables: vars, Statuses: map[int]string{}}
}

func (f *fakeControl) RequestReload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
}

func (f *fakeControl) Subscribe() (<-chan driver.State, func()) {
	return f.states, func() {}
}

func (f *fakeControl) replacedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replaced
}

func newTestRouter(t *testing.T) (http.Handler, *fakeControl, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "deckd_test.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	control := newFakeControl()
	handler := NewRouter(Dependencies{
		Store:   st,
		Control: control,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return handler, control, st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	if rec := doJSON(t, handler, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz status %d", rec.Code)
	}
}

func TestButtonCreatePersistsThenRefreshes(t *testing.T) {
	handler, control, st := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/buttons", buttonRequest{
		Label:   "Play",
		Command: "play {{SCENE:intro}}",
		Flags:   "G",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body)
	}
	if control.replacedCount() != 1 {
		t.Fatal("driver must receive the new list")
	}
	buttons, err := st.ListButtons(context.Background())
	if err != nil || len(buttons) != 1 {
		t.Fatalf("persisted buttons %v err=%v", buttons, err)
	}
}

func TestButtonCreateInvalidDoesNotTouchDriver(t *testing.T) {
	handler, control, _ := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/buttons", buttonRequest{Label: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid create status %d", rec.Code)
	}
	if control.replacedCount() != 0 {
		t.Fatal("failed persist must not mutate the driver")
	}
}

func TestButtonUpdateAndDelete(t *testing.T) {
	handler, control, st := newTestRouter(t)
	created, err := st.InsertButton(context.Background(), store.CreateButtonInput{Label: "Cam", Command: "ssh op@cam"})
	if err != nil {
		t.Fatalf("seed button: %v", err)
	}

	rec := doJSON(t, handler, http.MethodPut, "/api/v1/buttons/1", buttonRequest{
		Label:   "Cam 2",
		Command: "ssh op@cam2",
		Flags:   "@B",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", rec.Code, rec.Body)
	}
	got, err := st.GetButton(context.Background(), created.ID)
	if err != nil || got.Label != "Cam 2" {
		t.Fatalf("updated row %+v err=%v", got, err)
	}

	if rec := doJSON(t, handler, http.MethodDelete, "/api/v1/buttons/1", nil); rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}
	if rec := doJSON(t, handler, http.MethodDelete, "/api/v1/buttons/1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("double delete status %d", rec.Code)
	}
	if control.replacedCount() != 2 {
		t.Fatalf("driver refreshes %d, want 2", control.replacedCount())
	}
}

func TestButtonBadID(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	if rec := doJSON(t, handler, http.MethodDelete, "/api/v1/buttons/zero", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status %d", rec.Code)
	}
}

func TestButtonsListIncludesVariables(t *testing.T) {
	handler, _, st := newTestRouter(t)
	if _, err := st.InsertButton(context.Background(), store.CreateButtonInput{Label: "Play"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	doJSON(t, handler, http.MethodPost, "/api/v1/buttons", buttonRequest{Label: "Other"})

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/buttons", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var payload struct {
		Buttons   []map[string]any  `json:"buttons"`
		Variables map[string]string `json:"variables"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(payload.Buttons) != 2 {
		t.Fatalf("buttons in list %d", len(payload.Buttons))
	}
	if payload.Variables["SCENE"] != "intro" {
		t.Fatalf("variables %v", payload.Variables)
	}
}

func TestVariablesMerge(t *testing.T) {
	handler, control, _ := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPut, "/api/v1/variables", map[string]string{"TAKE": "7"})
	if rec.Code != http.StatusOK {
		t.Fatalf("merge status %d", rec.Code)
	}
	if control.State().Variables["TAKE"] != "7" {
		t.Fatal("variable not merged")
	}

	if rec := doJSON(t, handler, http.MethodPut, "/api/v1/variables", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty merge status %d", rec.Code)
	}
}

func TestReloadEndpoint(t *testing.T) {
	handler, control, _ := newTestRouter(t)

	if rec := doJSON(t, handler, http.MethodPost, "/api/v1/reload", nil); rec.Code != http.StatusOK {
		t.Fatalf("reload status %d", rec.Code)
	}
	control.mu.Lock()
	reloads := control.reloads
	control.mu.Unlock()
	if reloads != 1 {
		t.Fatalf("reloads %d, want 1", reloads)
	}

	if rec := doJSON(t, handler, http.MethodGet, "/api/v1/reload", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("reload GET status %d", rec.Code)
	}
}

func TestEventsStreamsSnapshots(t *testing.T) {
	handler, control, _ := newTestRouter(t)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var first driver.State
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if first.Variables["SCENE"] != "intro" {
		t.Fatalf("initial snapshot %+v", first)
	}

	control.states <- driver.State{Page: 1, TotalPages: 2, Variables: map[string]string{"SCENE": "finale"}}
	var second driver.State
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read pushed snapshot: %v", err)
	}
	if second.Page != 1 || second.Variables["SCENE"] != "finale" {
		t.Fatalf("pushed snapshot %+v", second)
	}
}
