// Package httpapi serves the local configuration API: button CRUD,
// variable updates, and a websocket state feed. Every mutation persists
// first and reaches the driver only after the store accepted it.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/deckpilot/deckd/internal/driver"
	"github.com/deckpilot/deckd/internal/store"
)

// Control is the driver surface the API mutates through. All structural
// changes run on the driver's own goroutine.
type Control interface {
	Buttons() []store.Button
	ReplaceButtons(buttons []store.Button)
	MergeVariables(updates map[string]string)
	RequestReload()
	State() driver.State
	Subscribe() (<-chan driver.State, func())
}

type Dependencies struct {
	Store   *store.Store
	Control Control
	Logger  *slog.Logger
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	mux.HandleFunc("/api/v1/buttons", rt.handleButtons)
	mux.HandleFunc("/api/v1/buttons/", rt.handleButtonByID)
	mux.HandleFunc("/api/v1/variables", rt.handleVariables)
	mux.HandleFunc("/api/v1/reload", rt.handleReload)
	mux.HandleFunc("/api/v1/events", rt.handleEvents)
	return mux
}

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if err := r.deps.Store.Ping(req.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type buttonRequest struct {
	Label          string `json:"label"`
	Command        string `json:"command"`
	Flags          string `json:"flags"`
	MonitorKeyword string `json:"monitor_keyword"`
}

func (r *router) handleButtons(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		r.handleButtonsList(w, req)
	case http.MethodPost:
		r.handleButtonCreate(w, req)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (r *router) handleButtonsList(w http.ResponseWriter, req *http.Request) {
	state := r.deps.Control.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"buttons":   buttonPayload(r.deps.Control.Buttons()),
		"variables": state.Variables,
	})
}

func (r *router) handleButtonCreate(w http.ResponseWriter, req *http.Request) {
	var payload buttonRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	created, err := r.deps.Store.InsertButton(req.Context(), store.CreateButtonInput{
		Label:          payload.Label,
		Command:        payload.Command,
		Flags:          payload.Flags,
		MonitorKeyword: payload.MonitorKeyword,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrButtonInvalid) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	r.refreshControl(req)
	writeJSON(w, http.StatusCreated, buttonToMap(created))
}

func (r *router) handleButtonByID(w http.ResponseWriter, req *http.Request) {
	raw := strings.TrimPrefix(req.URL.Path, "/api/v1/buttons/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid button id"})
		return
	}

	switch req.Method {
	case http.MethodPut:
		r.handleButtonUpdate(w, req, id)
	case http.MethodDelete:
		r.handleButtonDelete(w, req, id)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (r *router) handleButtonUpdate(w http.ResponseWriter, req *http.Request, id int64) {
	var payload buttonRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	updated, err := r.deps.Store.UpdateButton(req.Context(), store.UpdateButtonInput{
		ID:             id,
		Label:          payload.Label,
		Command:        payload.Command,
		Flags:          payload.Flags,
		MonitorKeyword: payload.MonitorKeyword,
	})
	if err != nil {
		writeJSON(w, buttonErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	r.refreshControl(req)
	writeJSON(w, http.StatusOK, buttonToMap(updated))
}

func (r *router) handleButtonDelete(w http.ResponseWriter, req *http.Request, id int64) {
	if err := r.deps.Store.DeleteButton(req.Context(), id); err != nil {
		writeJSON(w, buttonErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	r.refreshControl(req)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// refreshControl hands the freshly persisted list to the driver. The
// store stays authoritative: a read-back failure leaves the in-memory
// list untouched.
func (r *router) refreshControl(req *http.Request) {
	buttons, err := r.deps.Store.ListButtons(req.Context())
	if err != nil {
		r.deps.Logger.Error("button list reload failed", "error", err)
		return
	}
	r.deps.Control.ReplaceButtons(buttons)
}

func (r *router) handleVariables(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var updates map[string]string
	if err := json.NewDecoder(req.Body).Decode(&updates); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if len(updates) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one variable is required"})
		return
	}
	r.deps.Control.MergeVariables(updates)
	writeJSON(w, http.StatusOK, map[string]any{"variables": r.deps.Control.State().Variables})
}

// handleReload re-runs the load script, same as the deck's LOAD key.
func (r *router) handleReload(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	r.deps.Control.RequestReload()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "reloaded",
		"buttons": len(r.deps.Control.Buttons()),
	})
}

func buttonErrorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrButtonNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrButtonInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func buttonPayload(buttons []store.Button) []map[string]any {
	out := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		out = append(out, buttonToMap(b))
	}
	return out
}

func buttonToMap(b store.Button) map[string]any {
	return map[string]any{
		"id":              b.ID,
		"label":           b.Label,
		"command":         b.Command,
		"flags":           b.Flags,
		"monitor_keyword": b.MonitorKeyword,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
