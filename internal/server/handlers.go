package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/nudge/internal/engine"
	"github.com/roach88/nudge/internal/ir"
	"github.com/roach88/nudge/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encode response failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// eventResponse is the body of POST /events.
type eventResponse struct {
	engine.Report
	Pending int `json:"pending"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev ir.SystemEvent
	if !s.decode(w, r, &ev) {
		return
	}
	if ev.Type == "" {
		s.respondError(w, http.StatusBadRequest, "event type is required")
		return
	}

	report, err := s.dispatcher.Dispatch(r.Context(), ev)
	switch {
	case errors.Is(err, engine.ErrDispatcherStopped):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil && len(report.Outcomes) == 0:
		// Nothing was evaluated: the reminder snapshot failed or the
		// request was cancelled.
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Per-reminder failures are reported in the outcomes; the event itself
	// was accepted.
	s.respondJSON(w, http.StatusAccepted, eventResponse{Report: report, Pending: s.dispatcher.Pending()})
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	status := ir.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.respondError(w, http.StatusBadRequest, "unknown status "+string(status))
		return
	}

	reminders, err := s.store.ListReminders(r.Context(), status)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"reminders": reminders,
		"count":     len(reminders),
	})
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var rem ir.Reminder
	if !s.decode(w, r, &rem) {
		return
	}
	if rem.ID == "" {
		rem.ID = s.ids.Generate()
	}
	if rem.CreatedAt == 0 {
		rem.CreatedAt = s.now()
	}
	if rem.Status == "" {
		rem.Status = ir.StatusWaiting
	}
	if rem.Conditions == nil {
		rem.Conditions = []ir.Condition{}
	}

	err := s.store.CreateReminder(r.Context(), rem)
	var invalid *ir.InvalidReminderError
	switch {
	case errors.As(err, &invalid):
		s.respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "invalid reminder",
			"problems": invalid.Problems,
		})
		return
	case errors.Is(err, store.ErrExists):
		s.respondError(w, http.StatusConflict, "reminder "+rem.ID+" already exists")
		return
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("reminder created", "reminder_id", rem.ID, "triggers", len(rem.Triggers))
	s.respondJSON(w, http.StatusCreated, rem)
}

func (s *Server) handleGetReminder(w http.ResponseWriter, r *http.Request) {
	rem, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, rem)
}

func (s *Server) handleListFirings(w http.ResponseWriter, r *http.Request) {
	rem, ok := s.lookup(w, r)
	if !ok {
		return
	}
	firings, err := s.store.ListFirings(r.Context(), rem.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if firings == nil {
		firings = []ir.Firing{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"reminder_id": rem.ID,
		"firings":     firings,
	})
}

func (s *Server) handleReactivate(w http.ResponseWriter, r *http.Request) {
	rem, ok := s.lookup(w, r)
	if !ok {
		return
	}

	waiting, err := s.ctrl.Reactivate(rem)
	if engine.IsInvalidReminderError(err) {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.store.SaveReminder(r.Context(), waiting); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, waiting)
}

// lookup loads the {id} reminder, writing 404 when it does not exist.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (ir.Reminder, bool) {
	id := chi.URLParam(r, "id")
	rem, err := s.store.GetReminder(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "reminder "+id+" not found")
		return ir.Reminder{}, false
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return ir.Reminder{}, false
	}
	return rem, true
}
