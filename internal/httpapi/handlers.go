package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"cvcounter/internal/engine"
	"cvcounter/internal/middleware"
)

// actorFromRequest returns the authenticated operator's username for the
// audit trail on mutating commands, falling back to RequireAuth's zero
// value when auth is disabled (the route then ran open and no claims were
// attached to the context).
func actorFromRequest(r *http.Request) string {
	claims, err := middleware.RequireAuth(r.Context())
	if err != nil {
		return ""
	}
	return claims.Username
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	locations := s.registry.Locations()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<html><body><h1>cvcounter</h1><ul>"))
	for _, loc := range locations {
		w.Write([]byte("<li>" + loc + "</li>"))
	}
	w.Write([]byte("</ul></body></html>"))
}

func (s *Server) handleCounterPage(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "loc")
	eng, err := s.ensureEngine(loc)
	if err != nil {
		badRequest(w, "unknown location", err.Error())
		return
	}
	eng.SetViewerAttached(true)

	snap := eng.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<html><body><h1>" + loc + "</h1>"))
	w.Write([]byte("<img src=\"/counter_get_frames/" + loc + "\"/>"))
	w.Write([]byte("<p>total=" + strconv.Itoa(snap.TrackedTotal) + " current=" + strconv.Itoa(snap.Current) + "</p>"))
	w.Write([]byte("</body></html>"))
}

func (s *Server) handleCounterTextPage(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "loc")
	eng, err := s.ensureEngine(loc)
	if err != nil {
		badRequest(w, "unknown location", err.Error())
		return
	}
	snap := eng.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<html><body><p>total=" + strconv.Itoa(snap.TrackedTotal) +
		" current=" + strconv.Itoa(snap.Current) +
		" defect=" + strconv.Itoa(snap.Defect) +
		" correct=" + strconv.Itoa(snap.Correct) + "</p></body></html>"))
}

func (s *Server) handleCounterDual(w http.ResponseWriter, r *http.Request) {
	a := chi.URLParam(r, "a")
	b := chi.URLParam(r, "b")
	if _, err := s.ensureEngine(a); err != nil {
		badRequest(w, "unknown location", a)
		return
	}
	if _, err := s.ensureEngine(b); err != nil {
		badRequest(w, "unknown location", b)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<html><body>" +
		"<img src=\"/counter_get_frames/" + a + "\"/>" +
		"<img src=\"/counter_get_frames/" + b + "\"/>" +
		"</body></html>"))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "loc")
	if _, err := s.ensureEngine(loc); err != nil {
		badRequest(w, "unknown location", err.Error())
		return
	}
	s.frameHandler.ServeHTTP(w, r)
}

func (s *Server) handleSaveCount(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "loc")
	eng := s.registry.Get(loc)
	if eng == nil {
		notFound(w, loc, "no active session for location")
		return
	}

	if err := r.ParseForm(); err != nil {
		badRequest(w, "invalid form body", err.Error())
		return
	}
	correct, _ := strconv.Atoi(r.FormValue("correct_count"))
	defect, _ := strconv.Atoi(r.FormValue("defect_count"))
	customFields := parseCustomFields(r.FormValue("custom_fields"))

	total, defectOut, correctOut, err := eng.SaveCount(correct, defect, customFields, true, actorFromRequest(r))
	if err != nil {
		internalError(w, err.Error())
		return
	}

	respondOrRedirect(w, r, map[string]int{
		"total_count":   total,
		"defect_count":  defectOut,
		"correct_count": correctOut,
	})
}

func (s *Server) handleResetCount(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "loc")
	eng := s.registry.Get(loc)
	if eng == nil {
		notFound(w, loc, "no active session for location")
		return
	}
	if err := eng.ResetCount(actorFromRequest(r)); err != nil {
		internalError(w, err.Error())
		return
	}
	respondOrRedirect(w, r, map[string]int{"total_count": 0, "defect_count": 0, "correct_count": 0})
}

func (s *Server) handleResetCountCurrent(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "loc")
	eng := s.registry.Get(loc)
	if eng == nil {
		notFound(w, loc, "no active session for location")
		return
	}
	if err := r.ParseForm(); err != nil {
		badRequest(w, "invalid form body", err.Error())
		return
	}
	correct, _ := strconv.Atoi(r.FormValue("correct_count"))
	defect, _ := strconv.Atoi(r.FormValue("defect_count"))

	if err := eng.ResetCountCurrent(correct, defect, actorFromRequest(r)); err != nil {
		internalError(w, err.Error())
		return
	}
	respondOrRedirect(w, r, map[string]int{"current_count": 0})
}

func (s *Server) handleSaveCapture(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "loc")
	eng, err := s.ensureEngine(loc)
	if err != nil {
		badRequest(w, "unknown location", err.Error())
		return
	}
	if err := eng.SaveCapture(); err != nil {
		internalError(w, err.Error())
		return
	}
	respondOrRedirect(w, r, map[string]string{"status": "saved"})
}

func (s *Server) handleStartCount(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "loc")
	eng, err := s.ensureEngine(loc)
	if err != nil {
		badRequest(w, "unknown location", err.Error())
		return
	}
	if err := eng.StartWorker(); err != nil && !errors.Is(err, engine.ErrAlreadyStarted) {
		internalError(w, err.Error())
		return
	}
	respondOrRedirect(w, r, map[string]string{"status": string(eng.Status())})
}

func (s *Server) handlePauseCount(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "loc")
	eng := s.registry.Get(loc)
	if eng == nil {
		notFound(w, loc, "no active session for location")
		return
	}
	if err := eng.Pause(); err != nil {
		internalError(w, err.Error())
		return
	}
	respondOrRedirect(w, r, map[string]string{"status": string(eng.Status())})
}

func (s *Server) handleStopCount(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "loc")
	if !s.registry.Has(loc) {
		notFound(w, loc, "no active session for location")
		return
	}
	if err := s.registry.Remove(loc); err != nil {
		internalError(w, err.Error())
		return
	}
	respondOrRedirect(w, r, map[string]string{"status": "stopped"})
}

// respondOrRedirect writes JSON for AJAX callers and redirects everyone
// else to the dashboard, per the specification's AJAX-detection rule.
func respondOrRedirect(w http.ResponseWriter, r *http.Request, v interface{}) {
	if isAJAX(r) {
		writeJSON(w, http.StatusOK, v)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// parseCustomFields parses a "k=v,k2=v2" custom_fields form value. Absent
// or malformed input yields an empty map rather than an error: custom
// fields are optional.
func parseCustomFields(raw string) map[string]string {
	fields := make(map[string]string)
	if raw == "" {
		return fields
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			fields[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return fields
}
