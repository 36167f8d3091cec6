package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const defaultPerPage = 20

func (s *Server) handleReportsIndex(w http.ResponseWriter, r *http.Request) {
	locations := s.registry.Locations()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<html><body><h1>reports</h1><ul>"))
	for _, loc := range locations {
		fmt.Fprintf(w, "<li><a href=\"/reports/%s\">%s</a></li>", loc, loc)
	}
	w.Write([]byte("</ul></body></html>"))
}

func (s *Server) handleReportsLocation(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "loc")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	result, err := s.store.GetPaginated(loc, page, defaultPerPage)
	if err != nil {
		internalError(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><h1>%s (page %d)</h1><ul>", loc, result.Page)
	for _, session := range result.Results {
		fmt.Fprintf(w, "<li><a href=\"/reports/%s/%d\">#%d total=%d defects=%d correct=%d</a></li>",
			loc, session.ID, session.ID, session.TotalCount, session.DefectsCount, session.CorrectCount)
	}
	fmt.Fprintf(w, "</ul><p>has_next=%v has_prev=%v</p></body></html>", result.HasNext, result.HasPrev)
}

func (s *Server) handleReportByID(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		badRequest(w, "invalid session id", idStr)
		return
	}

	session, err := s.store.GetCount(id)
	if err != nil {
		internalError(w, err.Error())
		return
	}
	if session == nil {
		notFound(w, idStr, "no session with that id")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body><h1>session #%d</h1><p>location=%s total=%d source=%d defects=%d correct=%d active=%v</p>",
		session.ID, session.Location, session.TotalCount, session.SourceCount, session.DefectsCount, session.CorrectCount, session.Active)
	fmt.Fprintf(w, "<p>parts=%d</p></body></html>", len(session.Parts))
}
