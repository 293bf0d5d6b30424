package http

import (
	"net/http"
)

// handleCurrentMonthFinancials serves the aggregated income/expense report
// for the calendar month containing the current instant.
func (s *Server) handleCurrentMonthFinancials(w http.ResponseWriter, r *http.Request) {
	report, err := s.financials.CurrentMonthReport(r.Context(), sessionUser(r).ID, s.now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
