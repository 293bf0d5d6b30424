package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

type linkTokenResponse struct {
	LinkToken string `json:"linkToken"`
}

func (s *Server) handleCreateLinkToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.accounts.CreateLinkToken(r.Context(), sessionUser(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, linkTokenResponse{LinkToken: token})
}

type exchangeRequest struct {
	PublicToken string `json:"publicToken"`
}

type exchangeResponse struct {
	AccountID   string `json:"accountId"`
	ShareableID string `json:"shareableId"`
}

func (s *Server) handleExchangePublicToken(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Request body must be valid JSON.")
		return
	}
	if req.PublicToken == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "publicToken is required.")
		return
	}

	linked, err := s.accounts.LinkAccount(r.Context(), sessionUser(r), req.PublicToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exchangeResponse{
		AccountID:   linked.ID,
		ShareableID: linked.ShareableID,
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.accounts.ListAccounts(r.Context(), sessionUser(r).ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	detail, err := s.accounts.GetAccountDetail(r.Context(), sessionUser(r).ID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("accountId")
	if accountID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "accountId query parameter is required.")
		return
	}

	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "page must be a positive integer.")
		return
	}
	pageSize, err := queryInt(r, "pageSize", defaultPageSize)
	if err != nil || pageSize < 1 || pageSize > maxPageSize {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed",
			fmt.Sprintf("pageSize must be between 1 and %d.", maxPageSize))
		return
	}

	result, err := s.accounts.ListTransactionHistory(r.Context(), sessionUser(r).ID, accountID, page, pageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
