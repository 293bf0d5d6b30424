package http

import (
	"encoding/json"
	"net/http"

	"kovara/internal/core"
)

type transferRequest struct {
	SenderShareableID   string `json:"senderShareableId"`
	ReceiverShareableID string `json:"receiverShareableId"`
	Amount              string `json:"amount"` // decimal string, e.g. "250.00"
	Name                string `json:"name"`
	Email               string `json:"email"`
}

type transferResponse struct {
	ID     string     `json:"id"`
	Status string     `json:"status"`
	Amount core.Money `json:"amount"`
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Request body must be valid JSON.")
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "amount must be a positive decimal, e.g. \"250.00\".")
		return
	}

	tx, err := s.transfers.CreateTransfer(r.Context(), sessionUser(r).ID, core.TransferParams{
		SenderShareableID:   req.SenderShareableID,
		ReceiverShareableID: req.ReceiverShareableID,
		Amount:              core.Money{Cents: cents},
		Name:                req.Name,
		Email:               req.Email,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, transferResponse{
		ID:     tx.ID,
		Status: string(tx.Status),
		Amount: tx.Amount,
	})
}
