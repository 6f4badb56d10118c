package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"nach-reprocessing/internal/errors"
	"nach-reprocessing/internal/service"
)

type Reprocessor interface {
	Reprocess(ctx context.Context, req service.ReprocessRequest) (*service.ReprocessResult, error)
}

type ReprocessHandler struct {
	reprocessService Reprocessor
}

func NewReprocessHandler(reprocessService Reprocessor) *ReprocessHandler {
	return &ReprocessHandler{
		reprocessService: reprocessService,
	}
}

type ReprocessRequest struct {
	TransactionIDs []int64 `json:"transactionIds"`
	Actor          string  `json:"actor,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

func (h *ReprocessHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	var req ReprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	result, err := h.reprocessService.Reprocess(r.Context(), service.ReprocessRequest{
		IDs:    req.TransactionIDs,
		Actor:  req.Actor,
		Reason: req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
