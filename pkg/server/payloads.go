// Copyright 2025 Certen Protocol
//
// Operator replay: a payload the Lander dropped (recorded by the Building
// stage when it could not be built into a transaction) stays queryable
// here, so an operator can inspect why it
// was dropped and manually resubmit through /messages if appropriate.

package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hyperbridge/relayer-core/pkg/pgstore"
)

// PayloadsHandler implements GET /payloads/{uuid}.
type PayloadsHandler struct {
	store  *pgstore.Store
	logger *log.Logger
}

type payloadReplayResponse struct {
	PayloadUUID string `json:"payload_uuid"`
	Destination uint32 `json:"destination"`
	Recipient   string `json:"recipient"`
	DropReason  string `json:"drop_reason"`
	DroppedAt   string `json:"dropped_at"`
}

// HandleGetPayload handles GET /payloads/{uuid}, returning the dropped-
// payload record pgstore holds for id, or 404 if it was never recorded
// as dropped.
func (h *PayloadsHandler) HandleGetPayload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/payloads/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload uuid")
		return
	}

	rec, err := h.store.GetDroppedPayload(r.Context(), id)
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("get dropped payload %s failed: %v", id, err)
		}
		writeError(w, http.StatusInternalServerError, "failed to load payload")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "payload not found")
		return
	}

	json.NewEncoder(w).Encode(payloadReplayResponse{
		PayloadUUID: rec.PayloadUUID.String(),
		Destination: rec.Destination,
		Recipient:   rec.Recipient,
		DropReason:  rec.Reason.String(),
		DroppedAt:   rec.DroppedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}
