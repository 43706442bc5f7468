// Copyright 2025 Certen Protocol
//
// Manual message insertion API: lets an operator backfill messages the
// origin indexer missed, storing them directly into the origin's
// kvstore the same way the indexer itself would.

package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyperbridge/relayer-core/pkg/kvstore"
	"github.com/hyperbridge/relayer-core/pkg/message"
)

// MessagesHandler implements POST /messages. dbs maps origin domain to
// that origin's kvstore.Store; a message whose origin has no entry is
// silently skipped, exactly as the original relayer drops messages for
// an unconfigured origin.
type MessagesHandler struct {
	dbs    map[uint32]kvstore.Store
	logger *log.Logger
}

// messageDTO is the wire shape of one message in an insertion request,
// matching the original relayer's manual-insertion JSON body field for
// field.
type messageDTO struct {
	Version               uint8  `json:"version"`
	Nonce                 uint32 `json:"nonce"`
	Origin                uint32 `json:"origin"`
	Sender                string `json:"sender"`
	Destination           uint32 `json:"destination"`
	Recipient             string `json:"recipient"`
	Body                  []byte `json:"body"`
	DispatchedBlockNumber uint64 `json:"dispatched_block_number"`
}

type insertMessagesRequest struct {
	Messages []messageDTO `json:"messages"`
}

type insertMessagesResponse struct {
	Count uint64 `json:"count"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// HandleInsertMessages handles POST /messages: manually inserts messages
// into the store for whichever configured origin each message names,
// silently skipping any message whose origin is not configured.
func (h *MessagesHandler) HandleInsertMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req insertMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	var count uint64
	for _, dto := range req.Messages {
		store, ok := h.dbs[dto.Origin]
		if !ok {
			if h.logger != nil {
				h.logger.Printf("no store configured for origin %d, skipping message", dto.Origin)
			}
			continue
		}

		msg := message.Message{
			Version:     dto.Version,
			Nonce:       dto.Nonce,
			Origin:      dto.Origin,
			Sender:      common.HexToHash(dto.Sender),
			Destination: dto.Destination,
			Recipient:   common.HexToHash(dto.Recipient),
			Body:        dto.Body,
		}

		if err := storeMessage(ctx, store, msg, dto.DispatchedBlockNumber); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		count++
	}

	json.NewEncoder(w).Encode(insertMessagesResponse{Count: count})
}

func storeMessage(ctx context.Context, store kvstore.Store, msg message.Message, dispatchedBlockNumber uint64) error {
	id := msg.ID()
	committed := message.CommittedMessage{
		Message:               msg,
		DispatchedBlockNumber: dispatchedBlockNumber,
		ObservedAt:            time.Now(),
	}

	typed := kvstore.NewTypedStore(store)
	if err := typed.StoreJSON(ctx, kvstore.MessageByIDKey(id), &committed); err != nil {
		return err
	}
	if err := store.Set(ctx, kvstore.MessageIDByNonceKey(msg.Nonce), id.Bytes()); err != nil {
		return err
	}

	blockBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(blockBytes, dispatchedBlockNumber)
	return store.Set(ctx, kvstore.DispatchedBlockNumberByNonceKey(msg.Nonce), blockBytes)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Message: msg})
}
