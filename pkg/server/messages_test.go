// Copyright 2025 Certen Protocol

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hyperbridge/relayer-core/pkg/kvstore"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[string(key)], nil
}

func (m *memStore) Set(_ context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Delete(_ context.Context, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *memStore) Has(_ context.Context, key []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

var _ kvstore.Store = (*memStore)(nil)

func TestHandleInsertMessages_StoresMessageForConfiguredOrigin(t *testing.T) {
	origin := newMemStore()
	h := &MessagesHandler{dbs: map[uint32]kvstore.Store{1: origin}}

	body := insertMessagesRequest{
		Messages: []messageDTO{
			{
				Version: 0, Nonce: 100, Origin: 1,
				Sender: "0x0000000000000000000000000000000000000000000000000000000000000064",
				Destination: 2,
				Recipient:   "0x00000000000000000000000000000000000000000000000000000000000000c8",
				Body:        []byte{},
			},
		},
	}
	payload, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	h.HandleInsertMessages(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp insertMessagesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("expected count 1, got %d", resp.Count)
	}

	has, _ := origin.Has(context.Background(), kvstore.MessageIDByNonceKey(100))
	if !has {
		t.Fatal("expected message id stored by nonce")
	}
}

func TestHandleInsertMessages_SkipsUnconfiguredOrigin(t *testing.T) {
	h := &MessagesHandler{dbs: map[uint32]kvstore.Store{1: newMemStore()}}

	body := insertMessagesRequest{
		Messages: []messageDTO{
			{Version: 0, Nonce: 1, Origin: 999, Destination: 2, Body: []byte{}},
		},
	}
	payload, _ := json.Marshal(body)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	h.HandleInsertMessages(rr, req)

	var resp insertMessagesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 0 {
		t.Fatalf("expected count 0 for unconfigured origin, got %d", resp.Count)
	}
}

func TestHandleInsertMessages_RejectsNonPost(t *testing.T) {
	h := &MessagesHandler{dbs: map[uint32]kvstore.Store{}}

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	rr := httptest.NewRecorder()
	h.HandleInsertMessages(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
