package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harun/engram/pkg/memory"
	"github.com/harun/engram/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a minimal in-memory StoreBackend for gateway tests.
type memStore struct {
	mu       sync.Mutex
	memories []store.Memory
	nextID   int64
}

func (m *memStore) SaveMemory(ctx context.Context, content string, embedding []byte, scope string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.memories = append(m.memories, store.Memory{
		ID:        m.nextID,
		Content:   content,
		Embedding: embedding,
		Scope:     scope,
		CreatedAt: time.Now(),
	})
	return m.nextID, nil
}

func (m *memStore) GetAllMemories(ctx context.Context, scope string) ([]store.Memory, error) {
	return m.GetMemoriesAfter(ctx, 0, scope)
}

func (m *memStore) GetMemoriesAfter(ctx context.Context, afterID int64, scope string) ([]store.Memory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Memory, 0, len(m.memories))
	for _, mem := range m.memories {
		if mem.ID > afterID && (scope == "" || mem.Scope == scope) {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m *memStore) UpdateEmbedding(ctx context.Context, id int64, embedding []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.memories {
		if m.memories[i].ID == id {
			m.memories[i].Embedding = embedding
			return nil
		}
	}
	return nil
}

func (m *memStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.memories), nil
}

func (m *memStore) Path() string { return "" }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mgr, err := memory.NewManager(memory.Config{
		Store:        &memStore{},
		IndexPath:    filepath.Join(t.TempDir(), "index", "memories"),
		Dimension:    8,
		Debounce:     time.Hour,
		PeriodicSpec: "@every 1h",
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	s, err := NewServer(Config{
		Host:          "127.0.0.1",
		Port:          18787,
		SharedSecret:  "test-secret",
		MemoryManager: mgr,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	return s
}

func postRPC(t *testing.T, s *Server, secret string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewBufferString(body))
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	rec := httptest.NewRecorder()
	s.handleRPC(rec, req)
	return rec
}

func decodeRPC(t *testing.T, rec *httptest.ResponseRecorder) RPCResponse {
	t.Helper()
	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(Config{Port: 0, SharedSecret: "x"})
	assert.Error(t, err)

	_, err = NewServer(Config{Port: 8787})
	assert.Error(t, err)

	_, err = NewServer(Config{Port: 8787, SharedSecret: "x"})
	assert.Error(t, err, "memory manager is required")
}

func TestHandleRPC_RequiresSecret(t *testing.T) {
	s := newTestServer(t)

	rec := postRPC(t, s, "", `{"id":"1","method":"ping"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postRPC(t, s, "wrong", `{"id":"1","method":"ping"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleRPC_Ping(t *testing.T) {
	s := newTestServer(t)

	rec := postRPC(t, s, "test-secret", `{"id":"1","method":"ping"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeRPC(t, rec)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, true, result["pong"])
}

func TestHandleRPC_MemoryAddAndSearch(t *testing.T) {
	s := newTestServer(t)

	rec := postRPC(t, s, "test-secret", `{"id":"1","method":"memory.add","params":{"content":"the gateway listens on port 8787"}}`)
	resp := decodeRPC(t, rec)
	require.Nil(t, resp.Error)
	assert.Equal(t, true, resp.Result.(map[string]interface{})["saved"])

	rec = postRPC(t, s, "test-secret", `{"id":"2","method":"memory.hybridSearch","params":{"query":"gateway port","limit":5}}`)
	resp = decodeRPC(t, rec)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, float64(1), result["count"])
}

func TestHandleRPC_SchemaValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"add without content", `{"id":"1","method":"memory.add","params":{}}`},
		{"add with empty content", `{"id":"1","method":"memory.add","params":{"content":""}}`},
		{"search without query", `{"id":"1","method":"memory.search","params":{"limit":5}}`},
		{"search with bad limit", `{"id":"1","method":"memory.search","params":{"query":"x","limit":0}}`},
		{"unknown field", `{"id":"1","method":"memory.add","params":{"content":"x","extra":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := decodeRPC(t, postRPC(t, s, "test-secret", tt.body))
			require.NotNil(t, resp.Error)
			assert.Equal(t, InvalidParams, resp.Error.Code)
		})
	}
}

func TestHandleRPC_MemoryStats(t *testing.T) {
	s := newTestServer(t)

	rec := postRPC(t, s, "test-secret", `{"id":"1","method":"memory.stats"}`)
	resp := decodeRPC(t, rec)
	require.Nil(t, resp.Error)

	stats := resp.Result.(map[string]interface{})
	assert.Contains(t, stats, "index_ready")
	assert.Contains(t, stats, "cached_count")
}

func TestHandleRPC_UnknownMethod(t *testing.T) {
	s := newTestServer(t)

	resp := decodeRPC(t, postRPC(t, s, "test-secret", `{"id":"1","method":"memory.nope"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
}
