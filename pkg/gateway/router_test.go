package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCRouter_ParseRequest(t *testing.T) {
	router := NewRPCRouter()

	t.Run("valid request", func(t *testing.T) {
		req, err := router.ParseRequest([]byte(`{"id":"1","method":"ping","jsonrpc":"2.0"}`))
		require.NoError(t, err)
		assert.Equal(t, "ping", req.Method)
	})

	t.Run("defaults jsonrpc version", func(t *testing.T) {
		req, err := router.ParseRequest([]byte(`{"id":"1","method":"ping"}`))
		require.NoError(t, err)
		assert.Equal(t, "2.0", req.JSONRPC)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		_, err := router.ParseRequest([]byte(`{not json`))
		var rpcErr *RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, ParseError, rpcErr.Code)
	})

	t.Run("rejects missing id", func(t *testing.T) {
		_, err := router.ParseRequest([]byte(`{"method":"ping"}`))
		var rpcErr *RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, InvalidRequest, rpcErr.Code)
	})

	t.Run("rejects missing method", func(t *testing.T) {
		_, err := router.ParseRequest([]byte(`{"id":"1"}`))
		var rpcErr *RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, InvalidRequest, rpcErr.Code)
	})
}

func TestRPCRouter_RouteRequest(t *testing.T) {
	router := NewRPCRouter()
	require.NoError(t, router.RegisterMethod("echo", func(params map[string]interface{}) (interface{}, error) {
		return params["value"], nil
	}))
	require.NoError(t, router.RegisterMethod("fail", func(params map[string]interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	}))

	t.Run("routes to handler", func(t *testing.T) {
		resp := router.RouteRequest(&RPCRequest{ID: "1", Method: "echo", Params: map[string]interface{}{"value": "hi"}, JSONRPC: "2.0"})
		require.Nil(t, resp.Error)
		assert.Equal(t, "hi", resp.Result)
	})

	t.Run("unknown method", func(t *testing.T) {
		resp := router.RouteRequest(&RPCRequest{ID: "1", Method: "nope", JSONRPC: "2.0"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, MethodNotFound, resp.Error.Code)
	})

	t.Run("handler error becomes internal error", func(t *testing.T) {
		resp := router.RouteRequest(&RPCRequest{ID: "1", Method: "fail", JSONRPC: "2.0"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InternalError, resp.Error.Code)
		assert.Equal(t, "boom", resp.Error.Message)
	})

	t.Run("nil handler rejected at registration", func(t *testing.T) {
		assert.Error(t, router.RegisterMethod("bad", nil))
	})
}

func TestRPCRouter_Idempotency(t *testing.T) {
	router := NewRPCRouter()
	calls := 0
	require.NoError(t, router.RegisterMethod("counted", func(params map[string]interface{}) (interface{}, error) {
		calls++
		return calls, nil
	}))

	first := router.RouteRequest(&RPCRequest{ID: "1", Method: "counted", JSONRPC: "2.0", IdempotencyKey: "k1"})
	second := router.RouteRequest(&RPCRequest{ID: "2", Method: "counted", JSONRPC: "2.0", IdempotencyKey: "k1"})

	assert.Equal(t, 1, calls, "retry must not reexecute the handler")
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, "2", second.ID, "replayed response keeps the new request id")

	third := router.RouteRequest(&RPCRequest{ID: "3", Method: "counted", JSONRPC: "2.0", IdempotencyKey: "k2"})
	assert.Equal(t, 2, third.Result)
}

func TestRPCRouter_MethodIntrospection(t *testing.T) {
	router := NewRPCRouter()
	require.NoError(t, router.RegisterMethod("a", func(map[string]interface{}) (interface{}, error) { return nil, nil }))

	assert.True(t, router.HasMethod("a"))
	assert.False(t, router.HasMethod("b"))
	assert.Equal(t, []string{"a"}, router.GetMethods())
}
