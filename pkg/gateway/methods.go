package gateway

import (
	"context"
	"time"

	"github.com/harun/engram/internal/tracing"
)

// registerBuiltinMethods registers all built-in RPC methods
func (s *Server) registerBuiltinMethods() {
	_ = s.RegisterMethod("ping", s.handlePing)
	_ = s.RegisterMethod("clients.list", s.handleClientsList)
	_ = s.RegisterMethod("memory.add", s.handleMemoryAdd)
	_ = s.RegisterMethod("memory.search", s.handleMemorySearch)
	_ = s.RegisterMethod("memory.hybridSearch", s.handleMemoryHybridSearch)
	_ = s.RegisterMethod("memory.stats", s.handleMemoryStats)
	_ = s.RegisterMethod("memory.boost", s.handleMemoryBoost)
	_ = s.RegisterMethod("memory.rebuildIndex", s.handleMemoryRebuildIndex)
}

// RegisterMethod wraps a handler with schema validation and registers it.
func (s *Server) RegisterMethod(name string, handler RequestHandler) error {
	return s.router.RegisterMethod(name, func(params map[string]interface{}) (interface{}, error) {
		if rpcErr := validateParams(name, params); rpcErr != nil {
			return nil, rpcErr
		}
		return handler(params)
	})
}

func (s *Server) requestContext() context.Context {
	return tracing.NewRequestContext(context.Background())
}

func (s *Server) handlePing(params map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"pong": true,
		"time": time.Now().UnixMilli(),
	}, nil
}

func (s *Server) handleClientsList(params map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"clients": s.clients.GetConnectedClients(),
	}, nil
}

func (s *Server) handleMemoryAdd(params map[string]interface{}) (interface{}, error) {
	content := params["content"].(string)
	scope, _ := params["scope"].(string)

	ctx := s.requestContext()
	saved := s.memoryManager.AddMemory(ctx, content, scope)
	if saved {
		s.broadcaster.Broadcast("memory.added", map[string]interface{}{
			"scope": scope,
		})
	}
	return map[string]interface{}{"saved": saved}, nil
}

func (s *Server) handleMemorySearch(params map[string]interface{}) (interface{}, error) {
	query := params["query"].(string)
	scope, _ := params["scope"].(string)
	limit := intParam(params, "limit", 0)

	contents := s.memoryManager.SearchMemory(s.requestContext(), query, limit, scope)
	return map[string]interface{}{
		"results": contents,
		"count":   len(contents),
	}, nil
}

func (s *Server) handleMemoryHybridSearch(params map[string]interface{}) (interface{}, error) {
	query := params["query"].(string)

	opts := s.memoryManager.DefaultSearchOptions()
	if scope, ok := params["scope"].(string); ok {
		opts.Scope = scope
	}
	if limit := intParam(params, "limit", 0); limit > 0 {
		opts.Limit = limit
	}
	if w, ok := params["semanticWeight"].(float64); ok {
		opts.SemanticWeight = w
	}
	if w, ok := params["keywordWeight"].(float64); ok {
		opts.KeywordWeight = w
	}
	if decay, ok := params["useTimeDecay"].(bool); ok {
		opts.UseTimeDecay = decay
	}

	results := s.memoryManager.HybridSearch(s.requestContext(), query, opts)
	return map[string]interface{}{
		"results": results,
		"count":   len(results),
	}, nil
}

func (s *Server) handleMemoryStats(params map[string]interface{}) (interface{}, error) {
	return s.memoryManager.Stats(s.requestContext()), nil
}

func (s *Server) handleMemoryBoost(params map[string]interface{}) (interface{}, error) {
	id := int64(params["memoryId"].(float64))
	boost := params["boost"].(float64)

	s.memoryManager.Boost(id, boost)
	return map[string]interface{}{
		"importance": s.memoryManager.Importance(id),
	}, nil
}

func (s *Server) handleMemoryRebuildIndex(params map[string]interface{}) (interface{}, error) {
	if err := s.memoryManager.RebuildIndex(s.requestContext()); err != nil {
		return nil, err
	}
	stats := s.memoryManager.Stats(s.requestContext())
	return map[string]interface{}{
		"indexSize": stats.IndexSize,
	}, nil
}

// intParam reads a JSON number parameter as int.
func intParam(params map[string]interface{}, key string, fallback int) int {
	if v, ok := params[key].(float64); ok {
		return int(v)
	}
	return fallback
}
