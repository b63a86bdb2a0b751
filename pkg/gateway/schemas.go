package gateway

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// paramSchemas maps RPC methods to the JSON schema their params must
// satisfy. Methods absent from this map accept anything.
var paramSchemas = map[string]string{
	"memory.add": `{
		"type": "object",
		"properties": {
			"content": {"type": "string", "minLength": 1},
			"scope": {"type": "string"}
		},
		"required": ["content"],
		"additionalProperties": false
	}`,
	"memory.search": `{
		"type": "object",
		"properties": {
			"query": {"type": "string", "minLength": 1},
			"limit": {"type": "integer", "minimum": 1, "maximum": 100},
			"scope": {"type": "string"}
		},
		"required": ["query"],
		"additionalProperties": false
	}`,
	"memory.hybridSearch": `{
		"type": "object",
		"properties": {
			"query": {"type": "string", "minLength": 1},
			"limit": {"type": "integer", "minimum": 1, "maximum": 100},
			"scope": {"type": "string"},
			"semanticWeight": {"type": "number", "minimum": 0},
			"keywordWeight": {"type": "number", "minimum": 0},
			"useTimeDecay": {"type": "boolean"}
		},
		"required": ["query"],
		"additionalProperties": false
	}`,
	"memory.boost": `{
		"type": "object",
		"properties": {
			"memoryId": {"type": "integer", "minimum": 1},
			"boost": {"type": "number", "minimum": -2, "maximum": 2}
		},
		"required": ["memoryId", "boost"],
		"additionalProperties": false
	}`,
}

var compiledSchemas = func() map[string]*gojsonschema.Schema {
	out := make(map[string]*gojsonschema.Schema, len(paramSchemas))
	for method, raw := range paramSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("invalid schema for %s: %v", method, err))
		}
		out[method] = schema
	}
	return out
}()

// validateParams checks params against the method's schema.
func validateParams(method string, params map[string]interface{}) *RPCError {
	schema, ok := compiledSchemas[method]
	if !ok {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return &RPCError{Code: InvalidParams, Message: "Invalid params", Data: err.Error()}
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return &RPCError{
		Code:    InvalidParams,
		Message: "Invalid params",
		Data:    strings.Join(details, "; "),
	}
}
