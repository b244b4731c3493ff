package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Typed builds a tool whose parameter schema is reflected from T and whose
// handler receives the decoded arguments.
//
// Example:
//
//	type WeatherParams struct {
//	    City string `json:"city" jsonschema:"required,description=City name"`
//	}
//
//	def, h := tool.Typed("get_weather", "Current weather for a city",
//	    func(ctx context.Context, p WeatherParams) (any, error) {
//	        return lookup(p.City)
//	    })
func Typed[T any](name, description string, fn func(context.Context, T) (any, error)) (Tool, Handler) {
	def := Tool{
		Type:        TypeFunction,
		Name:        name,
		Description: description,
		Parameters:  Schema[T](),
	}

	h := func(ctx context.Context, args json.RawMessage) (any, error) {
		var params T
		if len(args) > 0 && string(args) != "null" {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("invalid arguments for tool %s: %w", name, err)
			}
		}
		return fn(ctx, params)
	}

	return def, h
}

// Schema reflects the JSON schema of T with all definitions inlined.
func Schema[T any]() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	var zero T
	schema := reflector.Reflect(zero)
	schema.Version = ""
	schema.ID = ""
	return schema
}
