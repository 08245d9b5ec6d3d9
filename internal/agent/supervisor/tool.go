package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
)

// BackendFunc performs the actual external call for a tool.
type BackendFunc func(ctx context.Context, params map[string]any) (map[string]any, error)

// FallbackFunc produces the degraded payload when the call cannot succeed.
type FallbackFunc func(params map[string]any) map[string]any

// ToolSpec declares everything the supervisor needs to run one tool: its
// parameter schema, latency budget, idempotence, breaker grouping, and the
// fallback used when the dependency is down.
type ToolSpec struct {
	ID            string
	Description   string
	DependencyKey string
	Timeout       time.Duration
	Idempotent    bool
	CostUSD       float64
	Params        map[string]*schema.ParameterInfo
	Call          BackendFunc
	Fallback      FallbackFunc

	// ConfirmsSignal marks tools whose successful payload is merged back
	// into the qualification record by the orchestration loop.
	ConfirmsSignal bool
}

// validate checks params against the declared schema. Validation failures are
// caller bugs and never reach the dependency or the breaker.
func (s *ToolSpec) validate(params map[string]any) error {
	for name, info := range s.Params {
		v, ok := params[name]
		if !ok {
			if info.Required {
				return fmt.Errorf("%w: missing required parameter %q for tool %s", ErrInvalidParams, name, s.ID)
			}
			continue
		}
		if !matchesType(v, info.Type) {
			return fmt.Errorf("%w: parameter %q for tool %s has type %T, want %s", ErrInvalidParams, name, s.ID, v, info.Type)
		}
	}
	for name := range params {
		if _, ok := s.Params[name]; !ok {
			return fmt.Errorf("%w: unknown parameter %q for tool %s", ErrInvalidParams, name, s.ID)
		}
	}
	return nil
}

func matchesType(v any, t schema.DataType) bool {
	switch t {
	case schema.String:
		_, ok := v.(string)
		return ok
	case schema.Boolean:
		_, ok := v.(bool)
		return ok
	case schema.Integer:
		switch v.(type) {
		case int, int32, int64:
			return true
		case float64:
			f := v.(float64)
			return f == float64(int64(f))
		}
		return false
	case schema.Number:
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case schema.Array:
		switch v.(type) {
		case []any, []string:
			return true
		}
		return false
	case schema.Object:
		_, ok := v.(map[string]any)
		return ok
	}
	return true
}
