package driver

import (
	"context"
	"sync"

	"github.com/trialvoice-core/engine/internal/agent/model"
)

// ScriptedDriver replays a fixed queue of decisions. It backs the offline
// demo mode and the orchestration tests, where a live model is unwanted.
type ScriptedDriver struct {
	mu    sync.Mutex
	queue []*model.DriverDecision
	seen  []*model.DriverContext
}

// NewScriptedDriver queues the given decisions in order.
func NewScriptedDriver(decisions ...*model.DriverDecision) *ScriptedDriver {
	return &ScriptedDriver{queue: decisions}
}

// Decide pops the next scripted decision, recording the context it was asked
// about. An exhausted queue yields a bare acknowledgement.
func (d *ScriptedDriver) Decide(_ context.Context, dc *model.DriverContext) (*model.DriverDecision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen = append(d.seen, dc)
	if len(d.queue) == 0 {
		return &model.DriverDecision{Speech: "Understood."}, nil
	}
	next := d.queue[0]
	d.queue = d.queue[1:]
	return next, nil
}

// Contexts returns the driver contexts observed so far.
func (d *ScriptedDriver) Contexts() []*model.DriverContext {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*model.DriverContext(nil), d.seen...)
}
