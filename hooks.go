package factmap

import (
	"sync"

	factsync "github.com/agentstation/factmap/pkg/sync"
)

// Hook function types for reconciliation events
type (
	// ReconciledHook is called when a run ends done, stalled or exhausted
	ReconciledHook func(result *factsync.Result)

	// AbortedHook is called when a run aborts
	AbortedHook func(recordID string, err error)
)

// hooks manages event callbacks for reconciliation runs
type hooks struct {
	mu           sync.RWMutex
	onReconciled []ReconciledHook
	onAborted    []AbortedHook
}

func newHooks() *hooks {
	return &hooks{}
}

// OnReconciled registers a callback for finished runs
func (h *hooks) OnReconciled(fn ReconciledHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReconciled = append(h.onReconciled, fn)
}

// OnAborted registers a callback for aborted runs
func (h *hooks) OnAborted(fn AbortedHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onAborted = append(h.onAborted, fn)
}

func (h *hooks) triggerReconciled(result *factsync.Result) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onReconciled {
		fn(result)
	}
}

func (h *hooks) triggerAborted(recordID string, err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onAborted {
		fn(recordID, err)
	}
}
