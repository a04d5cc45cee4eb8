package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mhrivnak/orderflow/pkg/metrics"
)

// Hook is a unit of plug-in logic bound to a trigger point.
type Hook interface {
	Run(ctx context.Context, hc *Context) (Result, error)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx context.Context, hc *Context) (Result, error)

func (f HookFunc) Run(ctx context.Context, hc *Context) (Result, error) {
	return f(ctx, hc)
}

type registration struct {
	name   string
	hook   Hook
	params map[string]string
}

// Execution is the outcome of one hook run.
type Execution struct {
	Hook     string        `json:"hook" yaml:"hook"`
	Result   Result        `json:"result" yaml:"result"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Runner holds the hooks of every trigger point and runs them in registration order.
type Runner struct {
	mu    sync.RWMutex
	hooks map[Trigger][]registration
	log   logrus.FieldLogger
}

func NewRunner(log logrus.FieldLogger) *Runner {
	return &Runner{
		hooks: make(map[Trigger][]registration),
		log:   log,
	}
}

// Register binds hook to trigger. params are handed to the hook as Context.Params.
func (r *Runner) Register(trigger Trigger, name string, hook Hook, params map[string]string) error {
	if !trigger.Valid() {
		return fmt.Errorf("unknown trigger point %q", trigger)
	}
	if hook == nil {
		return fmt.Errorf("hook %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.hooks[trigger] {
		if existing.name == name {
			return fmt.Errorf("hook %q already registered at %s", name, trigger)
		}
	}
	r.hooks[trigger] = append(r.hooks[trigger], registration{name: name, hook: hook, params: params})
	return nil
}

// Has reports whether any hook is registered at trigger.
func (r *Runner) Has(trigger Trigger) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[trigger]) > 0
}

// Names returns the hooks registered at trigger in run order.
func (r *Runner) Names(trigger Trigger) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hooks[trigger]))
	for _, reg := range r.hooks[trigger] {
		names = append(names, reg.name)
	}
	return names
}

// Run executes the hooks of trigger until one returns FAILURE. A hook that returns an error,
// panics or reports an unknown status is treated as failed. The executions that ran are
// returned together with a *FailureError when a hook failed.
func (r *Runner) Run(ctx context.Context, trigger Trigger, hc *Context) ([]Execution, error) {
	r.mu.RLock()
	regs := make([]registration, len(r.hooks[trigger]))
	copy(regs, r.hooks[trigger])
	r.mu.RUnlock()

	executions := make([]Execution, 0, len(regs))
	for _, reg := range regs {
		if err := ctx.Err(); err != nil {
			return executions, err
		}

		hc.Params = reg.params
		start := time.Now()
		result := r.runOne(ctx, reg, hc)
		elapsed := time.Since(start)

		metrics.RecordHookExecution(string(trigger), reg.name, result.Status.Label(), elapsed.Seconds())
		executions = append(executions, Execution{Hook: reg.name, Result: result, Duration: elapsed})

		entry := r.log.WithFields(logrus.Fields{
			"trigger": trigger,
			"hook":    reg.name,
			"status":  result.Status.Label(),
		})
		if result.Status.Halts() {
			entry.WithField("error", result.Error).Warn(result.Output)
			return executions, &FailureError{Trigger: trigger, Hook: reg.name, Result: result}
		}
		entry.Debug(result.Output)
	}
	return executions, nil
}

func (r *Runner) runOne(ctx context.Context, reg registration, hc *Context) (result Result) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = Failure("", fmt.Sprintf("hook panicked: %v", recovered))
		}
	}()

	result, err := reg.hook.Run(ctx, hc)
	if err != nil {
		return Failure(result.Output, err.Error())
	}
	if !result.Status.Valid() {
		return Failure(result.Output, fmt.Sprintf("hook returned unknown status %q", result.Status))
	}
	return result
}
