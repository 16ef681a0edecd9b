package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/skysweep/skysweep/internal/registry"
	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/logger"
)

const (
	defaultMaxWorkers          = 25
	defaultProviderConcurrency = 5
)

// Config bounds the executor's parallelism
type Config struct {
	// MaxWorkers caps the number of checks evaluated concurrently
	MaxWorkers int
	// ProviderConcurrency additionally caps concurrent checks per provider,
	// keeping pressure on one provider account within its rate budget
	ProviderConcurrency int
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = defaultMaxWorkers
	}
	if c.ProviderConcurrency <= 0 {
		c.ProviderConcurrency = defaultProviderConcurrency
	}
	return c
}

// Executor fans the selected check set out over a bounded worker pool. Each
// check's failure is isolated: an evaluator error or panic is recorded on its
// execution and never halts the scan. Final execution order matches the
// registry's deterministic check order regardless of completion order.
type Executor struct {
	registry *registry.Registry
	config   Config
	progress ProgressFunc
}

// New returns an executor over the given registry. The progress callback may
// be nil.
func New(reg *registry.Registry, config Config, progress ProgressFunc) *Executor {
	return &Executor{
		registry: reg,
		config:   config.withDefaults(),
		progress: progress,
	}
}

// Run executes the given checks against the scan scope and returns one
// execution record per check, in input order. Cancelling the context halts
// submission of new checks; in-flight evaluators finish cooperatively.
func (e *Executor) Run(ctx context.Context, scan *domain.ScanContext, checkIDs []string) []Execution {
	executions := make([]Execution, len(checkIDs))
	for i, id := range checkIDs {
		executions[i] = Execution{CheckID: id, State: StatePending}
	}

	bound := make(chan struct{}, e.config.MaxWorkers)
	providerSlots := e.providerSlots(checkIDs)
	var wg sync.WaitGroup

	for i := range executions {
		if err := ctx.Err(); err != nil {
			executions[i].Err = err
			executions[i].Error = err.Error()
			continue
		}
		select {
		case <-ctx.Done():
			executions[i].Err = ctx.Err()
			executions[i].Error = ctx.Err().Error()
			continue
		case bound <- struct{}{}:
		}

		wg.Add(1)
		go func(execution *Execution) {
			defer func() {
				<-bound
				wg.Done()
			}()
			e.execute(ctx, scan, execution, providerSlots)
		}(&executions[i])
	}

	wg.Wait()
	return executions
}

// providerSlots builds one semaphore per provider present in the check set
func (e *Executor) providerSlots(checkIDs []string) map[domain.Provider]chan struct{} {
	slots := map[domain.Provider]chan struct{}{}
	for _, id := range checkIDs {
		metadata, ok := e.registry.Metadata(id)
		if !ok {
			continue
		}
		if _, exists := slots[metadata.Provider]; !exists {
			slots[metadata.Provider] = make(chan struct{}, e.config.ProviderConcurrency)
		}
	}
	return slots
}

func (e *Executor) execute(ctx context.Context, scan *domain.ScanContext, execution *Execution, providerSlots map[domain.Provider]chan struct{}) {
	defer func() {
		if recovered := recover(); recovered != nil {
			execution.State = StateFailed
			execution.Err = fmt.Errorf("evaluator panicked: %v", recovered)
			execution.Error = execution.Err.Error()
			execution.CompletedAt = time.Now().UTC()
			logger.Errorw(
				"check evaluator panicked",
				"check", execution.CheckID,
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			e.report(*execution)
		}
	}()

	evaluator, ok := e.registry.Evaluator(execution.CheckID)
	if !ok {
		execution.State = StateFailed
		execution.Err = fmt.Errorf("check %s is not registered", execution.CheckID)
		execution.Error = execution.Err.Error()
		e.report(*execution)
		return
	}
	metadata, _ := e.registry.Metadata(execution.CheckID)

	slot := providerSlots[metadata.Provider]
	select {
	case <-ctx.Done():
		execution.Err = ctx.Err()
		execution.Error = ctx.Err().Error()
		return
	case slot <- struct{}{}:
	}
	defer func() { <-slot }()

	execution.State = StateRunning
	execution.StartedAt = time.Now().UTC()

	results, err := evaluator.Evaluate(ctx, scan)
	execution.CompletedAt = time.Now().UTC()

	switch {
	case err == nil:
		execution.State = StateCompleted
		execution.Results = results
	case errors.Is(err, domain.ErrCollectionFailed):
		execution.State = StateSkipped
		execution.Err = err
		execution.Error = err.Error()
		logger.Warnw(
			"check skipped, prerequisite resources could not be collected",
			"check", execution.CheckID,
			"error", err,
		)
	default:
		execution.State = StateFailed
		execution.Err = err
		execution.Error = err.Error()
		// results produced before the failure stay on the record and still
		// aggregate; the failing resource produced none
		execution.Results = results
		logger.Errorw(
			"check evaluator failed",
			"check", execution.CheckID,
			"error", err,
		)
	}

	e.report(*execution)
}

func (e *Executor) report(execution Execution) {
	if e.progress != nil {
		e.progress(execution)
	}
}
