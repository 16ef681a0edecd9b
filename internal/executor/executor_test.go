package executor_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skysweep/skysweep/internal/executor"
	"github.com/skysweep/skysweep/internal/registry"
	"github.com/skysweep/skysweep/pkg/domain"
)

func buildCheck(id string, evaluator domain.EvaluatorFunc) registry.Check {
	return registry.Check{
		Metadata: domain.CheckMetadata{
			ID:           id,
			Title:        "title for " + id,
			Provider:     domain.ProviderAWS,
			Service:      "s3",
			Severity:     domain.SeverityHigh,
			ResourceKind: "bucket",
		},
		Evaluator: evaluator,
	}
}

func emptyScanContext() *domain.ScanContext {
	return domain.NewScanContext("scan-1", domain.ScanScope{}, nil, nil)
}

func TestRun_RecordsTerminalStates(t *testing.T) {
	passResult := domain.CheckResult{CheckID: "check_ok", Status: domain.StatusPass, ResourceID: "b1"}
	reg := registry.Discover(registry.Pack{
		Name: "test",
		Checks: []registry.Check{
			buildCheck("check_ok", func(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
				return []domain.CheckResult{passResult}, nil
			}),
			buildCheck("check_fails", func(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
				return nil, errors.New("evaluator blew up")
			}),
			buildCheck("check_skipped", func(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
				return nil, fmt.Errorf("%w: no region could be collected", domain.ErrCollectionFailed)
			}),
			buildCheck("check_panics", func(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
				panic("nil map write")
			}),
		},
	})

	assert := require.New(t)
	exec := executor.New(reg, executor.Config{}, nil)
	checkIDs := []string{"check_ok", "check_fails", "check_skipped", "check_panics"}
	executions := exec.Run(context.Background(), emptyScanContext(), checkIDs)

	assert.Len(executions, len(checkIDs))
	byID := map[string]executor.Execution{}
	for i, execution := range executions {
		assert.Equal(checkIDs[i], execution.CheckID, "executions must keep input order")
		byID[execution.CheckID] = execution
	}

	assert.Equal(executor.StateCompleted, byID["check_ok"].State)
	assert.Equal([]domain.CheckResult{passResult}, byID["check_ok"].Results)

	assert.Equal(executor.StateFailed, byID["check_fails"].State)
	assert.Error(byID["check_fails"].Err)
	assert.Empty(byID["check_fails"].Results)

	assert.Equal(executor.StateSkipped, byID["check_skipped"].State)
	assert.ErrorIs(byID["check_skipped"].Err, domain.ErrCollectionFailed)

	assert.Equal(executor.StateFailed, byID["check_panics"].State)
	assert.Contains(byID["check_panics"].Error, "panicked")
}

func TestRun_FailedEvaluatorKeepsPartialResultsOffFindings(t *testing.T) {
	assert := require.New(t)
	partial := domain.CheckResult{CheckID: "check_partial", Status: domain.StatusPass, ResourceID: "b1"}
	reg := registry.Discover(registry.Pack{
		Name: "test",
		Checks: []registry.Check{
			buildCheck("check_partial", func(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
				return []domain.CheckResult{partial}, errors.New("gave up halfway")
			}),
		},
	})

	exec := executor.New(reg, executor.Config{}, nil)
	executions := exec.Run(context.Background(), emptyScanContext(), []string{"check_partial"})

	assert.Equal(executor.StateFailed, executions[0].State)
	// partial results stay on the record but the state bars them from export
	assert.Equal([]domain.CheckResult{partial}, executions[0].Results)
}

func TestRun_UnknownCheck(t *testing.T) {
	assert := require.New(t)
	reg := registry.Discover()
	exec := executor.New(reg, executor.Config{}, nil)
	executions := exec.Run(context.Background(), emptyScanContext(), []string{"not_registered"})
	assert.Equal(executor.StateFailed, executions[0].State)
	assert.Error(executions[0].Err)
}

func TestRun_CancelledScanLeavesChecksPending(t *testing.T) {
	assert := require.New(t)
	var checks []registry.Check
	for i := 0; i < 5; i++ {
		checks = append(checks, buildCheck(fmt.Sprintf("check_%02d", i), func(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
			return nil, nil
		}))
	}
	reg := registry.Discover(registry.Pack{Name: "test", Checks: checks})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := executor.New(reg, executor.Config{MaxWorkers: 1}, nil)
	executions := exec.Run(ctx, emptyScanContext(), reg.IDs())

	assert.Len(executions, 5)
	for _, execution := range executions {
		assert.Equal(executor.StatePending, execution.State)
		assert.ErrorIs(execution.Err, context.Canceled)
		assert.Empty(execution.Results)
	}
}

func TestRun_ProgressCallback(t *testing.T) {
	assert := require.New(t)
	reg := registry.Discover(registry.Pack{
		Name: "test",
		Checks: []registry.Check{
			buildCheck("check_a", func(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
				return nil, nil
			}),
			buildCheck("check_b", func(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
				return nil, errors.New("boom")
			}),
		},
	})

	var reported int32
	exec := executor.New(reg, executor.Config{}, func(execution executor.Execution) {
		assert.NotEqual(executor.StatePending, execution.State)
		assert.NotEqual(executor.StateRunning, execution.State)
		atomic.AddInt32(&reported, 1)
	})
	exec.Run(context.Background(), emptyScanContext(), reg.IDs())
	assert.Equal(int32(2), atomic.LoadInt32(&reported))
}

func TestRun_ProviderConcurrencyBound(t *testing.T) {
	assert := require.New(t)

	var running, peak int32
	var checks []registry.Check
	for i := 0; i < 8; i++ {
		checks = append(checks, buildCheck(fmt.Sprintf("check_%02d", i), func(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
			current := atomic.AddInt32(&running, 1)
			for {
				observed := atomic.LoadInt32(&peak)
				if current <= observed || atomic.CompareAndSwapInt32(&peak, observed, current) {
					break
				}
			}
			atomic.AddInt32(&running, -1)
			return nil, nil
		}))
	}
	reg := registry.Discover(registry.Pack{Name: "test", Checks: checks})

	exec := executor.New(reg, executor.Config{MaxWorkers: 8, ProviderConcurrency: 2}, nil)
	executions := exec.Run(context.Background(), emptyScanContext(), reg.IDs())

	for _, execution := range executions {
		assert.Equal(executor.StateCompleted, execution.State)
	}
	assert.LessOrEqual(atomic.LoadInt32(&peak), int32(2))
}
