package domain

import "context"

//go:generate mockgen -destination=mock/domain.go -package=mock -source=interface.go

// Connector exposes a provider's resources through a uniform listing
// capability. Implementations wrap the provider SDK and carry no
// check-specific logic.
type Connector interface {
	// Provider returns the provider the connector serves
	Provider() Provider
	// Regions returns the regions available to the authenticated account
	Regions(ctx context.Context) ([]string, error)
	// List returns all resources of the given kind in the given region
	List(ctx context.Context, region, kind string) ([]Resource, error)
}

// Inventory caches collected resources for the lifetime of one scan
type Inventory interface {
	// GetOrCollect returns the cached collection for the key, collecting it
	// through the provider connector at most once per scan
	GetOrCollect(ctx context.Context, provider Provider, region, kind string) (*Collection, error)
	// Failures returns every collection that failed during the scan
	Failures() []CollectionFailure
}

// FindingsSink receives the findings produced by a scan
type FindingsSink interface {
	// Write saves the findings
	Write(ctx context.Context, findings []Finding) error
}

// Evaluator is the executable part of a check. It reads resources through the
// scan context and emits one result per matching resource.
type Evaluator interface {
	Evaluate(ctx context.Context, scan *ScanContext) ([]CheckResult, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface
type EvaluatorFunc func(ctx context.Context, scan *ScanContext) ([]CheckResult, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, scan *ScanContext) ([]CheckResult, error) {
	return f(ctx, scan)
}
