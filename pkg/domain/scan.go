package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrCollectionFailed indicates that no region in the scan scope could be
// collected for the requested resource kind. Evaluators that propagate it are
// recorded as skipped rather than failed.
var ErrCollectionFailed = errors.New("resource collection failed")

// ScanScope selects what a scan covers: providers, regions and check filters
type ScanScope struct {
	Providers     []Provider `json:"providers"`
	Regions       []string   `json:"regions,omitempty"`
	Checks        []string   `json:"checks,omitempty"`
	ExcludeChecks []string   `json:"exclude_checks,omitempty"`
	Services      []string   `json:"services,omitempty"`
	Severities    []string   `json:"severities,omitempty"`
	Categories    []string   `json:"categories,omitempty"`
	Frameworks    []string   `json:"frameworks,omitempty"`
}

// ScanContext carries the scan-scoped state handed to every evaluator: the
// scan id, the selected scope, the resolved regions per provider and the
// resource inventory. It is created at scan start, owned by the scheduler and
// never shared across concurrent scans.
type ScanContext struct {
	ID        string
	Scope     ScanScope
	inventory Inventory
	regions   map[Provider][]string
}

// NewScanContext returns a scan context over the given inventory. The regions
// map holds the regions resolved for each selected provider at scan start.
func NewScanContext(id string, scope ScanScope, inventory Inventory, regions map[Provider][]string) *ScanContext {
	return &ScanContext{
		ID:        id,
		Scope:     scope,
		inventory: inventory,
		regions:   regions,
	}
}

// Regions returns the resolved regions for the given provider
func (s *ScanContext) Regions(provider Provider) []string {
	return s.regions[provider]
}

// Resources returns all resources of the given kind across the provider's
// in-scope regions, collected through the inventory. Regions whose collection
// failed are annotated on the returned set. When every region fails the error
// wraps ErrCollectionFailed so the execution is recorded as skipped.
func (s *ScanContext) Resources(ctx context.Context, provider Provider, kind string) (*ResourceSet, error) {
	regions := s.regions[provider]
	set := &ResourceSet{FailedRegions: map[string]error{}}

	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		collection, err := s.inventory.GetOrCollect(ctx, provider, region, kind)
		if err != nil {
			return nil, err
		}
		if collection.Failed() {
			set.FailedRegions[region] = collection.Err
			continue
		}
		set.Resources = append(set.Resources, collection.Resources...)
	}

	if len(regions) > 0 && len(set.FailedRegions) == len(regions) {
		return set, fmt.Errorf("%w: no region of provider %s could be collected for kind %s",
			ErrCollectionFailed, provider, kind)
	}
	return set, nil
}
