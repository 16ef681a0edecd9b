package registry

import (
	"sort"

	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/logger"
)

// Check pairs a check's metadata with its executable evaluator
type Check struct {
	Metadata  domain.CheckMetadata
	Evaluator domain.Evaluator
}

// Pack is a named group of checks contributed to discovery, typically one per
// provider service area
type Pack struct {
	Name   string
	Checks []Check
}

// Registry holds the checks admitted at discovery, indexed for selection.
// It is constructed once per process and passed by reference; it is immutable
// after Discover returns.
type Registry struct {
	checks map[string]Check
	order  []string

	byProvider  map[domain.Provider][]string
	byService   map[string][]string
	bySeverity  map[domain.Severity][]string
	byCategory  map[string][]string
	byFramework map[string][]string
}

// Discover validates and indexes the checks of the given packs. A check with
// invalid metadata is excluded with a logged warning rather than aborting
// discovery; so is a duplicate check id. The resulting check order is
// lexicographic by id, making scan output reproducible.
func Discover(packs ...Pack) *Registry {
	r := &Registry{
		checks:      map[string]Check{},
		byProvider:  map[domain.Provider][]string{},
		byService:   map[string][]string{},
		bySeverity:  map[domain.Severity][]string{},
		byCategory:  map[string][]string{},
		byFramework: map[string][]string{},
	}

	for _, pack := range packs {
		for _, check := range pack.Checks {
			metadata := check.Metadata
			if err := metadata.Validate(); err != nil {
				logger.Warnw(
					"excluding check with invalid metadata",
					"pack", pack.Name,
					"check", metadata.ID,
					"error", err,
				)
				continue
			}
			if check.Evaluator == nil {
				logger.Warnw(
					"excluding check without an evaluator",
					"pack", pack.Name,
					"check", metadata.ID,
				)
				continue
			}
			if _, exists := r.checks[metadata.ID]; exists {
				logger.Warnw(
					"excluding check with duplicate id",
					"pack", pack.Name,
					"check", metadata.ID,
				)
				continue
			}
			r.checks[metadata.ID] = check
		}
	}

	for id := range r.checks {
		r.order = append(r.order, id)
	}
	sort.Strings(r.order)

	for _, id := range r.order {
		metadata := r.checks[id].Metadata
		r.byProvider[metadata.Provider] = append(r.byProvider[metadata.Provider], id)
		r.byService[metadata.Service] = append(r.byService[metadata.Service], id)
		r.bySeverity[metadata.Severity] = append(r.bySeverity[metadata.Severity], id)
		for _, category := range metadata.Categories {
			r.byCategory[category] = append(r.byCategory[category], id)
		}
		for _, entry := range metadata.Compliance {
			r.byFramework[entry.Framework] = append(r.byFramework[entry.Framework], id)
		}
	}

	logger.Infow("check discovery finished", "checks", len(r.order), "packs", len(packs))
	return r
}

// Len returns the number of admitted checks
func (r *Registry) Len() int {
	return len(r.order)
}

// IDs returns every admitted check id in deterministic order
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Metadata returns the metadata of the given check
func (r *Registry) Metadata(id string) (domain.CheckMetadata, bool) {
	check, ok := r.checks[id]
	return check.Metadata, ok
}

// Evaluator returns the evaluator of the given check
func (r *Registry) Evaluator(id string) (domain.Evaluator, bool) {
	check, ok := r.checks[id]
	return check.Evaluator, ok
}

// Services returns the services covered by the provider's checks
func (r *Registry) Services(provider domain.Provider) []string {
	seen := map[string]struct{}{}
	for _, id := range r.byProvider[provider] {
		seen[r.checks[id].Metadata.Service] = struct{}{}
	}
	return sortedKeys(seen)
}

// Categories returns every category used by the admitted checks
func (r *Registry) Categories() []string {
	seen := map[string]struct{}{}
	for category := range r.byCategory {
		seen[category] = struct{}{}
	}
	return sortedKeys(seen)
}

// Frameworks returns every compliance framework referenced by the admitted
// checks
func (r *Registry) Frameworks() []string {
	seen := map[string]struct{}{}
	for framework := range r.byFramework {
		seen[framework] = struct{}{}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
