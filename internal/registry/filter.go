package registry

import "github.com/skysweep/skysweep/pkg/domain"

// Filter selects a subset of the registry's checks. Dimensions intersect;
// values within one dimension union. An empty dimension matches everything.
// An explicit include list bypasses the dimension filters entirely; the
// exclude list always wins.
type Filter struct {
	Providers     []domain.Provider
	Services      []string
	Severities    []domain.Severity
	Categories    []string
	Frameworks    []string
	IncludeChecks []string
	ExcludeChecks []string
}

// Select returns the ids of the checks matching the filter, ordered
// lexicographically by check id
func (r *Registry) Select(filter Filter) []string {
	excluded := map[string]struct{}{}
	for _, id := range filter.ExcludeChecks {
		excluded[id] = struct{}{}
	}

	if len(filter.IncludeChecks) > 0 {
		included := map[string]struct{}{}
		for _, id := range filter.IncludeChecks {
			included[id] = struct{}{}
		}
		var selected []string
		for _, id := range r.order {
			if _, ok := included[id]; !ok {
				continue
			}
			if _, ok := excluded[id]; ok {
				continue
			}
			selected = append(selected, id)
		}
		return selected
	}

	var selected []string
	for _, id := range r.order {
		if _, ok := excluded[id]; ok {
			continue
		}
		metadata := r.checks[id].Metadata
		if !matchProvider(metadata.Provider, filter.Providers) {
			continue
		}
		if !matchString(metadata.Service, filter.Services) {
			continue
		}
		if !matchSeverity(metadata.Severity, filter.Severities) {
			continue
		}
		if !matchAny(metadata.Categories, filter.Categories) {
			continue
		}
		if !matchFramework(metadata.Compliance, filter.Frameworks) {
			continue
		}
		selected = append(selected, id)
	}
	return selected
}

func matchProvider(provider domain.Provider, wanted []domain.Provider) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if provider == w {
			return true
		}
	}
	return false
}

func matchSeverity(severity domain.Severity, wanted []domain.Severity) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if severity == w {
			return true
		}
	}
	return false
}

func matchString(value string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if value == w {
			return true
		}
	}
	return false
}

func matchAny(values, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		for _, v := range values {
			if v == w {
				return true
			}
		}
	}
	return false
}

func matchFramework(entries []domain.ComplianceEntry, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		for _, entry := range entries {
			if entry.Framework == w {
				return true
			}
		}
	}
	return false
}
