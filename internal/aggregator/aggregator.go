package aggregator

import (
	"sort"

	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/logger"
)

// MetadataFunc resolves a check id to its metadata
type MetadataFunc func(id string) (domain.CheckMetadata, bool)

// Aggregator normalizes raw check results into findings. Within one scan the
// (check id, resource id) pair is unique: a later result for the same pair
// replaces the earlier one, so re-running a check inside a scan cannot
// produce duplicate findings.
type Aggregator struct {
	scanID   string
	metadata MetadataFunc
	findings map[string]domain.Finding
}

// New returns an aggregator for the given scan
func New(scanID string, metadata MetadataFunc) *Aggregator {
	return &Aggregator{
		scanID:   scanID,
		metadata: metadata,
		findings: map[string]domain.Finding{},
	}
}

// Add normalizes the given results into findings. Results whose check id is
// unknown to the registry are dropped with a warning.
func (a *Aggregator) Add(results ...domain.CheckResult) {
	for _, result := range results {
		metadata, ok := a.metadata(result.CheckID)
		if !ok {
			logger.Warnw("dropping result of unknown check", "check", result.CheckID)
			continue
		}
		key := result.CheckID + "\x00" + result.ResourceID
		a.findings[key] = domain.NewFinding(a.scanID, result, metadata)
	}
}

// Findings returns the deduplicated findings ordered by check id, then
// resource id, then region
func (a *Aggregator) Findings() []domain.Finding {
	findings := make([]domain.Finding, 0, len(a.findings))
	for _, finding := range a.findings {
		findings = append(findings, finding)
	}
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].CheckID != findings[j].CheckID {
			return findings[i].CheckID < findings[j].CheckID
		}
		if findings[i].ResourceID != findings[j].ResourceID {
			return findings[i].ResourceID < findings[j].ResourceID
		}
		return findings[i].Region < findings[j].Region
	})
	return findings
}

// Iterator returns a one-pass pull iterator over the ordered findings, the
// consumption interface handed to reporters
func (a *Aggregator) Iterator() *Iterator {
	return &Iterator{findings: a.Findings()}
}

// NewIterator returns a one-pass iterator over an already ordered finding
// list, e.g. the findings retained on a scan report
func NewIterator(findings []domain.Finding) *Iterator {
	return &Iterator{findings: findings}
}

// Iterator yields findings in deterministic order, one pass, no seeking
type Iterator struct {
	findings []domain.Finding
	position int
}

// Next returns the next finding, reporting false once exhausted
func (it *Iterator) Next() (domain.Finding, bool) {
	if it.position >= len(it.findings) {
		return domain.Finding{}, false
	}
	finding := it.findings[it.position]
	it.position++
	return finding, true
}
