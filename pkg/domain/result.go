package domain

import "time"

// Status is the verdict of one check evaluation against one resource
type Status string

const (
	StatusPass   Status = "PASS"
	StatusFail   Status = "FAIL"
	StatusInfo   Status = "INFO"
	StatusManual Status = "MANUAL"
)

var statuses = map[Status]struct{}{
	StatusPass:   {},
	StatusFail:   {},
	StatusInfo:   {},
	StatusManual: {},
}

func (s Status) Valid() bool {
	_, ok := statuses[s]
	return ok
}

// CheckResult is one evaluation of one check against one resource. It is
// created exactly once per (check, resource) pair per scan and never mutated.
// The resource is referenced by id only so the inventory can be released
// independently of retained results.
type CheckResult struct {
	CheckID      string    `json:"check_id"`
	Status       Status    `json:"status"`
	StatusDetail string    `json:"status_detail"`
	ResourceID   string    `json:"resource_id"`
	ResourceName string    `json:"resource_name,omitempty"`
	Region       string    `json:"region"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewCheckResult returns a result for the given check and resource, to be
// completed by the evaluator with a status and detail
func NewCheckResult(checkID string, resource Resource) CheckResult {
	return CheckResult{
		CheckID:      checkID,
		ResourceID:   resource.ID,
		ResourceName: resource.Name,
		Region:       resource.Region,
		Timestamp:    time.Now().UTC(),
	}
}

// NewRegionResult returns a result that is not tied to a single resource,
// used to report an informational verdict for a whole region, e.g. when no
// matching resources exist there. The region doubles as the resource id so
// per-region results of one check stay distinct after deduplication.
func NewRegionResult(checkID, region string, status Status, detail string) CheckResult {
	return CheckResult{
		CheckID:      checkID,
		Status:       status,
		StatusDetail: detail,
		ResourceID:   region,
		Region:       region,
		Timestamp:    time.Now().UTC(),
	}
}
