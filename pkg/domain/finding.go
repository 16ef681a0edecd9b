package domain

import (
	"time"

	"github.com/google/uuid"
)

// Finding is the externally reported view of one check result, enriched with
// the check's metadata and compliance mappings. Findings are derived,
// read-only and scan-scoped.
type Finding struct {
	ID           string            `json:"id"`
	ScanID       string            `json:"scan_id"`
	CheckID      string            `json:"check_id"`
	CheckTitle   string            `json:"check_title"`
	Provider     Provider          `json:"provider"`
	Service      string            `json:"service"`
	Severity     Severity          `json:"severity"`
	Status       Status            `json:"status"`
	StatusDetail string            `json:"status_detail"`
	ResourceID   string            `json:"resource_id"`
	ResourceName string            `json:"resource_name,omitempty"`
	ResourceKind string            `json:"resource_kind"`
	Region       string            `json:"region"`
	Categories   []string          `json:"categories,omitempty"`
	Compliance   []ComplianceEntry `json:"compliance,omitempty"`
	Remediation  Remediation       `json:"remediation"`
	Timestamp    time.Time         `json:"timestamp"`
}

// NewFinding enriches a check result with its check's metadata. Enrichment is
// a pure function of its inputs apart from the generated finding id.
func NewFinding(scanID string, result CheckResult, metadata CheckMetadata) Finding {
	return Finding{
		ID:           uuid.NewString(),
		ScanID:       scanID,
		CheckID:      metadata.ID,
		CheckTitle:   metadata.Title,
		Provider:     metadata.Provider,
		Service:      metadata.Service,
		Severity:     metadata.Severity,
		Status:       result.Status,
		StatusDetail: result.StatusDetail,
		ResourceID:   result.ResourceID,
		ResourceName: result.ResourceName,
		ResourceKind: metadata.ResourceKind,
		Region:       result.Region,
		Categories:   metadata.Categories,
		Compliance:   metadata.Compliance,
		Remediation:  metadata.Remediation,
		Timestamp:    result.Timestamp,
	}
}
