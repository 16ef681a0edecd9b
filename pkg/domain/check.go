package domain

import (
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
)

// Provider identifies a supported cloud provider
type Provider string

const (
	ProviderAWS        Provider = "aws"
	ProviderAzure      Provider = "azure"
	ProviderGCP        Provider = "gcp"
	ProviderKubernetes Provider = "kubernetes"
	ProviderM365       Provider = "m365"
	ProviderGitHub     Provider = "github"
)

var providers = map[Provider]struct{}{
	ProviderAWS:        {},
	ProviderAzure:      {},
	ProviderGCP:        {},
	ProviderKubernetes: {},
	ProviderM365:       {},
	ProviderGitHub:     {},
}

func (p Provider) Valid() bool {
	_, ok := providers[p]
	return ok
}

// ParseProvider parses a provider name into a Provider
func ParseProvider(name string) (Provider, error) {
	provider := Provider(name)
	if !provider.Valid() {
		return "", fmt.Errorf("unknown provider %q", name)
	}
	return provider, nil
}

// Severity indicates the impact level of a check
type Severity string

const (
	SeverityInformational Severity = "informational"
	SeverityLow           Severity = "low"
	SeverityMedium        Severity = "medium"
	SeverityHigh          Severity = "high"
	SeverityCritical      Severity = "critical"
)

var severities = map[Severity]struct{}{
	SeverityInformational: {},
	SeverityLow:           {},
	SeverityMedium:        {},
	SeverityHigh:          {},
	SeverityCritical:      {},
}

func (s Severity) Valid() bool {
	_, ok := severities[s]
	return ok
}

// ParseSeverity parses a severity name into a Severity
func ParseSeverity(name string) (Severity, error) {
	severity := Severity(name)
	if !severity.Valid() {
		return "", fmt.Errorf("unknown severity %q", name)
	}
	return severity, nil
}

// ComplianceEntry maps a check to the requirements it covers in one framework
type ComplianceEntry struct {
	Framework    string   `json:"framework"`
	Requirements []string `json:"requirements"`
}

// Remediation describes how to resolve a failed check
type Remediation struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// CheckMetadata describes a check. It is loaded once at discovery and never
// mutated afterwards.
type CheckMetadata struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Provider     Provider          `json:"provider"`
	Service      string            `json:"service"`
	Severity     Severity          `json:"severity"`
	ResourceKind string            `json:"resource_kind"`
	Categories   []string          `json:"categories,omitempty"`
	Risk         string            `json:"risk,omitempty"`
	Remediation  Remediation       `json:"remediation"`
	Compliance   []ComplianceEntry `json:"compliance,omitempty"`
}

// Validate checks the metadata against the schema required for a check to be
// admitted by the registry. All problems are reported, not just the first.
func (m CheckMetadata) Validate() error {
	var errs error
	if m.ID == "" {
		errs = multierror.Append(errs, fmt.Errorf("check id is required"))
	}
	if m.Title == "" {
		errs = multierror.Append(errs, fmt.Errorf("check title is required"))
	}
	if !m.Provider.Valid() {
		errs = multierror.Append(errs, fmt.Errorf("invalid provider %q", m.Provider))
	}
	if m.Service == "" {
		errs = multierror.Append(errs, fmt.Errorf("check service is required"))
	}
	if !m.Severity.Valid() {
		errs = multierror.Append(errs, fmt.Errorf("invalid severity %q", m.Severity))
	}
	if m.ResourceKind == "" {
		errs = multierror.Append(errs, fmt.Errorf("check resource kind is required"))
	}
	for _, entry := range m.Compliance {
		if entry.Framework == "" {
			errs = multierror.Append(errs, fmt.Errorf("compliance entry is missing a framework name"))
		}
		if len(entry.Requirements) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("compliance entry for %q has no requirements", entry.Framework))
		}
	}
	return errs
}

// Requirements returns the requirement ids the check covers in the given framework
func (m CheckMetadata) Requirements(framework string) []string {
	for _, entry := range m.Compliance {
		if entry.Framework == framework {
			return entry.Requirements
		}
	}
	return nil
}
