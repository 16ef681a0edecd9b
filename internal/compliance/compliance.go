package compliance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/logger"
)

// Requirement is one requirement of a compliance framework and the checks
// that cover it. The mapping is many-to-many: a check may satisfy several
// requirements and a requirement may be covered by several checks.
type Requirement struct {
	ID          string   `json:"id" yaml:"id"`
	Description string   `json:"description" yaml:"description"`
	Checks      []string `json:"checks" yaml:"checks"`
}

// Framework is an external compliance standard loaded from a definition file
type Framework struct {
	Name         string        `json:"name" yaml:"name"`
	Version      string        `json:"version" yaml:"version"`
	Provider     string        `json:"provider" yaml:"provider"`
	Requirements []Requirement `json:"requirements" yaml:"requirements"`
}

// LoadDir loads every framework definition (YAML or JSON) found under dir.
// A malformed file is skipped with a warning so one bad definition cannot
// prevent the remaining frameworks from loading.
func LoadDir(dir string) ([]Framework, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frameworks directory %s: %w", dir, err)
	}

	var frameworks []Framework
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		framework, err := loadFile(path)
		if err != nil {
			logger.Warnw("skipping malformed framework definition", "file", path, "error", err)
			continue
		}
		frameworks = append(frameworks, *framework)
	}

	sort.Slice(frameworks, func(i, j int) bool { return frameworks[i].Name < frameworks[j].Name })
	return frameworks, nil
}

func loadFile(path string) (*Framework, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var framework Framework
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &framework)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &framework)
	default:
		return nil, fmt.Errorf("unsupported framework extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if framework.Name == "" {
		return nil, fmt.Errorf("framework definition is missing a name")
	}
	if len(framework.Requirements) == 0 {
		return nil, fmt.Errorf("framework %s has no requirements", framework.Name)
	}
	return &framework, nil
}

// RequirementStatus is the aggregated verdict for one framework requirement
type RequirementStatus string

const (
	RequirementPass RequirementStatus = "PASS"
	RequirementFail RequirementStatus = "FAIL"
	// RequirementNotApplicable marks a requirement none of whose mapped
	// checks produced a finding in the scan
	RequirementNotApplicable RequirementStatus = "NOT_APPLICABLE"
)

// RequirementResult is the per-requirement tally of a summary
type RequirementResult struct {
	ID           string            `json:"id"`
	Description  string            `json:"description,omitempty"`
	Status       RequirementStatus `json:"status"`
	PassedChecks []string          `json:"passed_checks,omitempty"`
	FailedChecks []string          `json:"failed_checks,omitempty"`
}

// Summary is the framework-level coverage produced from a scan's findings
type Summary struct {
	Framework     string              `json:"framework"`
	Version       string              `json:"version,omitempty"`
	Requirements  []RequirementResult `json:"requirements"`
	Passed        int                 `json:"passed"`
	Failed        int                 `json:"failed"`
	NotApplicable int                 `json:"not_applicable"`
	PassRate      float64             `json:"pass_rate"`
}

// Summarize cross-references the findings against the framework's
// requirements. A requirement fails when any mapped check produced a FAIL
// finding for any in-scope resource; it passes when mapped checks produced
// findings and none failed; it is not applicable when no mapped check
// produced a finding. The verdict is a union over check results, not a check
// count. Summarize is a pure function of its inputs.
func Summarize(findings []domain.Finding, framework Framework) Summary {
	failedByCheck := map[string]bool{}
	seenChecks := map[string]bool{}
	for _, finding := range findings {
		seenChecks[finding.CheckID] = true
		if finding.Status == domain.StatusFail {
			failedByCheck[finding.CheckID] = true
		}
	}

	// checks may also declare framework coverage in their own metadata;
	// union it with the framework definition's mapping
	extraChecks := map[string][]string{}
	for _, finding := range findings {
		for _, entry := range finding.Compliance {
			if entry.Framework != framework.Name {
				continue
			}
			for _, requirement := range entry.Requirements {
				extraChecks[requirement] = append(extraChecks[requirement], finding.CheckID)
			}
		}
	}

	summary := Summary{Framework: framework.Name, Version: framework.Version}
	for _, requirement := range framework.Requirements {
		checks := unionChecks(requirement.Checks, extraChecks[requirement.ID])
		result := RequirementResult{
			ID:          requirement.ID,
			Description: requirement.Description,
			Status:      RequirementNotApplicable,
		}
		applicable := false
		for _, check := range checks {
			if !seenChecks[check] {
				continue
			}
			applicable = true
			if failedByCheck[check] {
				result.FailedChecks = append(result.FailedChecks, check)
			} else {
				result.PassedChecks = append(result.PassedChecks, check)
			}
		}
		if applicable {
			if len(result.FailedChecks) > 0 {
				result.Status = RequirementFail
				summary.Failed++
			} else {
				result.Status = RequirementPass
				summary.Passed++
			}
		} else {
			summary.NotApplicable++
		}
		summary.Requirements = append(summary.Requirements, result)
	}

	if applicable := summary.Passed + summary.Failed; applicable > 0 {
		summary.PassRate = float64(summary.Passed) / float64(applicable)
	}
	return summary
}

func unionChecks(declared, extra []string) []string {
	seen := map[string]struct{}{}
	var checks []string
	for _, check := range append(append([]string{}, declared...), extra...) {
		if _, ok := seen[check]; ok {
			continue
		}
		seen[check] = struct{}{}
		checks = append(checks, check)
	}
	sort.Strings(checks)
	return checks
}
