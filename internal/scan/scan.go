package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/skysweep/skysweep/internal/aggregator"
	"github.com/skysweep/skysweep/internal/compliance"
	"github.com/skysweep/skysweep/internal/executor"
	"github.com/skysweep/skysweep/internal/inventory"
	"github.com/skysweep/skysweep/internal/registry"
	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/logger"
)

// EventType classifies a scan progress event
type EventType string

const (
	EventScanStarted    EventType = "scan_started"
	EventCheckCompleted EventType = "check_completed"
	EventScanCompleted  EventType = "scan_completed"
)

// Event is one entry of the scan progress stream
type Event struct {
	Type    EventType      `json:"type"`
	ScanID  string         `json:"scan_id"`
	CheckID string         `json:"check_id,omitempty"`
	State   executor.State `json:"state,omitempty"`
	At      time.Time      `json:"at"`
}

// Report is the complete outcome of one scan. What could not be collected or
// evaluated is reported alongside what was found, never silently omitted.
type Report struct {
	ScanID             string                     `json:"scan_id"`
	Scope              domain.ScanScope           `json:"scope"`
	StartedAt          time.Time                  `json:"started_at"`
	FinishedAt         time.Time                  `json:"finished_at"`
	Findings           []domain.Finding           `json:"findings"`
	Executions         []executor.Execution       `json:"executions"`
	CollectionFailures []domain.CollectionFailure `json:"collection_failures,omitempty"`
	Summaries          []compliance.Summary       `json:"summaries,omitempty"`
}

// Iterator returns a one-pass pull iterator over the report's findings, the
// consumption interface for reporters
func (r *Report) Iterator() *aggregator.Iterator {
	return aggregator.NewIterator(r.Findings)
}

const eventBufferSize = 64

// Scanner runs scans over a fixed registry and connector set. The inventory
// is rebuilt for every scan; nothing collected in one scan leaks into the
// next.
type Scanner struct {
	registry   *registry.Registry
	connectors map[domain.Provider]domain.Connector
	frameworks []compliance.Framework
	execConfig executor.Config
	sinks      []domain.FindingsSink
	events     chan Event
}

// NewScanner returns a scanner over the given registry and connectors,
// writing findings to the given sinks
func NewScanner(
	reg *registry.Registry,
	connectors []domain.Connector,
	frameworks []compliance.Framework,
	execConfig executor.Config,
	sinks ...domain.FindingsSink,
) *Scanner {
	byProvider := make(map[domain.Provider]domain.Connector, len(connectors))
	for _, conn := range connectors {
		byProvider[conn.Provider()] = conn
	}
	return &Scanner{
		registry:   reg,
		connectors: byProvider,
		frameworks: frameworks,
		execConfig: execConfig,
		sinks:      sinks,
		events:     make(chan Event, eventBufferSize),
	}
}

// Events returns the scan progress stream. Events are dropped rather than
// blocking a scan when no consumer keeps up.
func (s *Scanner) Events() <-chan Event {
	return s.events
}

// Run executes one scan over the given scope and returns its report. Only
// scope-wide problems (an unusable provider, an invalid filter) abort the
// scan; failures local to one check, region or resource kind are contained
// and reported on the scan report.
func (s *Scanner) Run(ctx context.Context, scope domain.ScanScope) (*Report, error) {
	filter, err := filterFromScope(scope)
	if err != nil {
		return nil, err
	}

	// an include-listed check whose provider is outside the scope has no
	// connector and no regions to resolve; reject the scope instead of letting
	// the check complete silently with no results
	for _, id := range scope.Checks {
		metadata, ok := s.registry.Metadata(id)
		if !ok {
			continue
		}
		if len(scope.Providers) > 0 && !providerInScope(metadata.Provider, scope.Providers) {
			return nil, fmt.Errorf("check %s targets provider %s, outside the scan scope", id, metadata.Provider)
		}
	}

	selected := make([]domain.Connector, 0, len(scope.Providers))
	for _, provider := range scope.Providers {
		conn, ok := s.connectors[provider]
		if !ok {
			return nil, fmt.Errorf("no connector configured for provider %s", provider)
		}
		selected = append(selected, conn)
	}

	scanID := uuid.NewString()
	startedAt := time.Now().UTC()
	logger.Infow("starting scan", "scan", scanID, "providers", scope.Providers)

	regions, err := s.resolveRegions(ctx, scope, selected)
	if err != nil {
		return nil, err
	}

	inv := inventory.New(selected...)
	scanCtx := domain.NewScanContext(scanID, scope, inv, regions)

	checkIDs := s.registry.Select(filter)
	if len(checkIDs) == 0 {
		logger.Warnw("no checks match the scan scope", "scan", scanID)
	}

	s.emit(Event{Type: EventScanStarted, ScanID: scanID, At: time.Now().UTC()})

	exec := executor.New(s.registry, s.execConfig, func(execution executor.Execution) {
		s.emit(Event{
			Type:    EventCheckCompleted,
			ScanID:  scanID,
			CheckID: execution.CheckID,
			State:   execution.State,
			At:      time.Now().UTC(),
		})
	})
	executions := exec.Run(ctx, scanCtx, checkIDs)

	agg := aggregator.New(scanID, s.registry.Metadata)
	for _, execution := range executions {
		switch execution.State {
		case executor.StateCompleted, executor.StateFailed:
			// a FAILED evaluator still produced verdicts for the resources it
			// finished before the error; the failing resource has no result
			agg.Add(execution.Results...)
		}
	}
	findings := agg.Findings()

	report := &Report{
		ScanID:             scanID,
		Scope:              scope,
		StartedAt:          startedAt,
		FinishedAt:         time.Now().UTC(),
		Findings:           findings,
		Executions:         executions,
		CollectionFailures: inv.Failures(),
		Summaries:          s.summarize(findings, scope.Frameworks),
	}

	if err := s.writeToSinks(ctx, findings); err != nil {
		logger.Errorw("failed to write findings to some sinks", "scan", scanID, "error", err)
	}

	s.emit(Event{Type: EventScanCompleted, ScanID: scanID, At: time.Now().UTC()})
	logger.Infow(
		"scan finished",
		"scan", scanID,
		"findings", len(findings),
		"checks", len(executions),
		"collection-failures", len(report.CollectionFailures),
	)
	return report, nil
}

// resolveRegions resolves the regions per provider at scan start. An explicit
// region list in the scope wins; otherwise the connector's account regions
// are used. A provider whose regions cannot be resolved is a scope-wide
// failure.
func (s *Scanner) resolveRegions(ctx context.Context, scope domain.ScanScope, connectors []domain.Connector) (map[domain.Provider][]string, error) {
	regions := map[domain.Provider][]string{}
	for _, conn := range connectors {
		if len(scope.Regions) > 0 {
			regions[conn.Provider()] = scope.Regions
			continue
		}
		accountRegions, err := conn.Regions(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve regions for provider %s: %w", conn.Provider(), err)
		}
		regions[conn.Provider()] = accountRegions
	}
	return regions, nil
}

func (s *Scanner) summarize(findings []domain.Finding, wanted []string) []compliance.Summary {
	var summaries []compliance.Summary
	for _, framework := range s.frameworks {
		if len(wanted) > 0 && !contains(wanted, framework.Name) {
			continue
		}
		summaries = append(summaries, compliance.Summarize(findings, framework))
	}
	return summaries
}

func (s *Scanner) writeToSinks(ctx context.Context, findings []domain.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	var errs error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, findings); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

func (s *Scanner) emit(event Event) {
	select {
	case s.events <- event:
	default:
		logger.Debugw("dropping scan event, no consumer", "type", event.Type, "check", event.CheckID)
	}
}

// filterFromScope converts the scope's string filters into a registry filter,
// validating enum values up front
func filterFromScope(scope domain.ScanScope) (registry.Filter, error) {
	filter := registry.Filter{
		Providers:     scope.Providers,
		Services:      scope.Services,
		Categories:    scope.Categories,
		Frameworks:    scope.Frameworks,
		IncludeChecks: scope.Checks,
		ExcludeChecks: scope.ExcludeChecks,
	}
	for _, provider := range scope.Providers {
		if !provider.Valid() {
			return registry.Filter{}, fmt.Errorf("unknown provider %q in scan scope", provider)
		}
	}
	for _, name := range scope.Severities {
		severity, err := domain.ParseSeverity(name)
		if err != nil {
			return registry.Filter{}, fmt.Errorf("invalid scan scope: %w", err)
		}
		filter.Severities = append(filter.Severities, severity)
	}
	return filter, nil
}

func providerInScope(provider domain.Provider, scoped []domain.Provider) bool {
	for _, p := range scoped {
		if p == provider {
			return true
		}
	}
	return false
}

func contains(values []string, wanted string) bool {
	for _, value := range values {
		if value == wanted {
			return true
		}
	}
	return false
}
