package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/logger"
)

const findingChanSize = 50

// Sink appends findings to a file as JSON lines through a buffered worker
type Sink struct {
	file         *os.File
	findingChan  chan domain.Finding
	cancelWorker context.CancelFunc
}

// New returns a sink that writes findings to the file at filePath
func New(filePath string) (*Sink, error) {
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s to write findings: %w", filePath, err)
	}
	return &Sink{
		file:        file,
		findingChan: make(chan domain.Finding, findingChanSize),
	}, nil
}

// Start runs the writer worker until the context is cancelled
func (s *Sink) Start(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(ctx)
	s.cancelWorker = cancel
	for {
		select {
		case finding := <-s.findingChan:
			if err := s.writeFinding(finding); err != nil {
				logger.Errorw(
					"error while writing finding",
					"error", err,
					"check", finding.CheckID,
					"resource", finding.ResourceID,
					"status", finding.Status,
				)
			}
		case <-workerCtx.Done():
			return nil
		}
	}
}

func (s *Sink) writeFinding(finding domain.Finding) error {
	if err := json.NewEncoder(s.file).Encode(finding); err != nil {
		return fmt.Errorf("failed to write finding to file: %w", err)
	}
	return nil
}

// Write adds findings to the worker buffer, implements domain.FindingsSink
func (s *Sink) Write(_ context.Context, findings []domain.Finding) error {
	for i := range findings {
		s.findingChan <- findings[i]
	}
	return nil
}

// Stop drains the buffer, stops the worker and commits the file to disk
func (s *Sink) Stop() error {
	defer s.file.Close()

	for {
		select {
		case finding := <-s.findingChan:
			if err := s.writeFinding(finding); err != nil {
				logger.Errorw("error while flushing finding", "error", err, "check", finding.CheckID)
			}
			continue
		default:
		}
		break
	}

	if s.cancelWorker != nil {
		s.cancelWorker()
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to write all findings to file: %w", err)
	}
	return nil
}
