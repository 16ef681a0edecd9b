package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/pkg/errors"

	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/logger"
)

const (
	findingChanSize int           = 50
	batchSize       int           = 100
	batchExpiry     time.Duration = 10 * time.Second
	retriesInterval time.Duration = 500 * time.Millisecond
	retries         int           = 5
)

type indexTemplate struct {
	Index index `json:"index"`
}

type index struct {
	IndexName string `json:"_index"`
	Id        string `json:"_id"`
}

// Sink indexes findings into Elasticsearch in batches
type Sink struct {
	findingChan   chan domain.Finding
	elasticClient *elasticsearch.Client
	indexName     string
	findingsBatch []domain.Finding
}

// New returns a sink that sends findings to an elasticsearch index
func New(address, username, password, indexName string) (*Sink, error) {
	client, err := elasticsearch.NewClient(
		elasticsearch.Config{
			Addresses: []string{address},
			Username:  username,
			Password:  password,
		},
	)
	if err != nil {
		return nil, err
	}

	if err := createIndexSchema(client, indexName); err != nil {
		return nil, err
	}

	return &Sink{
		findingChan:   make(chan domain.Finding, findingChanSize),
		findingsBatch: make([]domain.Finding, 0, batchSize),
		elasticClient: client,
		indexName:     indexName,
	}, nil
}

// Write adds findings to the batch buffer, implements domain.FindingsSink
func (s *Sink) Write(_ context.Context, findings []domain.Finding) error {
	for _, finding := range findings {
		s.findingChan <- finding
	}
	return nil
}

// Start runs the sink, flushing the batch when it fills or expires
func (s *Sink) Start(ctx context.Context) error {
	timer := time.NewTicker(batchExpiry)
	defer timer.Stop()

	for {
		select {
		case finding := <-s.findingChan:
			s.findingsBatch = append(s.findingsBatch, finding)
			if len(s.findingsBatch) == cap(s.findingsBatch) {
				s.writeBatch(s.findingsBatch)
				s.findingsBatch = s.findingsBatch[:0]
				timer.Reset(batchExpiry)
			}
		case <-timer.C:
			if len(s.findingsBatch) > 0 {
				s.writeBatch(s.findingsBatch)
				s.findingsBatch = s.findingsBatch[:0]
			}
		case <-ctx.Done():
			s.drain()
			return ctx.Err()
		}
	}
}

// drain empties the queue into the batch and flushes it, so findings written
// right before shutdown are not lost with the channel
func (s *Sink) drain() {
	for {
		select {
		case finding := <-s.findingChan:
			s.findingsBatch = append(s.findingsBatch, finding)
		default:
			if len(s.findingsBatch) > 0 {
				s.writeBatch(s.findingsBatch)
				s.findingsBatch = s.findingsBatch[:0]
			}
			return
		}
	}
}

func (s *Sink) writeBatch(findings []domain.Finding) {
	logger.Infow("writing findings", "size", len(findings), "index", s.indexName)

	for i := 0; i < retries; i++ {
		body, err := createIndexBody(findings, s.indexName)
		if err != nil {
			logger.Errorw("failed to create findings bulk body", "error", err)
			return
		}
		res, err := s.elasticClient.Bulk(bytes.NewReader(body))
		if err != nil || res.StatusCode != http.StatusOK {
			logger.Warnw("failed to write findings", "index", s.indexName, "retry", i+1, "error", err)
			time.Sleep(retriesInterval)
			continue
		}
		res.Body.Close()
		return
	}
	logger.Errorw("giving up writing findings batch", "index", s.indexName, "size", len(findings))
}

func createIndexSchema(client *elasticsearch.Client, indexName string) error {
	response, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		return errors.WithMessagef(err, "failed to check if index exists")
	}
	if response.StatusCode == http.StatusNotFound {
		response, err = client.Indices.Create(indexName)
		if err != nil || response.StatusCode != http.StatusOK {
			return errors.WithMessagef(err, "failed to create index")
		}
		logger.Infof("index %s is created", indexName)
	}

	response, err = client.Indices.PutMapping(bytes.NewReader([]byte(indexSchema)), client.Indices.PutMapping.WithIndex(indexName))
	if err != nil || response.StatusCode != http.StatusOK {
		return errors.WithMessagef(err, "failed to update schema")
	}
	return nil
}

func createIndexBody(findings []domain.Finding, indexName string) ([]byte, error) {
	var body []byte
	for _, finding := range findings {
		header, err := json.Marshal(indexTemplate{Index: index{IndexName: indexName, Id: finding.ID}})
		if err != nil {
			return nil, err
		}
		document, err := json.Marshal(finding)
		if err != nil {
			return nil, err
		}
		body = append(body, header...)
		body = append(body, '\n')
		body = append(body, document...)
		body = append(body, '\n')
	}
	return body, nil
}
