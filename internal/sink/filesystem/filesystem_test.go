package filesystem

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skysweep/skysweep/pkg/domain"
)

func testFindings() []domain.Finding {
	return []domain.Finding{
		{
			ID:         "f1",
			ScanID:     "scan-1",
			CheckID:    "s3_bucket_public_access_block",
			Provider:   domain.ProviderAWS,
			Status:     domain.StatusFail,
			ResourceID: "arn:aws:s3:::public-assets",
			Region:     "eu-west-1",
		},
		{
			ID:         "f2",
			ScanID:     "scan-1",
			CheckID:    "iam_no_root_access_key",
			Provider:   domain.ProviderAWS,
			Status:     domain.StatusPass,
			ResourceID: "123456789012",
			Region:     "us-east-1",
		},
	}
}

func TestSinkWritesFindingsAsJSONLines(t *testing.T) {
	assert := require.New(t)
	filePath := filepath.Join(t.TempDir(), "findings.json")

	sink, err := New(filePath)
	assert.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = sink.Start(ctx)
	}()

	assert.NoError(sink.Write(ctx, testFindings()))
	// let the worker drain the buffer before stopping
	time.Sleep(100 * time.Millisecond)
	assert.NoError(sink.Stop())

	file, err := os.Open(filePath)
	assert.NoError(err)
	defer file.Close()

	var lines []domain.Finding
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var finding domain.Finding
		assert.NoError(json.Unmarshal(scanner.Bytes(), &finding))
		lines = append(lines, finding)
	}
	assert.NoError(scanner.Err())
	assert.Len(lines, 2)
	assert.Equal("s3_bucket_public_access_block", lines[0].CheckID)
	assert.Equal(domain.StatusPass, lines[1].Status)
}

func TestSinkStopFlushesBufferedFindings(t *testing.T) {
	assert := require.New(t)
	filePath := filepath.Join(t.TempDir(), "findings.json")

	sink, err := New(filePath)
	assert.NoError(err)

	// no worker running: Stop alone must drain the buffer
	assert.NoError(sink.Write(context.Background(), testFindings()))
	assert.NoError(sink.Stop())

	data, err := os.ReadFile(filePath)
	assert.NoError(err)
	assert.NotEmpty(data)
}

func TestSinkAppendsAcrossRuns(t *testing.T) {
	assert := require.New(t)
	filePath := filepath.Join(t.TempDir(), "findings.json")

	for i := 0; i < 2; i++ {
		sink, err := New(filePath)
		assert.NoError(err)
		assert.NoError(sink.Write(context.Background(), testFindings()[:1]))
		assert.NoError(sink.Stop())
		// give the filesystem a beat between append runs
		time.Sleep(10 * time.Millisecond)
	}

	file, err := os.Open(filePath)
	assert.NoError(err)
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		count++
	}
	assert.Equal(2, count)
}

func TestNewFailsOnUnwritablePath(t *testing.T) {
	assert := require.New(t)
	_, err := New(filepath.Join(t.TempDir(), "missing", "findings.json"))
	assert.Error(err)
}
