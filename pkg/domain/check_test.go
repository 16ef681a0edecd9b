package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validMetadata() CheckMetadata {
	return CheckMetadata{
		ID:           "s3_bucket_public_access_block",
		Title:        "S3 buckets should block public access",
		Provider:     ProviderAWS,
		Service:      "s3",
		Severity:     SeverityHigh,
		ResourceKind: "bucket",
		Compliance: []ComplianceEntry{
			{Framework: "cis_aws_2.0", Requirements: []string{"2.1.4"}},
		},
	}
}

func TestCheckMetadata_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CheckMetadata)
		wantErr bool
	}{
		{
			name:   "valid metadata",
			mutate: func(m *CheckMetadata) {},
		},
		{
			name:    "missing id",
			mutate:  func(m *CheckMetadata) { m.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing title",
			mutate:  func(m *CheckMetadata) { m.Title = "" },
			wantErr: true,
		},
		{
			name:    "unknown provider",
			mutate:  func(m *CheckMetadata) { m.Provider = "digitalocean" },
			wantErr: true,
		},
		{
			name:    "missing service",
			mutate:  func(m *CheckMetadata) { m.Service = "" },
			wantErr: true,
		},
		{
			name:    "unknown severity",
			mutate:  func(m *CheckMetadata) { m.Severity = "urgent" },
			wantErr: true,
		},
		{
			name:    "missing resource kind",
			mutate:  func(m *CheckMetadata) { m.ResourceKind = "" },
			wantErr: true,
		},
		{
			name: "compliance entry without framework",
			mutate: func(m *CheckMetadata) {
				m.Compliance = []ComplianceEntry{{Requirements: []string{"1.1"}}}
			},
			wantErr: true,
		},
		{
			name: "compliance entry without requirements",
			mutate: func(m *CheckMetadata) {
				m.Compliance = []ComplianceEntry{{Framework: "cis_aws_2.0"}}
			},
			wantErr: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := require.New(t)
			metadata := validMetadata()
			test.mutate(&metadata)
			err := metadata.Validate()
			if test.wantErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
			}
		})
	}
}

func TestCheckMetadata_Requirements(t *testing.T) {
	assert := require.New(t)
	metadata := validMetadata()
	assert.Equal([]string{"2.1.4"}, metadata.Requirements("cis_aws_2.0"))
	assert.Nil(metadata.Requirements("nist_800_53"))
}

func TestParseProvider(t *testing.T) {
	assert := require.New(t)
	provider, err := ParseProvider("kubernetes")
	assert.NoError(err)
	assert.Equal(ProviderKubernetes, provider)

	_, err = ParseProvider("vmware")
	assert.Error(err)
}

func TestParseSeverity(t *testing.T) {
	assert := require.New(t)
	severity, err := ParseSeverity("critical")
	assert.NoError(err)
	assert.Equal(SeverityCritical, severity)

	_, err = ParseSeverity("severe")
	assert.Error(err)
}
