package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skysweep/skysweep/pkg/domain"
)

func noopEvaluator() domain.Evaluator {
	return domain.EvaluatorFunc(func(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
		return nil, nil
	})
}

func testCheck(id string, provider domain.Provider, service string, severity domain.Severity) Check {
	return Check{
		Metadata: domain.CheckMetadata{
			ID:           id,
			Title:        "title for " + id,
			Provider:     provider,
			Service:      service,
			Severity:     severity,
			ResourceKind: "thing",
		},
		Evaluator: noopEvaluator(),
	}
}

func testRegistry() *Registry {
	iamCheck := testCheck("iam_no_root_access_key", domain.ProviderAWS, "iam", domain.SeverityCritical)
	iamCheck.Metadata.Categories = []string{"identity"}
	iamCheck.Metadata.Compliance = []domain.ComplianceEntry{
		{Framework: "cis_aws_2.0", Requirements: []string{"1.4"}},
	}
	s3Check := testCheck("s3_bucket_public_access_block", domain.ProviderAWS, "s3", domain.SeverityHigh)
	s3Check.Metadata.Categories = []string{"internet-exposed"}
	kubeCheck := testCheck("core_no_privileged_containers", domain.ProviderKubernetes, "core", domain.SeverityHigh)
	return Discover(
		Pack{Name: "aws", Checks: []Check{iamCheck, s3Check}},
		Pack{Name: "kubernetes", Checks: []Check{kubeCheck}},
	)
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name    string
		packs   []Pack
		wantIDs []string
	}{
		{
			name: "valid checks admitted in lexicographic order",
			packs: []Pack{
				{Name: "aws", Checks: []Check{
					testCheck("s3_bucket_public_access_block", domain.ProviderAWS, "s3", domain.SeverityHigh),
					testCheck("iam_no_root_access_key", domain.ProviderAWS, "iam", domain.SeverityCritical),
				}},
			},
			wantIDs: []string{"iam_no_root_access_key", "s3_bucket_public_access_block"},
		},
		{
			name: "check with invalid metadata excluded",
			packs: []Pack{
				{Name: "aws", Checks: []Check{
					testCheck("iam_no_root_access_key", domain.ProviderAWS, "iam", domain.SeverityCritical),
					{
						Metadata:  domain.CheckMetadata{ID: "broken_check"},
						Evaluator: noopEvaluator(),
					},
				}},
			},
			wantIDs: []string{"iam_no_root_access_key"},
		},
		{
			name: "check without evaluator excluded",
			packs: []Pack{
				{Name: "aws", Checks: []Check{
					{Metadata: testCheck("iam_no_root_access_key", domain.ProviderAWS, "iam", domain.SeverityCritical).Metadata},
				}},
			},
			wantIDs: nil,
		},
		{
			name: "duplicate check id excluded",
			packs: []Pack{
				{Name: "one", Checks: []Check{
					testCheck("iam_no_root_access_key", domain.ProviderAWS, "iam", domain.SeverityCritical),
				}},
				{Name: "two", Checks: []Check{
					testCheck("iam_no_root_access_key", domain.ProviderAWS, "iam", domain.SeverityLow),
				}},
			},
			wantIDs: []string{"iam_no_root_access_key"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := require.New(t)
			reg := Discover(test.packs...)
			assert.Equal(len(test.wantIDs), reg.Len())
			if test.wantIDs == nil {
				assert.Empty(reg.IDs())
			} else {
				assert.Equal(test.wantIDs, reg.IDs())
			}
		})
	}
}

func TestDiscover_DuplicateKeepsFirst(t *testing.T) {
	assert := require.New(t)
	reg := Discover(
		Pack{Name: "one", Checks: []Check{
			testCheck("iam_no_root_access_key", domain.ProviderAWS, "iam", domain.SeverityCritical),
		}},
		Pack{Name: "two", Checks: []Check{
			testCheck("iam_no_root_access_key", domain.ProviderAWS, "iam", domain.SeverityLow),
		}},
	)
	metadata, ok := reg.Metadata("iam_no_root_access_key")
	assert.True(ok)
	assert.Equal(domain.SeverityCritical, metadata.Severity)
}

func TestSelect(t *testing.T) {
	reg := testRegistry()
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{
			name:   "empty filter selects everything",
			filter: Filter{},
			want: []string{
				"core_no_privileged_containers",
				"iam_no_root_access_key",
				"s3_bucket_public_access_block",
			},
		},
		{
			name:   "provider filter",
			filter: Filter{Providers: []domain.Provider{domain.ProviderAWS}},
			want:   []string{"iam_no_root_access_key", "s3_bucket_public_access_block"},
		},
		{
			name:   "service filter",
			filter: Filter{Services: []string{"iam"}},
			want:   []string{"iam_no_root_access_key"},
		},
		{
			name: "dimensions intersect",
			filter: Filter{
				Providers:  []domain.Provider{domain.ProviderAWS},
				Severities: []domain.Severity{domain.SeverityHigh},
			},
			want: []string{"s3_bucket_public_access_block"},
		},
		{
			name: "values within a dimension union",
			filter: Filter{
				Services: []string{"iam", "core"},
			},
			want: []string{"core_no_privileged_containers", "iam_no_root_access_key"},
		},
		{
			name:   "category filter",
			filter: Filter{Categories: []string{"identity"}},
			want:   []string{"iam_no_root_access_key"},
		},
		{
			name:   "framework filter",
			filter: Filter{Frameworks: []string{"cis_aws_2.0"}},
			want:   []string{"iam_no_root_access_key"},
		},
		{
			name: "include list bypasses dimension filters",
			filter: Filter{
				IncludeChecks: []string{"core_no_privileged_containers"},
				Services:      []string{"iam"},
			},
			want: []string{"core_no_privileged_containers"},
		},
		{
			name: "exclude wins over include",
			filter: Filter{
				IncludeChecks: []string{"iam_no_root_access_key", "s3_bucket_public_access_block"},
				ExcludeChecks: []string{"s3_bucket_public_access_block"},
			},
			want: []string{"iam_no_root_access_key"},
		},
		{
			name: "exclude wins over dimensions",
			filter: Filter{
				Providers:     []domain.Provider{domain.ProviderAWS},
				ExcludeChecks: []string{"iam_no_root_access_key"},
			},
			want: []string{"s3_bucket_public_access_block"},
		},
		{
			name:   "no match",
			filter: Filter{Services: []string{"rds"}},
			want:   nil,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := require.New(t)
			assert.Equal(test.want, reg.Select(test.filter))
		})
	}
}

func TestIndexes(t *testing.T) {
	assert := require.New(t)
	reg := testRegistry()
	assert.Equal([]string{"iam", "s3"}, reg.Services(domain.ProviderAWS))
	assert.Equal([]string{"core"}, reg.Services(domain.ProviderKubernetes))
	assert.Equal([]string{"identity", "internet-exposed"}, reg.Categories())
	assert.Equal([]string{"cis_aws_2.0"}, reg.Frameworks())
}
