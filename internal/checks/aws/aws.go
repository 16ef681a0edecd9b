package aws

import (
	"context"
	"fmt"

	"github.com/skysweep/skysweep/internal/registry"
	"github.com/skysweep/skysweep/pkg/domain"
)

// Pack returns the built-in aws checks
func Pack() registry.Pack {
	return registry.Pack{
		Name: "aws",
		Checks: []registry.Check{
			{
				Metadata: domain.CheckMetadata{
					ID:           "s3_bucket_public_access_block",
					Title:        "S3 buckets should block public access",
					Provider:     domain.ProviderAWS,
					Service:      "s3",
					Severity:     domain.SeverityHigh,
					ResourceKind: "bucket",
					Categories:   []string{"internet-exposed"},
					Risk:         "A bucket without a public access block can be exposed to the internet through an ACL or bucket policy change.",
					Remediation: domain.Remediation{
						Text: "Enable the account-wide or per-bucket S3 Block Public Access settings.",
						URL:  "https://docs.aws.amazon.com/AmazonS3/latest/userguide/access-control-block-public-access.html",
					},
					Compliance: []domain.ComplianceEntry{
						{Framework: "cis_aws_2.0", Requirements: []string{"2.1.4"}},
					},
				},
				Evaluator: domain.EvaluatorFunc(evaluateBucketPublicAccessBlock),
			},
			{
				Metadata: domain.CheckMetadata{
					ID:           "iam_no_root_access_key",
					Title:        "The root account should have no access keys",
					Provider:     domain.ProviderAWS,
					Service:      "iam",
					Severity:     domain.SeverityCritical,
					ResourceKind: "root-account",
					Categories:   []string{"identity"},
					Risk:         "Root access keys grant unrestricted, unauditable programmatic access to the whole account.",
					Remediation: domain.Remediation{
						Text: "Delete the root account's access keys and use IAM roles instead.",
						URL:  "https://docs.aws.amazon.com/IAM/latest/UserGuide/id_root-user.html",
					},
					Compliance: []domain.ComplianceEntry{
						{Framework: "cis_aws_2.0", Requirements: []string{"1.4"}},
					},
				},
				Evaluator: domain.EvaluatorFunc(evaluateRootAccessKey),
			},
			{
				Metadata: domain.CheckMetadata{
					ID:           "cloudtrail_multi_region_enabled",
					Title:        "CloudTrail trails should cover all regions",
					Provider:     domain.ProviderAWS,
					Service:      "cloudtrail",
					Severity:     domain.SeverityMedium,
					ResourceKind: "trail",
					Categories:   []string{"logging"},
					Risk:         "Single-region trails leave activity in the remaining regions unlogged.",
					Remediation: domain.Remediation{
						Text: "Set IsMultiRegionTrail on at least one trail.",
						URL:  "https://docs.aws.amazon.com/awscloudtrail/latest/userguide/receive-cloudtrail-log-files-from-multiple-regions.html",
					},
					Compliance: []domain.ComplianceEntry{
						{Framework: "cis_aws_2.0", Requirements: []string{"3.1"}},
					},
				},
				Evaluator: domain.EvaluatorFunc(evaluateMultiRegionTrail),
			},
		},
	}
}

func evaluateBucketPublicAccessBlock(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
	set, err := scan.Resources(ctx, domain.ProviderAWS, "bucket")
	if err != nil {
		return nil, err
	}

	var results []domain.CheckResult
	for _, bucket := range set.Resources {
		result := domain.NewCheckResult("s3_bucket_public_access_block", bucket)
		if bucket.BoolAttribute("public_access_block") {
			result.Status = domain.StatusPass
			result.StatusDetail = fmt.Sprintf("Bucket %s blocks public access.", bucket.Name)
		} else {
			result.Status = domain.StatusFail
			result.StatusDetail = fmt.Sprintf("Bucket %s does not block public access.", bucket.Name)
		}
		results = append(results, result)
	}
	return withEmptyRegions(scan, set, results, "s3_bucket_public_access_block", "No buckets found."), nil
}

func evaluateRootAccessKey(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
	set, err := scan.Resources(ctx, domain.ProviderAWS, "root-account")
	if err != nil {
		return nil, err
	}

	var results []domain.CheckResult
	for _, account := range set.Resources {
		result := domain.NewCheckResult("iam_no_root_access_key", account)
		if account.BoolAttribute("root_access_key_present") {
			result.Status = domain.StatusFail
			result.StatusDetail = "The root account has active access keys."
		} else {
			result.Status = domain.StatusPass
			result.StatusDetail = "The root account has no access keys."
		}
		results = append(results, result)
	}
	return withEmptyRegions(scan, set, results, "iam_no_root_access_key", "No credential report available."), nil
}

func evaluateMultiRegionTrail(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
	set, err := scan.Resources(ctx, domain.ProviderAWS, "trail")
	if err != nil {
		return nil, err
	}

	var results []domain.CheckResult
	for _, trail := range set.Resources {
		result := domain.NewCheckResult("cloudtrail_multi_region_enabled", trail)
		if trail.BoolAttribute("is_multi_region") {
			result.Status = domain.StatusPass
			result.StatusDetail = fmt.Sprintf("Trail %s logs all regions.", trail.Name)
		} else {
			result.Status = domain.StatusFail
			result.StatusDetail = fmt.Sprintf("Trail %s logs a single region.", trail.Name)
		}
		results = append(results, result)
	}
	return withEmptyRegions(scan, set, results, "cloudtrail_multi_region_enabled", "No trails found."), nil
}

func withEmptyRegions(scan *domain.ScanContext, set *domain.ResourceSet, results []domain.CheckResult, checkID, detail string) []domain.CheckResult {
	if len(set.Resources) > 0 {
		return results
	}
	for _, region := range scan.Regions(domain.ProviderAWS) {
		if _, failed := set.FailedRegions[region]; failed {
			continue
		}
		results = append(results, domain.NewRegionResult(checkID, region, domain.StatusInfo, detail))
	}
	return results
}
