package kubernetes

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/skysweep/skysweep/internal/registry"
	"github.com/skysweep/skysweep/pkg/domain"
)

const podsKind = "pods"

// Pack returns the built-in kubernetes checks
func Pack() registry.Pack {
	return registry.Pack{
		Name: "kubernetes",
		Checks: []registry.Check{
			{
				Metadata: domain.CheckMetadata{
					ID:           "core_no_privileged_containers",
					Title:        "Pods should not run privileged containers",
					Provider:     domain.ProviderKubernetes,
					Service:      "core",
					Severity:     domain.SeverityHigh,
					ResourceKind: podsKind,
					Categories:   []string{"container-security"},
					Risk:         "Privileged containers share the host's kernel capabilities and can escape their isolation boundary.",
					Remediation: domain.Remediation{
						Text: "Drop securityContext.privileged or set it to false on every container.",
						URL:  "https://kubernetes.io/docs/tasks/configure-pod-container/security-context/",
					},
					Compliance: []domain.ComplianceEntry{
						{Framework: "cis_kubernetes_v1.7", Requirements: []string{"5.2.5"}},
					},
				},
				Evaluator: domain.EvaluatorFunc(evaluatePrivilegedContainers),
			},
			{
				Metadata: domain.CheckMetadata{
					ID:           "core_no_host_network",
					Title:        "Pods should not share the host network namespace",
					Provider:     domain.ProviderKubernetes,
					Service:      "core",
					Severity:     domain.SeverityMedium,
					ResourceKind: podsKind,
					Categories:   []string{"container-security", "network"},
					Risk:         "Pods on the host network can reach services bound to localhost and sniff node traffic.",
					Remediation: domain.Remediation{
						Text: "Remove spec.hostNetwork or set it to false.",
						URL:  "https://kubernetes.io/docs/concepts/security/pod-security-standards/",
					},
					Compliance: []domain.ComplianceEntry{
						{Framework: "cis_kubernetes_v1.7", Requirements: []string{"5.2.4"}},
					},
				},
				Evaluator: domain.EvaluatorFunc(evaluateHostNetwork),
			},
			{
				Metadata: domain.CheckMetadata{
					ID:           "core_no_default_namespace",
					Title:        "Workloads should not run in the default namespace",
					Provider:     domain.ProviderKubernetes,
					Service:      "core",
					Severity:     domain.SeverityLow,
					ResourceKind: podsKind,
					Categories:   []string{"governance"},
					Risk:         "The default namespace has no resource boundaries or dedicated RBAC, mixing unrelated workloads.",
					Remediation: domain.Remediation{
						Text: "Create dedicated namespaces and move workloads out of default.",
						URL:  "https://kubernetes.io/docs/concepts/overview/working-with-objects/namespaces/",
					},
					Compliance: []domain.ComplianceEntry{
						{Framework: "cis_kubernetes_v1.7", Requirements: []string{"5.7.4"}},
					},
				},
				Evaluator: domain.EvaluatorFunc(evaluateDefaultNamespace),
			},
		},
	}
}

func evaluatePrivilegedContainers(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
	set, err := scan.Resources(ctx, domain.ProviderKubernetes, podsKind)
	if err != nil {
		return nil, err
	}

	var results []domain.CheckResult
	for _, pod := range set.Resources {
		result := domain.NewCheckResult("core_no_privileged_containers", pod)
		privileged := privilegedContainers(pod.Attributes)
		if len(privileged) > 0 {
			result.Status = domain.StatusFail
			result.StatusDetail = fmt.Sprintf("Pod %s runs privileged containers: %v.", pod.Name, privileged)
		} else {
			result.Status = domain.StatusPass
			result.StatusDetail = fmt.Sprintf("Pod %s runs no privileged containers.", pod.Name)
		}
		results = append(results, result)
	}
	return withEmptyRegions(scan, set, results, "core_no_privileged_containers", "No pods found."), nil
}

func evaluateHostNetwork(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
	set, err := scan.Resources(ctx, domain.ProviderKubernetes, podsKind)
	if err != nil {
		return nil, err
	}

	var results []domain.CheckResult
	for _, pod := range set.Resources {
		result := domain.NewCheckResult("core_no_host_network", pod)
		hostNetwork, _, _ := unstructured.NestedBool(pod.Attributes, "spec", "hostNetwork")
		if hostNetwork {
			result.Status = domain.StatusFail
			result.StatusDetail = fmt.Sprintf("Pod %s shares the host network namespace.", pod.Name)
		} else {
			result.Status = domain.StatusPass
			result.StatusDetail = fmt.Sprintf("Pod %s uses its own network namespace.", pod.Name)
		}
		results = append(results, result)
	}
	return withEmptyRegions(scan, set, results, "core_no_host_network", "No pods found."), nil
}

func evaluateDefaultNamespace(ctx context.Context, scan *domain.ScanContext) ([]domain.CheckResult, error) {
	set, err := scan.Resources(ctx, domain.ProviderKubernetes, podsKind)
	if err != nil {
		return nil, err
	}

	var results []domain.CheckResult
	for _, pod := range set.Resources {
		result := domain.NewCheckResult("core_no_default_namespace", pod)
		namespace, _, _ := unstructured.NestedString(pod.Attributes, "metadata", "namespace")
		if namespace == "default" {
			result.Status = domain.StatusFail
			result.StatusDetail = fmt.Sprintf("Pod %s runs in the default namespace.", pod.Name)
		} else {
			result.Status = domain.StatusPass
			result.StatusDetail = fmt.Sprintf("Pod %s runs in namespace %s.", pod.Name, namespace)
		}
		results = append(results, result)
	}
	return withEmptyRegions(scan, set, results, "core_no_default_namespace", "No pods found."), nil
}

// privilegedContainers returns the names of the pod's privileged containers
func privilegedContainers(manifest map[string]interface{}) []string {
	var names []string
	containers, _, _ := unstructured.NestedSlice(manifest, "spec", "containers")
	for _, item := range containers {
		container, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		privileged, _, _ := unstructured.NestedBool(container, "securityContext", "privileged")
		if privileged {
			name, _, _ := unstructured.NestedString(container, "name")
			names = append(names, name)
		}
	}
	return names
}

// withEmptyRegions appends an informational result for every in-scope region
// that was collected but held no matching resources. Regions whose collection
// failed are reported by the executor as skips, not as findings.
func withEmptyRegions(scan *domain.ScanContext, set *domain.ResourceSet, results []domain.CheckResult, checkID, detail string) []domain.CheckResult {
	if len(set.Resources) > 0 {
		return results
	}
	for _, region := range scan.Regions(domain.ProviderKubernetes) {
		if _, failed := set.FailedRegions[region]; failed {
			continue
		}
		results = append(results, domain.NewRegionResult(checkID, region, domain.StatusInfo, detail))
	}
	return results
}
