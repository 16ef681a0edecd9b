package kubernetes

import (
	"context"
	"fmt"
	"strings"
	"sync"

	meta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/skysweep/skysweep/internal/connector"
	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/logger"
)

const listVerb = "list"

// Connector lists cluster resources through the dynamic client. The cluster
// name acts as the region of every listed resource.
type Connector struct {
	clientSet       kubernetes.Interface
	dynamicClient   dynamic.Interface
	discoveryClient discovery.DiscoveryInterface
	clusterName     string

	mu         sync.Mutex
	kindToGVR  map[string]schema.GroupVersionResource
	discovered bool
}

// New returns a kubernetes connector for the cluster reachable with the given
// rest config. The connection is verified up front so credential problems
// surface before a scan starts.
func New(config *rest.Config, clusterName string) (*Connector, error) {
	clientSet, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("unable to create clientset for kubernetes connector: %w", err)
	}
	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("unable to create dynamic client for kubernetes connector: %w", err)
	}
	c := &Connector{
		clientSet:       clientSet,
		dynamicClient:   dynamicClient,
		discoveryClient: clientSet.Discovery(),
		clusterName:     clusterName,
		kindToGVR:       map[string]schema.GroupVersionResource{},
	}
	version, err := c.discoveryClient.ServerVersion()
	if err != nil {
		return nil, fmt.Errorf("unable to reach kubernetes api server: %w", err)
	}
	logger.Infow("connected to kubernetes cluster", "cluster", clusterName, "version", version.String())
	return c, nil
}

// NewFromKubeconfig builds a connector from a kubeconfig file path, falling
// back to the in-cluster service account when the path is empty
func NewFromKubeconfig(kubeConfigFile, clusterName string) (*Connector, error) {
	var config *rest.Config
	var err error
	if kubeConfigFile == "" {
		config, err = rest.InClusterConfig()
	} else {
		config, err = clientcmd.BuildConfigFromFlags("", kubeConfigFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load kubernetes config: %w", err)
	}
	return New(config, clusterName)
}

// Provider implements domain.Connector
func (c *Connector) Provider() domain.Provider {
	return domain.ProviderKubernetes
}

// Regions returns the cluster name as the single region of the connector
func (c *Connector) Regions(_ context.Context) ([]string, error) {
	return []string{c.clusterName}, nil
}

// List returns all resources of the given kind in the cluster. Kind is the
// lowercase plural resource name, e.g. "pods" or "deployments".
func (c *Connector) List(ctx context.Context, region, kind string) ([]domain.Resource, error) {
	if region != c.clusterName {
		return nil, connector.Permanent(c.Provider(), region, kind,
			fmt.Errorf("unknown cluster %q, connector serves %q", region, c.clusterName))
	}

	gvr, err := c.resolveKind(kind)
	if err != nil {
		return nil, connector.Permanent(c.Provider(), region, kind, err)
	}

	list, err := c.dynamicClient.Resource(gvr).Namespace(meta.NamespaceAll).List(ctx, meta.ListOptions{})
	if err != nil {
		return nil, connector.Transient(c.Provider(), region, kind,
			fmt.Errorf("unable to list resource %s: %w", gvr.Resource, err))
	}

	resources := make([]domain.Resource, 0, len(list.Items))
	for i := range list.Items {
		resources = append(resources, newResource(list.Items[i], c.clusterName, kind))
	}
	return resources, nil
}

// resolveKind maps a resource kind to its preferred group version resource,
// discovering the server's resources once per connector
func (c *Connector) resolveKind(kind string) (schema.GroupVersionResource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.discovered {
		if err := c.discoverResources(); err != nil {
			return schema.GroupVersionResource{}, err
		}
		c.discovered = true
	}

	gvr, ok := c.kindToGVR[strings.ToLower(kind)]
	if !ok {
		return schema.GroupVersionResource{}, fmt.Errorf("resource kind %q is not served by the cluster", kind)
	}
	return gvr, nil
}

func (c *Connector) discoverResources() error {
	apiResourceLists, err := c.discoveryClient.ServerPreferredResources()
	if err != nil {
		return fmt.Errorf("failed to get server api resources: %w", err)
	}
	for _, list := range apiResourceLists {
		groupVersion, err := schema.ParseGroupVersion(list.GroupVersion)
		if err != nil {
			logger.Errorw("failed to parse group version", "group-version", list.GroupVersion, "error", err)
			continue
		}
		for i := range list.APIResources {
			apiResource := list.APIResources[i]
			if !hasVerb(apiResource.Verbs, listVerb) {
				continue
			}
			name := strings.ToLower(apiResource.Name)
			if _, exists := c.kindToGVR[name]; exists {
				continue
			}
			c.kindToGVR[name] = schema.GroupVersionResource{
				Group:    groupVersion.Group,
				Version:  groupVersion.Version,
				Resource: apiResource.Name,
			}
		}
	}
	return nil
}

func hasVerb(verbs meta.Verbs, verb string) bool {
	for i := range verbs {
		if verbs[i] == verb {
			return true
		}
	}
	return false
}

func newResource(item unstructured.Unstructured, clusterName, kind string) domain.Resource {
	name := item.GetName()
	if namespace := item.GetNamespace(); namespace != "" {
		name = fmt.Sprintf("%s/%s", namespace, name)
	}
	return domain.Resource{
		ID:         string(item.GetUID()),
		Provider:   domain.ProviderKubernetes,
		Region:     clusterName,
		Kind:       kind,
		Name:       name,
		Tags:       item.GetLabels(),
		Attributes: item.Object,
	}
}
