package kubernetes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	meta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	discoverfake "k8s.io/client-go/discovery/fake"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/skysweep/skysweep/internal/connector"
	"github.com/skysweep/skysweep/pkg/domain"
)

const testCluster = "test-cluster"

type discoveryMock struct {
	discoverfake.FakeDiscovery
	apiList []*meta.APIResourceList
	err     error
}

func (d *discoveryMock) ServerPreferredResources() ([]*meta.APIResourceList, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.apiList, nil
}

func podObject(namespace, name string, labels map[string]interface{}) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Pod",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
			"uid":       "uid-" + name,
			"labels":    labels,
		},
	}}
}

func testConnector(objects ...runtime.Object) *Connector {
	dynamicClient := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			{Version: "v1", Resource: "pods"}: "PodList",
		},
		objects...,
	)
	return &Connector{
		dynamicClient: dynamicClient,
		discoveryClient: &discoveryMock{
			apiList: []*meta.APIResourceList{
				{
					GroupVersion: "v1",
					APIResources: []meta.APIResource{
						{Name: "pods", Verbs: meta.Verbs{"list", "get"}},
						{Name: "bindings", Verbs: meta.Verbs{"create"}},
					},
				},
			},
		},
		clusterName: testCluster,
		kindToGVR:   map[string]schema.GroupVersionResource{},
	}
}

func TestRegions(t *testing.T) {
	assert := require.New(t)
	conn := testConnector()
	regions, err := conn.Regions(context.Background())
	assert.NoError(err)
	assert.Equal([]string{testCluster}, regions)
	assert.Equal(domain.ProviderKubernetes, conn.Provider())
}

func TestList(t *testing.T) {
	assert := require.New(t)
	conn := testConnector(
		podObject("backend", "api", map[string]interface{}{"app": "api"}),
		podObject("default", "stray", nil),
	)

	resources, err := conn.List(context.Background(), testCluster, "pods")
	assert.NoError(err)
	assert.Len(resources, 2)

	byName := map[string]domain.Resource{}
	for _, resource := range resources {
		assert.Equal(domain.ProviderKubernetes, resource.Provider)
		assert.Equal(testCluster, resource.Region)
		assert.Equal("pods", resource.Kind)
		byName[resource.Name] = resource
	}
	assert.Equal("uid-api", byName["backend/api"].ID)
	assert.Equal("api", byName["backend/api"].Tags["app"])
	namespace, _, _ := unstructured.NestedString(byName["default/stray"].Attributes, "metadata", "namespace")
	assert.Equal("default", namespace)
}

func TestList_UnknownKind(t *testing.T) {
	assert := require.New(t)
	conn := testConnector()
	_, err := conn.List(context.Background(), testCluster, "widgets")
	assert.Error(err)
	assert.True(connector.IsPermanent(err))
}

func TestList_KindWithoutListVerb(t *testing.T) {
	assert := require.New(t)
	conn := testConnector()
	_, err := conn.List(context.Background(), testCluster, "bindings")
	assert.Error(err)
	assert.True(connector.IsPermanent(err))
}

func TestList_UnknownCluster(t *testing.T) {
	assert := require.New(t)
	conn := testConnector()
	_, err := conn.List(context.Background(), "other-cluster", "pods")
	assert.Error(err)
	assert.True(connector.IsPermanent(err))
}

func TestList_DiscoveryFailure(t *testing.T) {
	assert := require.New(t)
	conn := testConnector()
	conn.discoveryClient = &discoveryMock{err: context.DeadlineExceeded}
	_, err := conn.List(context.Background(), testCluster, "pods")
	assert.Error(err)
}
