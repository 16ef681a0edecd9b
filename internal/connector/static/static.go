package static

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skysweep/skysweep/internal/connector"
	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/logger"
)

// fixture is one fixture file: all resources of one kind in one region
type fixture struct {
	Provider  string            `json:"provider" yaml:"provider"`
	Region    string            `json:"region" yaml:"region"`
	Kind      string            `json:"kind" yaml:"kind"`
	Resources []fixtureResource `json:"resources" yaml:"resources"`
}

type fixtureResource struct {
	ID         string                 `json:"id" yaml:"id"`
	Name       string                 `json:"name" yaml:"name"`
	Tags       map[string]string      `json:"tags" yaml:"tags"`
	Attributes map[string]interface{} `json:"attributes" yaml:"attributes"`
}

// Connector serves resources from fixture files on disk. It backs dry-run
// scans for providers without an in-tree SDK connector, and the test suite.
type Connector struct {
	provider  domain.Provider
	resources map[string][]domain.Resource // keyed region/kind
	regions   []string
}

// New returns a static connector for the given provider, loading every
// fixture file for that provider found under dir
func New(provider domain.Provider, dir string) (*Connector, error) {
	c := &Connector{
		provider:  provider,
		resources: map[string][]domain.Resource{},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures directory %s: %w", dir, err)
	}

	regions := map[string]struct{}{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		fix, err := loadFixture(path)
		if err != nil {
			logger.Warnw("skipping malformed fixture file", "file", path, "error", err)
			continue
		}
		if domain.Provider(fix.Provider) != provider {
			continue
		}
		key := fix.Region + "/" + fix.Kind
		for _, res := range fix.Resources {
			c.resources[key] = append(c.resources[key], domain.Resource{
				ID:         res.ID,
				Provider:   provider,
				Region:     fix.Region,
				Kind:       fix.Kind,
				Name:       res.Name,
				Tags:       res.Tags,
				Attributes: res.Attributes,
			})
		}
		regions[fix.Region] = struct{}{}
	}

	for region := range regions {
		c.regions = append(c.regions, region)
	}
	sort.Strings(c.regions)
	return c, nil
}

func loadFixture(path string) (*fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fix fixture
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &fix)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fix)
	default:
		return nil, fmt.Errorf("unsupported fixture extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if fix.Provider == "" || fix.Region == "" || fix.Kind == "" {
		return nil, fmt.Errorf("fixture must set provider, region and kind")
	}
	return &fix, nil
}

// Provider implements domain.Connector
func (c *Connector) Provider() domain.Provider {
	return c.provider
}

// Regions returns every region present in the loaded fixtures
func (c *Connector) Regions(_ context.Context) ([]string, error) {
	return c.regions, nil
}

// List returns the fixture resources of the given kind in the given region.
// An unknown region is a permanent provider error; a known region with no
// fixture for the kind is an empty result.
func (c *Connector) List(_ context.Context, region, kind string) ([]domain.Resource, error) {
	known := false
	for _, r := range c.regions {
		if r == region {
			known = true
			break
		}
	}
	if !known {
		return nil, connector.Permanent(c.provider, region, kind,
			fmt.Errorf("region %q is not present in the fixtures", region))
	}
	return c.resources[region+"/"+kind], nil
}
