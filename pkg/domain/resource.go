package domain

import (
	"fmt"
	"time"
)

// Resource is the provider-native representation of a cloud entity. Resources
// are owned by the inventory and are immutable for the duration of a scan;
// checks receive read-only references and must not mutate them.
type Resource struct {
	ID         string                 `json:"id"`
	Provider   Provider               `json:"provider"`
	Region     string                 `json:"region"`
	Kind       string                 `json:"kind"`
	Name       string                 `json:"name"`
	Tags       map[string]string      `json:"tags,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Key returns the unique inventory key of the resource
func (r Resource) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s", r.Provider, r.Region, r.Kind, r.ID)
}

// StringAttribute returns a string attribute by name, or "" when absent
func (r Resource) StringAttribute(name string) string {
	value, _ := r.Attributes[name].(string)
	return value
}

// BoolAttribute returns a boolean attribute by name, or false when absent
func (r Resource) BoolAttribute(name string) bool {
	value, _ := r.Attributes[name].(bool)
	return value
}

// Collection holds the outcome of collecting one (provider, region, kind) key.
// A failed collection carries the failure in Err and an empty resource list so
// dependent checks can be skipped instead of aborting the scan.
type Collection struct {
	Provider    Provider   `json:"provider"`
	Region      string     `json:"region"`
	Kind        string     `json:"kind"`
	Resources   []Resource `json:"resources"`
	Err         error      `json:"-"`
	CollectedAt time.Time  `json:"collected_at"`
}

// Failed reports whether the collection failed
func (c *Collection) Failed() bool {
	return c.Err != nil
}

// CollectionFailure records a (provider, region, kind) key that could not be
// collected during a scan
type CollectionFailure struct {
	Provider Provider `json:"provider"`
	Region   string   `json:"region"`
	Kind     string   `json:"kind"`
	Error    string   `json:"error"`
}

// ResourceSet is the view of a resource kind handed to an evaluator, covering
// every region in the scan scope. Regions whose collection failed are listed
// in FailedRegions rather than contributing resources.
type ResourceSet struct {
	Resources     []Resource
	FailedRegions map[string]error
}
