// Package catalog loads route definitions and run plans from YAML or TOML files.
//
// A catalog names routes the same way code does with route.New, so routes can
// be declared once and invoked from the command line or a plan:
//
//	base_url: http://localhost:8080
//	routes:
//	  pong:
//	    endpoint: /pong
//	    args: {params: {id: 3149232}}
//	    methods: {get: {}}
//	    scenarios:
//	      jane: {params: {username: Jane Doe}}
//	    expect: {status: 200}
//	plans:
//	  smoke:
//	    steps:
//	      - {route: pong, method: GET, scenario: jane, repeat: 3}
package catalog

import (
	"maps"
	"slices"
)

// Catalog is a decoded catalog file.
type Catalog struct {
	BaseURL         string               `yaml:"base_url" toml:"base_url"`
	RequestIDHeader string               `yaml:"request_id_header" toml:"request_id_header"`
	Routes          map[string]RouteSpec `yaml:"routes" toml:"routes"`
	Plans           map[string]PlanSpec  `yaml:"plans" toml:"plans"`

	source string
}

// RouteSpec declares one route.
type RouteSpec struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	// BaseURL overrides the catalog base URL for this route.
	BaseURL   string                               `yaml:"base_url" toml:"base_url"`
	Args      map[string]any                       `yaml:"args" toml:"args"`
	Methods   map[string]map[string]any            `yaml:"methods" toml:"methods"`
	Scenarios map[string]map[string]any            `yaml:"scenarios" toml:"scenarios"`
	Groups    map[string]map[string]map[string]any `yaml:"groups" toml:"groups"`
	Expect    Expect                               `yaml:"expect" toml:"expect"`
}

// Expect holds checks applied to every response of a route.
type Expect struct {
	Status  int               `yaml:"status" toml:"status"`
	Headers map[string]string `yaml:"headers" toml:"headers"`
}

// PlanSpec is an ordered list of steps.
type PlanSpec struct {
	Description string `yaml:"description" toml:"description"`
	Steps       []Step `yaml:"steps" toml:"steps"`
}

// Step schedules Repeat invocations of one route.
type Step struct {
	ID       string         `yaml:"id" toml:"id"`
	Route    string         `yaml:"route" toml:"route"`
	Method   string         `yaml:"method" toml:"method"`
	Scenario string         `yaml:"scenario" toml:"scenario"`
	Group    string         `yaml:"group" toml:"group"`
	Args     map[string]any `yaml:"args" toml:"args"`
	Repeat   int            `yaml:"repeat" toml:"repeat"`
}

// Source returns the file the catalog was loaded from, if any.
func (c *Catalog) Source() string { return c.source }

// RouteNames returns route names in sorted order.
func (c *Catalog) RouteNames() []string { return slices.Sorted(maps.Keys(c.Routes)) }

// PlanNames returns plan names in sorted order.
func (c *Catalog) PlanNames() []string { return slices.Sorted(maps.Keys(c.Plans)) }
