package catalog

import (
	"fmt"
	"strconv"

	"github.com/okian/broutes/internal/domain/model"
	"github.com/okian/broutes/pkg/args"
	"github.com/okian/broutes/pkg/route"
	"github.com/okian/broutes/pkg/validate"
)

// BuildRoute builds the named route. opts are applied after the catalog's own
// options, so they can override the base URL, sender or logger.
func (c *Catalog) BuildRoute(name string, opts ...route.Option) (*route.Route, error) {
	def, ok := c.Routes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRouteNotFound, name)
	}

	base := def.BaseURL
	if base == "" {
		base = c.BaseURL
	}
	ro := []route.Option{
		route.WithName(name),
		route.WithBaseURL(base),
	}
	if def.Args != nil {
		ro = append(ro, route.WithArgs(route.Static(def.Args)))
	}
	for method, a := range def.Methods {
		ro = append(ro, route.WithMethodArgs(method, route.Static(a)))
	}
	for scenario, a := range def.Scenarios {
		ro = append(ro, route.WithScenario(scenario, route.Static(a)))
	}
	for group, scenarios := range def.Groups {
		set := make(route.Scenarios, len(scenarios))
		for scenario, a := range scenarios {
			set[scenario] = route.Static(a)
		}
		ro = append(ro, route.WithScenarioGroup(group, set))
	}
	if def.Expect.Status != 0 {
		ro = append(ro, route.WithExpectStatus(def.Expect.Status))
	}
	if len(def.Expect.Headers) > 0 {
		ro = append(ro, route.WithExpectation(validate.Header{Expected: def.Expect.Headers}))
	}
	if c.RequestIDHeader != "" {
		ro = append(ro, route.WithRequestIDHeader(c.RequestIDHeader))
	}

	r, err := route.New(def.Endpoint, append(ro, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("build route %q: %w", name, err)
	}
	return r, nil
}

// BuildRoutes builds every route in the catalog.
func (c *Catalog) BuildRoutes(opts ...route.Option) (map[string]*route.Route, error) {
	out := make(map[string]*route.Route, len(c.Routes))
	for _, name := range c.RouteNames() {
		r, err := c.BuildRoute(name, opts...)
		if err != nil {
			return nil, err
		}
		out[name] = r
	}
	return out, nil
}

// Plan expands the named plan into jobs in submission order. A step with
// Repeat n yields n jobs; Repeat 0 yields one.
func (c *Catalog) Plan(name string) ([]model.Job, error) {
	p, ok := c.Plans[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, name)
	}

	var jobs []model.Job
	for i, s := range p.Steps {
		step := s.ID
		if step == "" {
			step = "step-" + strconv.Itoa(i)
		}
		repeat := max(s.Repeat, 1)
		for k := range repeat {
			jobs = append(jobs, model.Job{
				ID:       fmt.Sprintf("%s/%s/%d", name, step, k),
				Plan:     name,
				Step:     step,
				Seq:      len(jobs),
				Route:    s.Route,
				Method:   stepMethod(s),
				Scenario: s.Scenario,
				Group:    s.Group,
				Args:     args.Copy(s.Args),
			})
		}
	}
	return jobs, nil
}
