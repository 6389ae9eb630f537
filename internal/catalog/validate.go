package catalog

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/broutes/pkg/meta"
)

// Validate checks routes and plans and reports every problem found.
func (c *Catalog) Validate() error {
	var errs []error
	add := func(format string, a ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidCatalog, fmt.Sprintf(format, a...)))
	}

	for _, name := range c.RouteNames() {
		r := c.Routes[name]
		if strings.TrimSpace(r.Endpoint) == "" {
			add("route %q: endpoint is required", name)
		}
		for m := range r.Methods {
			if !meta.ValidMethod(m) {
				add("route %q: invalid method %q", name, m)
			}
		}
		if r.Expect.Status != 0 && (r.Expect.Status < 100 || r.Expect.Status > 599) {
			add("route %q: expect.status %d out of range", name, r.Expect.Status)
		}
	}

	for _, name := range c.PlanNames() {
		p := c.Plans[name]
		if len(p.Steps) == 0 {
			add("plan %q: no steps", name)
		}
		for i, s := range p.Steps {
			where := fmt.Sprintf("plan %q step %d", name, i)
			if s.ID != "" {
				where = fmt.Sprintf("plan %q step %q", name, s.ID)
			}
			r, ok := c.Routes[s.Route]
			if !ok {
				add("%s: unknown route %q", where, s.Route)
				continue
			}
			if s.Method != "" && !meta.ValidMethod(s.Method) {
				add("%s: invalid method %q", where, s.Method)
			}
			if s.Repeat < 0 {
				add("%s: repeat must not be negative", where)
			}
			if s.Group != "" {
				g, ok := r.Groups[s.Group]
				if !ok {
					add("%s: route %q has no scenario group %q", where, s.Route, s.Group)
					continue
				}
				if _, ok := g[s.Scenario]; !ok {
					add("%s: scenario %q not in group %q", where, s.Scenario, s.Group)
				}
			} else if s.Scenario != "" {
				if _, ok := r.Scenarios[s.Scenario]; !ok {
					add("%s: route %q has no scenario %q", where, s.Route, s.Scenario)
				}
			}
		}
	}
	return errors.Join(errs...)
}

func stepMethod(s Step) string {
	if s.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(s.Method)
}
