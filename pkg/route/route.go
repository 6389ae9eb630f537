// Package route defines HTTP routes declaratively and invokes them.
//
// A Route layers request arguments from the route, the HTTP method, an
// optional scenario and the call site, merges them, and sends the result:
//
//	pong := route.MustNew("/pong",
//		route.WithBaseURL("http://localhost:8080"),
//		route.WithArgs(route.Static(args.Map{"params": args.Map{"id": 3149232}})),
//		route.WithScenario("pong", func(_ *route.Call, a *args.Args) error {
//			a.Child("params").Set("username", "Jane Doe")
//			return nil
//		}),
//	)
//	r, _ := pong.ForScenario("pong")
//	ex, err := r.Get(ctx)
package route

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/broutes/pkg/args"
	"github.com/okian/broutes/pkg/hook"
	"github.com/okian/broutes/pkg/logger"
	"github.com/okian/broutes/pkg/meta"
	"github.com/okian/broutes/pkg/response"
	"github.com/okian/broutes/pkg/transport"
	"github.com/okian/broutes/pkg/validate"
)

// DefaultValidator is the validator name Validate uses when none is given.
const DefaultValidator = "validator"

// ArgsFunc fills one layer of request arguments.
type ArgsFunc func(c *Call, a *args.Args) error

// Scenarios maps scenario names to their argument layer.
type Scenarios map[string]ArgsFunc

// ValidatorFunc is a named, user-defined check on a route.
type ValidatorFunc func(ctx context.Context, r *Route, params ...any) error

// Sender sends a prepared request.
type Sender interface {
	Send(ctx context.Context, p *meta.Prepared) (*response.Response, error)
}

// Static returns an ArgsFunc that copies m into the layer.
func Static(m args.Map) ArgsFunc {
	return func(_ *Call, a *args.Args) error {
		a.Update(args.Copy(m))
		return nil
	}
}

// Call is the state of one invocation, passed to every ArgsFunc.
type Call struct {
	Ctx    context.Context
	Method string
	Route  *Route

	scope string
	hooks *hook.Set
	after *hook.After
}

// Scope returns the layer being built: route, method or scenario.
func (c *Call) Scope() string { return c.scope }

// Hooks returns the hooks added for this invocation only.
func (c *Call) Hooks() *hook.Set { return c.hooks }

// SetAfterHooks sets the hooks run after the response for scope.
func (c *Call) SetAfterHooks(scope string, fns ...hook.AfterFunc) error {
	return c.after.Set(scope, fns...)
}

var (
	defaultSenderOnce sync.Once
	defaultSender     Sender
)

// DefaultSender returns the shared transport used by routes without WithSender.
func DefaultSender() Sender {
	defaultSenderOnce.Do(func() {
		defaultSender = transport.New()
	})
	return defaultSender
}

// Route is a named HTTP endpoint definition. A Route is safe for concurrent
// use once built.
type Route struct {
	name            string
	endpoint        string
	baseURL         string
	routeArgs       ArgsFunc
	methodArgs      map[string]ArgsFunc
	scenarios       Scenarios
	groups          map[string]Scenarios
	validators      map[string]ValidatorFunc
	expect          *validate.Manager
	hooks           *hook.Set
	base            *meta.Meta
	sender          Sender
	log             logger.Logger
	requestIDHeader string
	optErr          error

	scenarioName string
	groupName    string
	scenario     ArgsFunc

	mu       sync.RWMutex
	lastArgs args.Map
	lastResp *response.Response
}

// New builds a Route for endpoint.
func New(endpoint string, opts ...Option) (*Route, error) {
	r := &Route{
		name:       endpoint,
		endpoint:   endpoint,
		methodArgs: make(map[string]ArgsFunc),
		scenarios:  make(Scenarios),
		validators: make(map[string]ValidatorFunc),
		expect:     validate.NewManager(),
		hooks:      &hook.Set{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.optErr != nil {
		return nil, r.optErr
	}
	if r.log == nil {
		r.log = logger.Named("route").With(logger.String("route", r.name))
	}
	if r.sender == nil {
		r.sender = DefaultSender()
	}
	return r, nil
}

// MustNew is like New but panics on error.
func MustNew(endpoint string, opts ...Option) *Route {
	r, err := New(endpoint, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Name returns the name used in logs and metrics.
func (r *Route) Name() string { return r.name }

// Endpoint returns the path joined to the base URL, placeholders unformatted.
func (r *Route) Endpoint() string { return r.endpoint }

// BaseURL returns the URL prefix.
func (r *Route) BaseURL() string { return r.baseURL }

// Scenario returns the bound scenario and group names.
func (r *Route) Scenario() (name, group string) { return r.scenarioName, r.groupName }

// Expectations returns the manager applied to every response.
func (r *Route) Expectations() *validate.Manager { return r.expect }

// ScenarioNames lists the scenarios defined on the route itself.
func (r *Route) ScenarioNames() []string { return sortedNames(r.scenarios) }

// Groups lists scenario groups with their scenario names.
func (r *Route) Groups() map[string][]string {
	out := make(map[string][]string, len(r.groups))
	for g, s := range r.groups {
		out[g] = sortedNames(s)
	}
	return out
}

// Methods lists methods with a method layer, in sorted order.
func (r *Route) Methods() []string {
	return sortedNames(r.methodArgs)
}

// ForScenario returns a copy of r bound to the scenario name, looked up in
// the given group when one is passed.
func (r *Route) ForScenario(name string, group ...string) (*Route, error) {
	set, where, groupName := r.scenarios, r.name, ""
	if len(group) > 0 && group[0] != "" {
		groupName = group[0]
		if len(r.groups) == 0 {
			return nil, fmt.Errorf("%w: route '%s'", ErrNoScenarioGroups, r.name)
		}
		g, ok := r.groups[groupName]
		if !ok {
			return nil, fmt.Errorf("%w: scenario group name: %s not defined in route '%s'",
				ErrScenarioGroupNotFound, groupName, r.name)
		}
		set, where = g, groupName
	}

	fn, ok := set[name]
	if name == "" || !ok || fn == nil {
		return nil, fmt.Errorf("%w: cannot find scenario '%s' in '%s'", ErrScenarioNotFound, name, where)
	}

	c := r.clone()
	c.scenario, c.scenarioName, c.groupName = fn, name, groupName
	c.log = r.log.With(logger.String("scenario", name))
	c.log.Debug(context.Background(), "scenario bound", logger.String("group", groupName))
	return c, nil
}

func (r *Route) clone() *Route {
	return &Route{
		name:            r.name,
		endpoint:        r.endpoint,
		baseURL:         r.baseURL,
		routeArgs:       r.routeArgs,
		methodArgs:      r.methodArgs,
		scenarios:       r.scenarios,
		groups:          r.groups,
		validators:      r.validators,
		expect:          r.expect,
		hooks:           r.hooks,
		base:            r.base,
		sender:          r.sender,
		log:             r.log,
		requestIDHeader: r.requestIDHeader,
		scenarioName:    r.scenarioName,
		groupName:       r.groupName,
		scenario:        r.scenario,
	}
}

// RequestArgs returns the arguments of the last invocation.
func (r *Route) RequestArgs() args.Map {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return args.Copy(r.lastArgs)
}

// Response returns the response of the last invocation.
func (r *Route) Response() *response.Response {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastResp
}

func (r *Route) record(a args.Map, resp *response.Response) {
	r.mu.Lock()
	r.lastArgs, r.lastResp = a, resp
	r.mu.Unlock()
}

// Validate runs the named validator, DefaultValidator when name is empty.
func (r *Route) Validate(ctx context.Context, name string, params ...any) error {
	if name == "" {
		name = DefaultValidator
	}
	fn, ok := r.validators[name]
	if !ok {
		return fmt.Errorf("%w: validation attribute '%s' not found in route '%s'", ErrValidatorNotFound, name, r.name)
	}
	return fn(ctx, r, params...)
}

func (r *Route) String() string {
	return fmt.Sprintf("Route(base_url=%q, group=%q, scenario=%q, endpoint=%q)",
		r.baseURL, r.groupName, r.scenarioName, r.endpoint)
}
