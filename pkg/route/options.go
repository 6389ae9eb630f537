package route

import (
	"net/http"
	"strings"

	"github.com/okian/broutes/pkg/logger"
	"github.com/okian/broutes/pkg/meta"
	"github.com/okian/broutes/pkg/validate"
)

// Option applies a configuration option to a Route.
type Option func(*Route)

// WithName sets the name used in logs and metrics. It defaults to the endpoint.
func WithName(name string) Option {
	return func(r *Route) {
		if name != "" {
			r.name = name
		}
	}
}

// WithBaseURL sets the URL prefix joined with the endpoint.
func WithBaseURL(base string) Option {
	return func(r *Route) {
		r.baseURL = base
	}
}

// WithArgs sets the route layer, applied to every method.
func WithArgs(fn ArgsFunc) Option {
	return func(r *Route) {
		r.routeArgs = fn
	}
}

// WithMethodArgs sets the layer applied to one HTTP method.
func WithMethodArgs(method string, fn ArgsFunc) Option {
	return func(r *Route) {
		if fn != nil {
			r.methodArgs[strings.ToUpper(method)] = fn
		}
	}
}

// WithScenario registers a named scenario on the route itself.
func WithScenario(name string, fn ArgsFunc) Option {
	return func(r *Route) {
		if fn != nil {
			r.scenarios[name] = fn
		}
	}
}

// WithScenarioGroup registers a named group of scenarios.
func WithScenarioGroup(name string, scenarios Scenarios) Option {
	return func(r *Route) {
		if r.groups == nil {
			r.groups = make(map[string]Scenarios)
		}
		r.groups[name] = scenarios
	}
}

// WithValidator registers a named validator for Validate.
func WithValidator(name string, fn ValidatorFunc) Option {
	return func(r *Route) {
		if fn != nil {
			r.validators[name] = fn
		}
	}
}

// WithExpectation adds a check applied to every response.
func WithExpectation(v validate.Validator) Option {
	return func(r *Route) {
		r.expect.Add(v)
	}
}

// WithExpectStatus is shorthand for WithExpectation(validate.StatusCode{...}).
func WithExpectStatus(status int) Option {
	return WithExpectation(validate.StatusCode{Expected: status})
}

// WithHook registers a request or response hook on the route.
func WithHook(event string, fn any) Option {
	return func(r *Route) {
		if err := r.hooks.Add(event, fn); err != nil && r.optErr == nil {
			r.optErr = err
		}
	}
}

// WithMeta sets metadata every request starts from.
func WithMeta(m *meta.Meta) Option {
	return func(r *Route) {
		if m != nil {
			r.base = m.Copy()
		}
	}
}

// WithSender replaces the transport used to send requests.
func WithSender(s Sender) Option {
	return func(r *Route) {
		if s != nil {
			r.sender = s
		}
	}
}

// WithLogger sets the route logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Route) {
		if l != nil {
			r.log = l
		}
	}
}

// WithRequestIDHeader sends each request's id in the named header.
func WithRequestIDHeader(header string) Option {
	return func(r *Route) {
		r.requestIDHeader = http.CanonicalHeaderKey(header)
	}
}
