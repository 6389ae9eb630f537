package route

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/broutes/pkg/args"
	"github.com/okian/broutes/pkg/logger"
	"github.com/okian/broutes/pkg/meta"
	"github.com/okian/broutes/pkg/metrics"
	"github.com/okian/broutes/pkg/response"
	"github.com/okian/broutes/pkg/validate"
)

const tracerName = "github.com/okian/broutes/pkg/route"

// Error kinds recorded in route error metrics.
const (
	errKindArgs        = "arguments"
	errKindMeta        = "meta"
	errKindHook        = "hook"
	errKindTransport   = "transport"
	errKindExpectation = "expectation"

	invalidMethodLabel = "invalid"
)

// Exchange is one completed invocation.
type Exchange struct {
	RequestID   string
	Route       string
	Scenario    string
	Group       string
	Method      string
	RequestArgs args.Map
	Response    *response.Response
	Duration    time.Duration
}

// Invoke builds and sends a request for method. When the response fails the
// route's expectations, the Exchange is returned together with an error
// matching both ErrExpectationFailed and validate.ErrValidation.
func (r *Route) Invoke(ctx context.Context, method string, kwargs ...args.Map) (*Exchange, error) {
	start := time.Now()
	ex := &Exchange{
		RequestID: uuid.NewString(),
		Route:     r.name,
		Scenario:  r.scenarioName,
		Group:     r.groupName,
		Method:    method,
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "route "+r.name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("route.name", r.name),
			attribute.String("route.scenario", r.scenarioName),
			attribute.String("request.id", ex.RequestID),
		),
	)
	defer span.End()

	metrics.AddRequestsInFlight(1)
	defer metrics.AddRequestsInFlight(-1)

	// Unvalidated input never becomes a metric label.
	methodLabel := strings.ToUpper(method)
	if !meta.ValidMethod(methodLabel) {
		methodLabel = invalidMethodLabel
	}

	fail := func(kind string, err error) (*Exchange, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		metrics.RecordRouteError(r.name, methodLabel, kind)
		r.log.Error(ctx, "route invocation failed",
			logger.String("method", ex.Method),
			logger.String("kind", kind),
			logger.String("request_id", ex.RequestID),
			logger.Error(err),
		)
		return nil, err
	}

	reqArgs, call, err := r.parse(ctx, method, kwargs)
	if err != nil {
		return fail(errKindArgs, err)
	}
	ex.Method = call.Method
	ex.RequestArgs = reqArgs
	span.SetAttributes(attribute.String("http.request.method", call.Method))

	m, err := meta.FromMap(reqArgs)
	if err != nil {
		return fail(errKindMeta, err)
	}
	if r.base != nil {
		if m, err = r.base.Add(m); err != nil {
			return fail(errKindMeta, err)
		}
	}
	if r.requestIDHeader != "" {
		if m.Headers == nil {
			m.Headers = args.Map{}
		}
		m.Headers[r.requestIDHeader] = ex.RequestID
	}

	hooks := r.hooks.Merge(call.hooks)
	if err := hooks.ApplyRequest(ctx, call.Method, m.URL, m); err != nil {
		return fail(errKindHook, fmt.Errorf("%w: request: %w", ErrHook, err))
	}

	prepared, err := m.Prepare(call.Method)
	if err != nil {
		return fail(errKindMeta, err)
	}

	resp, err := r.sender.Send(ctx, prepared)
	if err != nil {
		return fail(errKindTransport, err)
	}
	ex.Response = resp
	ex.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if err := hooks.ApplyResponse(ctx, resp); err != nil {
		_ = resp.Close()
		return fail(errKindHook, fmt.Errorf("%w: response: %w", ErrHook, err))
	}
	if err := call.after.Run(ctx); err != nil {
		_ = resp.Close()
		return fail(errKindHook, fmt.Errorf("%w: after: %w", ErrHook, err))
	}

	expectErr := r.expect.Apply(resp)
	r.record(reqArgs, resp)

	status := strconv.Itoa(resp.StatusCode)
	metrics.RecordRouteRequest(r.name, call.Method, status)
	metrics.RecordRouteRequestDuration(r.name, call.Method, float64(ex.Duration.Milliseconds()))

	fields := []logger.Field{
		logger.String("method", call.Method),
		logger.String("url", prepared.URL),
		logger.Int("status", resp.StatusCode),
		logger.Duration("duration", ex.Duration),
		logger.String("request_id", ex.RequestID),
	}
	if expectErr != nil {
		for _, f := range validate.Failures(expectErr) {
			metrics.RecordValidationFailure(r.name, f.Kind)
		}
		metrics.RecordRouteError(r.name, call.Method, errKindExpectation)
		span.SetStatus(codes.Error, errKindExpectation)
		r.log.Warn(ctx, "response did not meet expectations", append(fields, logger.Error(expectErr))...)
		return ex, fmt.Errorf("%w: %w", ErrExpectationFailed, expectErr)
	}
	r.log.Info(ctx, "route invoked", fields...)
	return ex, nil
}

// Request is Invoke under the name used by the method helpers.
func (r *Route) Request(ctx context.Context, method string, kwargs ...args.Map) (*Exchange, error) {
	return r.Invoke(ctx, method, kwargs...)
}

// Get invokes the route with GET.
func (r *Route) Get(ctx context.Context, kwargs ...args.Map) (*Exchange, error) {
	return r.Invoke(ctx, http.MethodGet, kwargs...)
}

// Post invokes the route with POST.
func (r *Route) Post(ctx context.Context, kwargs ...args.Map) (*Exchange, error) {
	return r.Invoke(ctx, http.MethodPost, kwargs...)
}

// Put invokes the route with PUT.
func (r *Route) Put(ctx context.Context, kwargs ...args.Map) (*Exchange, error) {
	return r.Invoke(ctx, http.MethodPut, kwargs...)
}

// Patch invokes the route with PATCH.
func (r *Route) Patch(ctx context.Context, kwargs ...args.Map) (*Exchange, error) {
	return r.Invoke(ctx, http.MethodPatch, kwargs...)
}

// Delete invokes the route with DELETE.
func (r *Route) Delete(ctx context.Context, kwargs ...args.Map) (*Exchange, error) {
	return r.Invoke(ctx, http.MethodDelete, kwargs...)
}

// Head invokes the route with HEAD.
func (r *Route) Head(ctx context.Context, kwargs ...args.Map) (*Exchange, error) {
	return r.Invoke(ctx, http.MethodHead, kwargs...)
}

// Options invokes the route with OPTIONS.
func (r *Route) Options(ctx context.Context, kwargs ...args.Map) (*Exchange, error) {
	return r.Invoke(ctx, http.MethodOptions, kwargs...)
}

// IsExpectationFailure reports whether err only reports unmet expectations,
// meaning a response was received.
func IsExpectationFailure(err error) bool {
	return errors.Is(err, ErrExpectationFailed)
}
