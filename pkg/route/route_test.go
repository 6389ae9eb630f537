package route_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/broutes/pkg/args"
	"github.com/okian/broutes/pkg/hook"
	"github.com/okian/broutes/pkg/meta"
	"github.com/okian/broutes/pkg/metrics"
	"github.com/okian/broutes/pkg/response"
	"github.com/okian/broutes/pkg/route"
	"github.com/okian/broutes/pkg/validate"
)

func message(ex *route.Exchange) string {
	var body struct {
		Message string `json:"message"`
	}
	So(ex.Response.JSON(&body), ShouldBeNil)
	return body.Message
}

func TestRouteMethods(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()
	ctx := context.Background()

	Convey("Given the verify route", t, func() {
		r := verifyRoute(srv.URL)

		Convey("GET without a key should be rejected by the server", func() {
			ex, err := r.Get(ctx)
			So(err, ShouldBeNil)
			So(ex.Response.StatusCode, ShouldEqual, http.StatusBadRequest)
			So(message(ex), ShouldEqual, "missing parameter key")
		})

		Convey("OPTIONS should list the allowed methods", func() {
			ex, err := r.Options(ctx)
			So(err, ShouldBeNil)
			So(ex.Response.StatusCode, ShouldEqual, http.StatusOK)
			So(ex.Response.Header.Get("Allow"), ShouldEqual, "OPTIONS, GET, HEAD, POST, PUT, PATCH")
		})

		Convey("HEAD should return headers only", func() {
			ex, err := r.Head(ctx)
			So(err, ShouldBeNil)
			So(ex.Response.Headers()["Content-Type"], ShouldEqual, "application/json")
		})

		Convey("POST, PUT and PATCH should accept data", func() {
			data := args.Map{"data": args.Map{"key": "value"}}

			ex, err := r.Post(ctx, data)
			So(err, ShouldBeNil)
			So(ex.Response.StatusCode, ShouldEqual, http.StatusCreated)
			So(message(ex), ShouldEqual, "post request processed")

			ex, err = r.Put(ctx, data)
			So(err, ShouldBeNil)
			So(message(ex), ShouldEqual, "put request processed")

			ex, err = r.Patch(ctx, data)
			So(err, ShouldBeNil)
			So(message(ex), ShouldEqual, "patch request processed")
		})

		Convey("DELETE should succeed", func() {
			ex, err := r.Delete(ctx)
			So(err, ShouldBeNil)
			So(message(ex), ShouldEqual, "delete request processed")
		})

		Convey("Scenarios should change the key", func() {
			valid, err := r.ForScenario("valid_key")
			So(err, ShouldBeNil)
			ex, err := valid.Get(ctx)
			So(err, ShouldBeNil)
			So(message(ex), ShouldEqual, "valid key")

			invalid, err := r.ForScenario("invalid_key")
			So(err, ShouldBeNil)
			ex, err = invalid.Request(ctx, "get")
			So(err, ShouldBeNil)
			So(message(ex), ShouldEqual, "bad key")
		})

		Convey("The last request and response should be recorded", func() {
			user, err := r.ForScenario("valid_user")
			So(err, ShouldBeNil)
			_, err = user.Get(ctx)
			So(err, ShouldBeNil)
			So(user.RequestArgs()["timeout"], ShouldEqual, 30)
			So(user.Response().StatusCode, ShouldEqual, http.StatusBadRequest)
			So(r.Response(), ShouldBeNil)
		})
	})
}

func TestParsedRequestArgs(t *testing.T) {
	ctx := context.Background()
	const base = "http://api.test"

	Convey("Given the pong route", t, func() {
		r := pongRoute(base)

		Convey("When parsing a GET", func() {
			got, err := r.ParsedRequestArgs(ctx, http.MethodGet)

			Convey("Then route and method layers should merge", func() {
				So(err, ShouldBeNil)
				So(cmp.Diff(args.Map{
					"url": base + "/pong",
					"params": args.Map{
						"username": "John Doe", "id": 3149232, "firstname": "John", "lastname": "Doe",
					},
				}, got), ShouldBeEmpty)
			})
		})

		Convey("When a scenario and kwargs are added", func() {
			pong, err := r.ForScenario("pong")
			So(err, ShouldBeNil)
			got, err := pong.ParsedRequestArgs(ctx, "get", args.Map{"params": args.Map{"firstname": "Jane", "DOB": "00000000"}})

			Convey("Then kwargs should win over the scenario and the scenario over the route", func() {
				So(err, ShouldBeNil)
				So(got["params"], ShouldResemble, args.Map{
					"username": "Jane Doe", "id": 3149232, "firstname": "Jane", "lastname": "Doe", "DOB": "00000000",
				})
				So(pong.String(), ShouldEqual, `Route(base_url="http://api.test", group="", scenario="pong", endpoint="/pong")`)
			})
		})

		Convey("When kwargs replace or remove params", func() {
			got, err := r.ParsedRequestArgs(ctx, http.MethodGet, args.Map{
				"params": args.Map{args.StrategyKey: args.Replace, "only": 1},
			})
			So(err, ShouldBeNil)
			So(got["params"], ShouldResemble, args.Map{"only": 1})

			got, err = r.ParsedRequestArgs(ctx, http.MethodGet, args.Map{
				"params": args.Map{args.StrategyKey: args.Remove},
			})
			So(err, ShouldBeNil)
			_, ok := got["params"]
			So(ok, ShouldBeFalse)
		})

		Convey("When the merge strategy is invalid", func() {
			_, err := r.ParsedRequestArgs(ctx, http.MethodGet, args.Map{
				"params": args.Map{args.StrategyKey: "append"},
			})
			So(errors.Is(err, args.ErrInvalidMergeStrategy), ShouldBeTrue)
		})

		Convey("When a scenario writes a POST-only key", func() {
			s, err := r.ForScenario("scenario_with_attribute_dictionary")
			So(err, ShouldBeNil)

			got, err := s.ParsedRequestArgs(ctx, http.MethodPost)
			So(err, ShouldBeNil)
			So(got["json"], ShouldResemble, args.Map{"user": args.Map{"data3": "value3"}})

			_, err = s.ParsedRequestArgs(ctx, http.MethodGet)

			Convey("Then GET should reject it", func() {
				var ae *route.ArgumentsError
				So(errors.As(err, &ae), ShouldBeTrue)
				So(errors.Is(err, route.ErrInvalidArguments), ShouldBeTrue)
				So(ae.Keys, ShouldResemble, []string{"json"})
				So(err.Error(), ShouldEqual, "request args contains invalid kwargs, invalid keys: [json], method: 'GET'")
			})
		})

		Convey("When DELETE gets params", func() {
			_, err := r.ParsedRequestArgs(ctx, http.MethodDelete)
			So(errors.Is(err, route.ErrInvalidArguments), ShouldBeTrue)
		})

		Convey("When the method is unknown", func() {
			_, err := r.ParsedRequestArgs(ctx, "TRACE")
			So(errors.Is(err, route.ErrInvalidMethod), ShouldBeTrue)
		})
	})

	Convey("Given URL templates", t, func() {
		r := route.MustNew("/users/{id}/{{raw}}", route.WithBaseURL(base))

		Convey("When placeholders are provided", func() {
			got, err := r.ParsedRequestArgs(ctx, http.MethodDelete, args.Map{"url_placeholders": args.Map{"id": 7}})
			So(err, ShouldBeNil)
			So(got, ShouldResemble, args.Map{"url": base + "/users/7/{raw}"})
		})

		Convey("When a placeholder is missing", func() {
			_, err := r.ParsedRequestArgs(ctx, http.MethodDelete)
			So(errors.Is(err, route.ErrPlaceholder), ShouldBeTrue)
		})

		Convey("When url is given explicitly", func() {
			got, err := r.ParsedRequestArgs(ctx, http.MethodDelete, args.Map{"url": "http://other/x"})
			So(err, ShouldBeNil)
			So(got["url"], ShouldEqual, "http://other/x")
		})
	})

	Convey("Given a route without an endpoint", t, func() {
		r := route.MustNew("")
		_, err := r.ParsedRequestArgs(ctx, http.MethodGet)
		So(errors.Is(err, route.ErrEndpointMissing), ShouldBeTrue)
	})
}

func TestScenarioGroups(t *testing.T) {
	ctx := context.Background()

	Convey("Given the grouped pong route", t, func() {
		r := groupPongRoute("http://api.test")

		Convey("When binding a group scenario", func() {
			s, err := r.ForScenario("with_leap_year_dob", "pong_scenario")
			So(err, ShouldBeNil)
			got, err := s.ParsedRequestArgs(ctx, http.MethodGet)

			Convey("Then the nested value should be merged in", func() {
				So(err, ShouldBeNil)
				So(got["params"], ShouldResemble, args.Map{
					"username": "John Doe", "id": 3149232, "firstname": "John", "lastname": "Doe",
					"userDetails": args.Map{"DOB": "29/02/1996"},
				})
				name, group := s.Scenario()
				So(name, ShouldEqual, "with_leap_year_dob")
				So(group, ShouldEqual, "pong_scenario")
				So(s.String(), ShouldContainSubstring, `group="pong_scenario"`)
			})
		})

		Convey("When the scenario or group is unknown", func() {
			_, err := r.ForScenario("missing", "pong_scenario")
			So(errors.Is(err, route.ErrScenarioNotFound), ShouldBeTrue)

			_, err = r.ForScenario("with_leap_year_dob", "missing")
			So(errors.Is(err, route.ErrScenarioGroupNotFound), ShouldBeTrue)

			_, err = r.ForScenario("with_leap_year_dob")
			So(errors.Is(err, route.ErrScenarioNotFound), ShouldBeTrue)
		})

		Convey("When the route has no groups", func() {
			_, err := pongRoute("http://api.test").ForScenario("pong", "pong_scenario")
			So(errors.Is(err, route.ErrNoScenarioGroups), ShouldBeTrue)
		})

		Convey("Then the listing helpers should describe it", func() {
			So(r.Groups(), ShouldResemble, map[string][]string{"pong_scenario": {"with_leap_year_dob"}})
			So(r.Methods(), ShouldResemble, []string{"GET"})
			So(r.ScenarioNames(), ShouldBeEmpty)
		})
	})
}

func TestHooks(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()
	ctx := context.Background()

	Convey("Given a route whose layers register hooks", t, func() {
		var order []string
		mark := func(s string) hook.AfterFunc {
			return func(context.Context) error {
				order = append(order, s)
				return nil
			}
		}
		var responses int32

		r := route.MustNew("/pong",
			route.WithBaseURL(srv.URL),
			route.WithHook(hook.EventResponse, hook.ResponseFunc(func(context.Context, *response.Response) error {
				atomic.AddInt32(&responses, 1)
				return nil
			})),
			route.WithArgs(func(c *route.Call, _ *args.Args) error {
				So(c.Scope(), ShouldEqual, hook.ScopeRoute)
				return c.SetAfterHooks(hook.ScopeRoute, mark("route"))
			}),
			route.WithMethodArgs(http.MethodGet, func(c *route.Call, _ *args.Args) error {
				if err := c.Hooks().Add(hook.EventRequest, hook.RequestFunc(
					func(_ context.Context, _, _ string, m *meta.Meta) error {
						m.Params = args.Map{"method_hook": "method_hook_value"}
						return nil
					})); err != nil {
					return err
				}
				return c.SetAfterHooks(hook.ScopeMethod, mark("method"))
			}),
			route.WithScenario("valid_user", func(c *route.Call, a *args.Args) error {
				a.Set("timeout", 30)
				return c.SetAfterHooks(hook.ScopeScenario, mark("scenario"))
			}),
		)

		Convey("When invoking the scenario", func() {
			s, err := r.ForScenario("valid_user")
			So(err, ShouldBeNil)
			ex, err := s.Get(ctx)
			So(err, ShouldBeNil)

			Convey("Then after hooks run once each in scope order", func() {
				So(order, ShouldResemble, []string{"route", "method", "scenario"})
				So(atomic.LoadInt32(&responses), ShouldEqual, 1)
			})

			Convey("And the request hook should have changed the params", func() {
				v, err := ex.Response.JSONValue()
				So(err, ShouldBeNil)
				So(v.(map[string]any)["params"], ShouldResemble, map[string]any{"method_hook": "method_hook_value"})
			})

			Convey("And a second call should not accumulate hooks", func() {
				_, err := s.Get(ctx)
				So(err, ShouldBeNil)
				So(order, ShouldHaveLength, 6)
			})
		})

		Convey("When a layer sets an invalid scope", func() {
			bad := route.MustNew("/pong", route.WithBaseURL(srv.URL),
				route.WithArgs(func(c *route.Call, _ *args.Args) error {
					return c.SetAfterHooks("global", mark("x"))
				}))
			_, err := bad.Get(ctx)
			So(errors.Is(err, hook.ErrInvalidScope), ShouldBeTrue)
			So(errors.Is(err, route.ErrLayer), ShouldBeTrue)
		})

		Convey("When an after hook fails", func() {
			boom := errors.New("boom")
			bad := route.MustNew("/pong", route.WithBaseURL(srv.URL),
				route.WithArgs(func(c *route.Call, _ *args.Args) error {
					return c.SetAfterHooks(hook.ScopeRoute, func(context.Context) error { return boom })
				}))
			_, err := bad.Get(ctx)
			So(errors.Is(err, boom), ShouldBeTrue)
			So(errors.Is(err, route.ErrHook), ShouldBeTrue)
		})
	})

	Convey("Given an invalid hook option", t, func() {
		_, err := route.New("/pong", route.WithHook("before", func() {}))
		So(errors.Is(err, hook.ErrInvalidEvent), ShouldBeTrue)
		So(func() { route.MustNew("/pong", route.WithHook("before", nil)) }, ShouldPanic)
	})
}

func TestValidation(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()
	ctx := context.Background()

	Convey("Given a route with expectations", t, func() {
		r := verifyRoute(srv.URL,
			route.WithExpectStatus(http.StatusOK),
			route.WithExpectation(validate.Header{Expected: map[string]string{"Content-Type": "application/json"}}),
		)

		Convey("When the response meets them", func() {
			valid, _ := r.ForScenario("valid_key")
			_, err := valid.Get(ctx)
			So(err, ShouldBeNil)
		})

		Convey("When the status differs", func() {
			ex, err := r.Get(ctx)

			Convey("Then the exchange and a validation error should come back", func() {
				So(ex, ShouldNotBeNil)
				So(ex.Response.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(route.IsExpectationFailure(err), ShouldBeTrue)
				So(errors.Is(err, validate.ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "expected status 200, got 400")
			})
		})

		Convey("When expectations are disabled", func() {
			r.Expectations().Disable()
			defer r.Expectations().Enable()
			_, err := r.Get(ctx)
			So(err, ShouldBeNil)
		})
	})

	Convey("Given named validators", t, func() {
		var got []any
		r := pongRoute(srv.URL,
			route.WithValidator(route.DefaultValidator, func(_ context.Context, _ *route.Route, params ...any) error {
				got = params
				return nil
			}),
			route.WithValidator("pong_validator", func(context.Context, *route.Route, ...any) error {
				return errors.New("pong failed")
			}),
		)

		So(r.Validate(ctx, "", 1, "two"), ShouldBeNil)
		So(got, ShouldResemble, []any{1, "two"})
		So(r.Validate(ctx, "pong_validator"), ShouldNotBeNil)
		So(errors.Is(r.Validate(ctx, "missing"), route.ErrValidatorNotFound), ShouldBeTrue)
	})
}

func TestRequestID(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()

	Convey("Given a route that forwards request ids", t, func() {
		r := pongRoute(srv.URL, route.WithRequestIDHeader("x-request-id"))
		ex, err := r.Get(context.Background())
		So(err, ShouldBeNil)

		v, err := ex.Response.JSONValue()
		So(err, ShouldBeNil)
		So(v.(map[string]any)["request_id"], ShouldEqual, ex.RequestID)
		So(ex.RequestID, ShouldNotBeEmpty)
	})
}

func TestAsyncAndAll(t *testing.T) {
	srv := newMockServer()
	defer srv.Close()
	ctx := context.Background()

	Convey("Given the verify route", t, func() {
		r := verifyRoute(srv.URL)

		Convey("When invoked asynchronously", func() {
			p := r.Async(ctx, http.MethodPost, args.Map{"json": args.Map{"key": "value"}})
			ex, err := p.Wait(ctx)
			So(err, ShouldBeNil)
			So(ex.Response.StatusCode, ShouldEqual, http.StatusCreated)
			<-p.Done()
		})

		Convey("When the wait context ends first", func() {
			slow := route.MustNew("/slow", route.WithSender(senderFunc(func(ctx context.Context, _ *meta.Prepared) (*response.Response, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})), route.WithBaseURL(srv.URL))
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			p := slow.Async(runCtx, http.MethodGet)

			waitCtx, cancelWait := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancelWait()
			_, err := p.Wait(waitCtx)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})

		Convey("When fanning out", func() {
			valid, _ := r.ForScenario("valid_key")
			exs, err := route.All(ctx, 2,
				route.Invocation{Route: valid, Method: http.MethodGet},
				route.Invocation{Route: r, Method: http.MethodDelete},
				route.Invocation{Route: r, Method: http.MethodPost, Args: []args.Map{{"data": args.Map{"k": "v"}}}},
			)

			Convey("Then results should keep input order", func() {
				So(err, ShouldBeNil)
				So(exs, ShouldHaveLength, 3)
				So(message(exs[0]), ShouldEqual, "valid key")
				So(message(exs[1]), ShouldEqual, "delete request processed")
				So(exs[2].Response.StatusCode, ShouldEqual, http.StatusCreated)
			})
		})

		Convey("When one invocation fails", func() {
			_, err := route.All(ctx, 0,
				route.Invocation{Route: r, Method: http.MethodGet},
				route.Invocation{Route: r, Method: http.MethodDelete, Args: []args.Map{{"params": args.Map{"x": 1}}}},
			)
			So(errors.Is(err, route.ErrInvalidArguments), ShouldBeTrue)
		})
	})
}

type senderFunc func(ctx context.Context, p *meta.Prepared) (*response.Response, error)

func (f senderFunc) Send(ctx context.Context, p *meta.Prepared) (*response.Response, error) {
	return f(ctx, p)
}

// newHangingServer sends headers, then holds the body open until the client
// drops the connection. released receives once per dropped request.
func newHangingServer() (srv *httptest.Server, released chan struct{}) {
	released = make(chan struct{}, 4)
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("first chunk"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
			released <- struct{}{}
		case <-time.After(5 * time.Second):
		}
	}))
	return srv, released
}

func TestInvokeReleasesStreamsOnHookFailure(t *testing.T) {
	srv, released := newHangingServer()
	defer srv.Close()
	ctx := context.Background()
	stream := route.Static(args.Map{"stream": true})

	Convey("Given a streamed route whose hooks fail after the response", t, func() {
		Convey("When a response hook fails", func() {
			r := route.MustNew("/hang",
				route.WithBaseURL(srv.URL),
				route.WithArgs(stream),
				route.WithHook(hook.EventResponse, hook.ResponseFunc(func(context.Context, *response.Response) error {
					return errors.New("reject body")
				})),
			)
			ex, err := r.Get(ctx)

			Convey("Then the open body should be released", func() {
				So(errors.Is(err, route.ErrHook), ShouldBeTrue)
				So(ex, ShouldBeNil)
				select {
				case <-released:
				case <-time.After(2 * time.Second):
					So("connection still open", ShouldBeEmpty)
				}
			})
		})

		Convey("When an after hook fails", func() {
			r := route.MustNew("/hang",
				route.WithBaseURL(srv.URL),
				route.WithArgs(func(c *route.Call, a *args.Args) error {
					a.Set("stream", true)
					return c.SetAfterHooks(hook.ScopeRoute, func(context.Context) error {
						return errors.New("after failed")
					})
				}),
			)
			_, err := r.Get(ctx)

			Convey("Then the open body should be released", func() {
				So(errors.Is(err, route.ErrHook), ShouldBeTrue)
				select {
				case <-released:
				case <-time.After(2 * time.Second):
					So("connection still open", ShouldBeEmpty)
				}
			})
		})
	})
}

func TestInvalidMethodMetricLabel(t *testing.T) {
	Convey("Given a fresh metrics registry", t, func() {
		reg := prometheus.NewRegistry()
		prev := metrics.SetGlobal(metrics.NewManager(metrics.WithPrometheusRegistry(reg)))
		defer metrics.SetGlobal(prev)

		r := route.MustNew("/verify", route.WithName("verify"), route.WithBaseURL("http://127.0.0.1:1"))

		Convey("When invoking with arbitrary method names", func() {
			_, err1 := r.Invoke(context.Background(), "FETCH")
			_, err2 := r.Invoke(context.Background(), "x-custom-verb")

			Convey("Then both should share one fixed label value", func() {
				So(errors.Is(err1, route.ErrInvalidMethod), ShouldBeTrue)
				So(errors.Is(err2, route.ErrInvalidMethod), ShouldBeTrue)

				const want = `
# HELP broutes_client_route_request_errors_total Route requests that failed before a response was received
# TYPE broutes_client_route_request_errors_total counter
broutes_client_route_request_errors_total{error_type="arguments",method="invalid",route="verify"} 2
`
				So(testutil.GatherAndCompare(reg, strings.NewReader(want), "broutes_client_route_request_errors_total"), ShouldBeNil)
			})
		})
	})
}
