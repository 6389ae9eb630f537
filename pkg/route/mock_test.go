package route_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	"github.com/okian/broutes/pkg/args"
	"github.com/okian/broutes/pkg/route"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newMockServer serves /verify and /pong the way the sample routes expect.
func newMockServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			key := r.URL.Query().Get("key")
			switch {
			case key == "":
				writeJSON(w, http.StatusBadRequest, map[string]string{"message": "missing parameter key"})
			case isInt(key):
				writeJSON(w, http.StatusOK, map[string]string{"message": "valid key"})
			default:
				writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad key"})
			}
		case http.MethodOptions:
			w.Header().Set("Allow", "OPTIONS, GET, HEAD, POST, PUT, PATCH")
			w.WriteHeader(http.StatusOK)
		case http.MethodHead:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
		case http.MethodPost:
			writeJSON(w, http.StatusCreated, map[string]string{"message": "post request processed"})
		case http.MethodPut, http.MethodPatch, http.MethodDelete:
			writeJSON(w, http.StatusOK, map[string]string{"message": strings.ToLower(r.Method) + " request processed"})
		default:
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
		}
	})
	mux.HandleFunc("/pong", func(w http.ResponseWriter, r *http.Request) {
		params := map[string]string{}
		for k, v := range r.URL.Query() {
			params[k] = v[0]
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"method":     r.Method,
			"params":     params,
			"request_id": r.Header.Get("X-Request-Id"),
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "url not found"})
	})
	return httptest.NewServer(mux)
}

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}


func verifyRoute(base string, opts ...route.Option) *route.Route {
	return route.MustNew("/verify", append([]route.Option{
		route.WithBaseURL(base),
		route.WithArgs(route.Static(args.Map{
			"timeout":         10,
			"allow_redirects": false,
			"verify":          false,
			"stream":          false,
			"cert":            "",
		})),
		route.WithMethodArgs(http.MethodGet, route.Static(args.Map{
			"params":          args.Map{},
			"headers":         args.Map{},
			"cookies":         args.Map{},
			"auth":            args.Map{},
			"allow_redirects": false,
			"proxies":         args.Map{},
			"verify":          false,
			"stream":          false,
			"cert":            "",
		})),
		route.WithScenario("invalid_key", route.Static(args.Map{"params": args.Map{"key": "invalid"}})),
		route.WithScenario("valid_key", route.Static(args.Map{"params": args.Map{"key": 3149232}})),
		route.WithScenario("valid_user", route.Static(args.Map{"timeout": 30})),
	}, opts...)...)
}

func pongRoute(base string, opts ...route.Option) *route.Route {
	return route.MustNew("/pong", append([]route.Option{
		route.WithBaseURL(base),
		route.WithArgs(route.Static(args.Map{"params": args.Map{"username": "John Doe", "id": 3149232}})),
		route.WithMethodArgs(http.MethodGet, route.Static(args.Map{"params": args.Map{"firstname": "John", "lastname": "Doe"}})),
		route.WithMethodArgs(http.MethodPost, route.Static(args.Map{})),
		route.WithScenario("pong", route.Static(args.Map{"params": args.Map{"username": "Jane Doe"}})),
		route.WithScenario("scenario_with_attribute_dictionary", func(_ *route.Call, a *args.Args) error {
			a.Child("json").Set("user", args.Map{"data3": "value3"})
			return nil
		}),
	}, opts...)...)
}

func groupPongRoute(base string) *route.Route {
	return route.MustNew("/pong",
		route.WithBaseURL(base),
		route.WithArgs(func(_ *route.Call, a *args.Args) error {
			a.Set("params", args.Map{"username": "John Doe", "id": 3149232})
			return nil
		}),
		route.WithMethodArgs(http.MethodGet, func(_ *route.Call, a *args.Args) error {
			a.Set("params", args.Map{"firstname": "John", "lastname": "Doe"})
			return nil
		}),
		route.WithScenarioGroup("pong_scenario", route.Scenarios{
			"with_leap_year_dob": func(_ *route.Call, a *args.Args) error {
				a.Child("params").Set("userDetails", args.Map{"DOB": "29/02/1996"})
				return nil
			},
		}),
	)
}
