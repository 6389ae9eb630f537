package catalog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/broutes/internal/catalog"
	"github.com/okian/broutes/pkg/args"
	"github.com/okian/broutes/pkg/logger"
	"github.com/okian/broutes/pkg/route"
)

const yamlCatalog = `
base_url: http://localhost:8080
request_id_header: X-Request-Id
routes:
  pong:
    endpoint: /pong
    args:
      params: {id: 3149232, username: John Doe}
    methods:
      get: {}
      post:
        json: {user: Jane}
    scenarios:
      jane:
        params: {username: Jane Doe}
    groups:
      birthdays:
        leap_year:
          params:
            userDetails: {DOB: 29/02/1996}
    expect:
      status: 200
      headers: {Content-Type: application/json}
  user:
    endpoint: /users/{id}
    base_url: http://users.local
plans:
  smoke:
    description: ping twice then check a birthday
    steps:
      - {id: ping, route: pong, scenario: jane, repeat: 2}
      - {route: pong, method: post}
      - {route: pong, group: birthdays, scenario: leap_year, args: {params: {page: 1}}}
`

const tomlCatalog = `
base_url = "http://localhost:8080"

[routes.pong]
endpoint = "/pong"

[routes.pong.args.params]
id = 3149232

[routes.pong.scenarios.jane.params]
username = "Jane Doe"

[routes.pong.expect]
status = 200

[[plans.smoke.steps]]
route = "pong"
scenario = "jane"
repeat = 3
`

func TestParse(t *testing.T) {
	Convey("Given a YAML catalog", t, func() {
		c, err := catalog.Parse([]byte(yamlCatalog), catalog.FormatYAML)
		So(err, ShouldBeNil)

		Convey("Then routes and plans should be listed in order", func() {
			So(c.RouteNames(), ShouldResemble, []string{"pong", "user"})
			So(c.PlanNames(), ShouldResemble, []string{"smoke"})
			So(c.Routes["pong"].Expect.Headers["Content-Type"], ShouldEqual, "application/json")
		})

		Convey("When the plan is expanded", func() {
			jobs, err := c.Plan("smoke")
			So(err, ShouldBeNil)

			Convey("Then repeats should become separate jobs in order", func() {
				So(len(jobs), ShouldEqual, 4)
				So(jobs[0].ID, ShouldEqual, "smoke/ping/0")
				So(jobs[1].ID, ShouldEqual, "smoke/ping/1")
				So(jobs[2].ID, ShouldEqual, "smoke/step-1/0")
				So(jobs[2].Method, ShouldEqual, http.MethodPost)
				So(jobs[0].Method, ShouldEqual, http.MethodGet)
				So(jobs[3].Group, ShouldEqual, "birthdays")
				So(jobs[3].Args, ShouldResemble, args.Map{"params": args.Map{"page": 1}})
				for i, j := range jobs {
					So(j.Seq, ShouldEqual, i)
					So(j.Plan, ShouldEqual, "smoke")
				}
			})
		})

		Convey("When an unknown plan is expanded", func() {
			_, err := c.Plan("missing")
			So(errors.Is(err, catalog.ErrPlanNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a TOML catalog", t, func() {
		c, err := catalog.Parse([]byte(tomlCatalog), catalog.FormatTOML)
		So(err, ShouldBeNil)

		Convey("Then it should decode the same structure", func() {
			So(c.BaseURL, ShouldEqual, "http://localhost:8080")
			So(c.Routes["pong"].Endpoint, ShouldEqual, "/pong")
			So(c.Routes["pong"].Expect.Status, ShouldEqual, 200)

			jobs, err := c.Plan("smoke")
			So(err, ShouldBeNil)
			So(len(jobs), ShouldEqual, 3)
		})
	})

	Convey("Given invalid catalogs", t, func() {
		cases := map[string]string{
			"missing endpoint": "routes: {pong: {args: {}}}",
			"bad method":       "routes: {pong: {endpoint: /pong, methods: {fetch: {}}}}",
			"bad status":       "routes: {pong: {endpoint: /pong, expect: {status: 42}}}",
			"unknown route":    "routes: {pong: {endpoint: /pong}}\nplans: {p: {steps: [{route: ping}]}}",
			"unknown scenario": "routes: {pong: {endpoint: /pong}}\nplans: {p: {steps: [{route: pong, scenario: x}]}}",
			"unknown group":    "routes: {pong: {endpoint: /pong}}\nplans: {p: {steps: [{route: pong, group: g, scenario: x}]}}",
			"negative repeat":  "routes: {pong: {endpoint: /pong}}\nplans: {p: {steps: [{route: pong, repeat: -1}]}}",
			"empty plan":       "routes: {pong: {endpoint: /pong}}\nplans: {p: {steps: []}}",
			"unknown field":    "routes: {pong: {endpoint: /pong, verb: GET}}",
			"broken yaml":      "routes: [",
		}
		for name, data := range cases {
			_, err := catalog.Parse([]byte(data), catalog.FormatYAML)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)
			_ = name
		}

		_, err := catalog.Parse([]byte("[routes.pong]\nendpoint = \"/p\"\nverb = \"GET\"\n"), catalog.FormatTOML)
		So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)

		_, err = catalog.Parse(nil, "json")
		So(errors.Is(err, catalog.ErrUnsupportedFormat), ShouldBeTrue)
	})
}

func TestLoad(t *testing.T) {
	Convey("Given catalog files on disk", t, func() {
		ctx := context.Background()
		dir := t.TempDir()

		yml := filepath.Join(dir, "routes.yml")
		So(os.WriteFile(yml, []byte(yamlCatalog), 0o600), ShouldBeNil)
		tml := filepath.Join(dir, "routes.toml")
		So(os.WriteFile(tml, []byte(tomlCatalog), 0o600), ShouldBeNil)

		Convey("When loading by extension", func() {
			c, err := catalog.Load(ctx, yml)
			So(err, ShouldBeNil)
			So(c.Source(), ShouldEqual, yml)

			c, err = catalog.Load(ctx, tml)
			So(err, ShouldBeNil)
			So(c.Source(), ShouldEqual, tml)
		})

		Convey("When the extension is unknown", func() {
			_, err := catalog.Load(ctx, filepath.Join(dir, "routes.json"))
			So(errors.Is(err, catalog.ErrUnsupportedFormat), ShouldBeTrue)
		})

		Convey("When the file is missing", func() {
			_, err := catalog.Load(ctx, filepath.Join(dir, "missing.yaml"))
			So(errors.Is(err, catalog.ErrInvalidCatalog), ShouldBeTrue)
		})
	})
}

func TestBuildRoutes(t *testing.T) {
	Convey("Given a parsed catalog", t, func() {
		ctx := context.Background()
		c, err := catalog.Parse([]byte(yamlCatalog), catalog.FormatYAML)
		So(err, ShouldBeNil)

		routes, err := c.BuildRoutes(route.WithLogger(logger.Discard()))
		So(err, ShouldBeNil)
		So(len(routes), ShouldEqual, 2)

		Convey("Then route layers should merge as declared", func() {
			r, err := routes["pong"].ForScenario("jane")
			So(err, ShouldBeNil)

			got, err := r.ParsedRequestArgs(ctx, http.MethodGet)
			So(err, ShouldBeNil)
			So(cmp.Diff(args.Map{
				"url":    "http://localhost:8080/pong",
				"params": args.Map{"id": 3149232, "username": "Jane Doe"},
			}, got), ShouldBeEmpty)
		})

		Convey("Then a route base URL should win over the catalog's", func() {
			got, err := routes["user"].ParsedRequestArgs(ctx, http.MethodGet,
				args.Map{"url_placeholders": args.Map{"id": 7}})
			So(err, ShouldBeNil)
			So(got["url"], ShouldEqual, "http://users.local/users/7")
		})

		Convey("Then group scenarios should resolve", func() {
			r, err := routes["pong"].ForScenario("leap_year", "birthdays")
			So(err, ShouldBeNil)
			So(r.Groups(), ShouldResemble, map[string][]string{"birthdays": {"leap_year"}})
		})

		Convey("When an unknown route is built", func() {
			_, err := c.BuildRoute("missing")
			So(errors.Is(err, catalog.ErrRouteNotFound), ShouldBeTrue)
		})

		Convey("When invoking against a server", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				if r.Header.Get("X-Request-Id") == "" {
					w.WriteHeader(http.StatusBadRequest)
				}
				_, _ = w.Write([]byte(`{"username":"` + r.URL.Query().Get("username") + `"}`))
			}))
			defer srv.Close()

			r, err := c.BuildRoute("pong", route.WithBaseURL(srv.URL), route.WithLogger(logger.Discard()))
			So(err, ShouldBeNil)
			r, err = r.ForScenario("jane")
			So(err, ShouldBeNil)

			ex, err := r.Get(ctx)

			Convey("Then expectations and the request id header should apply", func() {
				So(err, ShouldBeNil)
				So(ex.Response.StatusCode, ShouldEqual, http.StatusOK)
				So(ex.Response.Text(), ShouldContainSubstring, "Jane Doe")
			})
		})
	})
}
