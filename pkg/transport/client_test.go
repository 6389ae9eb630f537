package transport_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/broutes/pkg/meta"
	"github.com/okian/broutes/pkg/transport"
)

func newServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-User-Agent", r.UserAgent())
		w.Header().Set("X-Query", r.URL.RawQuery)
		_, _ = io.Copy(w, r.Body)
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/echo", http.StatusFound)
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/delay", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(300 * time.Millisecond):
		}
		_, _ = io.WriteString(w, "late")
	})
	mux.HandleFunc("/drip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"part":`)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
			return
		case <-time.After(300 * time.Millisecond):
		}
		_, _ = io.WriteString(w, `"two"}`)
	})
	return httptest.NewServer(mux)
}

func prepare(m *meta.Meta, method string) *meta.Prepared {
	p, err := m.Prepare(method)
	So(err, ShouldBeNil)
	return p
}

func TestSend(t *testing.T) {
	srv := newServer()
	defer srv.Close()
	ctx := context.Background()

	Convey("Given a default client", t, func() {
		c := transport.New(transport.WithUserAgent("broutes-test"))
		defer c.Close()

		Convey("When sending a POST with a body", func() {
			p := prepare(&meta.Meta{URL: srv.URL + "/echo", Params: map[string]any{"id": 1}, Content: "hello"}, http.MethodPost)
			resp, err := c.Send(ctx, p)

			Convey("Then the body, query and user agent should round-trip", func() {
				So(err, ShouldBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(resp.Text(), ShouldEqual, "hello")
				So(resp.Header.Get("X-Query"), ShouldEqual, "id=1")
				So(resp.Header.Get("X-User-Agent"), ShouldEqual, "broutes-test")
				So(resp.Elapsed, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When redirects are disabled", func() {
			follow := false
			p := prepare(&meta.Meta{URL: srv.URL + "/redirect", FollowRedirects: &follow}, http.MethodGet)
			resp, err := c.Send(ctx, p)

			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusFound)
		})

		Convey("When redirects are followed", func() {
			resp, err := c.Send(ctx, prepare(&meta.Meta{URL: srv.URL + "/redirect"}, http.MethodGet))
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("When the request times out", func() {
			p := prepare(&meta.Meta{URL: srv.URL + "/slow", Timeout: 0.05}, http.MethodGet)
			_, err := c.Send(ctx, p)
			So(errors.Is(err, transport.ErrSend), ShouldBeTrue)
		})

		Convey("When streaming", func() {
			stream := true
			p := prepare(&meta.Meta{URL: srv.URL + "/echo", Content: "chunk", Stream: &stream}, http.MethodPut)
			resp, err := c.Send(ctx, p)
			So(err, ShouldBeNil)
			b, err := io.ReadAll(resp.Stream())
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, "chunk")
			So(resp.Close(), ShouldBeNil)
		})

		Convey("When verify is disabled per request", func() {
			tlsSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
			defer tlsSrv.Close()

			_, err := c.Send(ctx, prepare(&meta.Meta{URL: tlsSrv.URL}, http.MethodGet))
			So(err, ShouldNotBeNil)

			resp, err := c.Send(ctx, prepare(&meta.Meta{URL: tlsSrv.URL, Verify: false}, http.MethodGet))
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusNoContent)
		})

		Convey("When the CA bundle is missing", func() {
			_, err := c.Send(ctx, prepare(&meta.Meta{URL: srv.URL, Verify: "/nonexistent/ca.pem"}, http.MethodGet))
			So(errors.Is(err, transport.ErrTLSConfig), ShouldBeTrue)
		})
	})

	Convey("Given a client whose default timeout is shorter than the server", t, func() {
		c := transport.New(transport.WithTimeout(100 * time.Millisecond))
		defer c.Close()

		Convey("When the request sets a longer timeout", func() {
			resp, err := c.Send(ctx, prepare(&meta.Meta{URL: srv.URL + "/delay", Timeout: 2}, http.MethodGet))

			Convey("Then the request timeout should win", func() {
				So(err, ShouldBeNil)
				So(resp.Text(), ShouldEqual, "late")
			})
		})

		Convey("When the request sets no timeout", func() {
			_, err := c.Send(ctx, prepare(&meta.Meta{URL: srv.URL + "/delay"}, http.MethodGet))
			So(errors.Is(err, transport.ErrSend), ShouldBeTrue)
		})

		Convey("When a streamed body outlasts the default timeout", func() {
			stream := true
			p := prepare(&meta.Meta{URL: srv.URL + "/drip", Stream: &stream}, http.MethodGet)

			Convey("Then reading the stream should still complete", func() {
				resp, err := c.Send(ctx, p)
				So(err, ShouldBeNil)
				b, err := io.ReadAll(resp.Stream())
				So(err, ShouldBeNil)
				So(string(b), ShouldEqual, `{"part":"two"}`)
				So(resp.Close(), ShouldBeNil)
			})

			Convey("Then the body should be read lazily by Content", func() {
				resp, err := c.Send(ctx, p)
				So(err, ShouldBeNil)
				So(resp.Stream(), ShouldNotBeNil)

				var body struct {
					Part string `json:"part"`
				}
				So(resp.JSON(&body), ShouldBeNil)
				So(body.Part, ShouldEqual, "two")
				So(resp.Stream(), ShouldBeNil)
				So(resp.Text(), ShouldEqual, `{"part":"two"}`)
			})
		})
	})

	Convey("Given a client with a circuit breaker", t, func() {
		c := transport.New(transport.WithName("failing"), transport.WithCircuitBreaker(2, time.Minute))
		p := prepare(&meta.Meta{URL: srv.URL + "/fail"}, http.MethodGet)

		Convey("When the server keeps failing", func() {
			for range 2 {
				resp, err := c.Send(ctx, p)
				So(err, ShouldBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
			}
			_, err := c.Send(ctx, p)

			Convey("Then the breaker should short-circuit", func() {
				So(errors.Is(err, transport.ErrCircuitOpen), ShouldBeTrue)
				So(c.Breaker().State(), ShouldEqual, transport.StateOpen)
			})
		})
	})

	Convey("Given a rate-limited client", t, func() {
		c := transport.New(transport.WithRateLimit(1, 1))
		p := prepare(&meta.Meta{URL: srv.URL + "/echo"}, http.MethodGet)

		Convey("When the context ends while waiting", func() {
			_, err := c.Send(ctx, p)
			So(err, ShouldBeNil)

			short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			_, err = c.Send(short, p)
			So(errors.Is(err, transport.ErrRateLimited), ShouldBeTrue)
		})
	})
}
