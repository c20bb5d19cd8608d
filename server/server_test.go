package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/Spinkelben/MarketDash/client"
	"github.com/Spinkelben/MarketDash/protocol"
	"github.com/Spinkelben/MarketDash/server"
	"github.com/Spinkelben/MarketDash/transport"
)

type fakeUpstream struct {
	mu         sync.Mutex
	vendors    json.RawMessage
	menus      map[string]json.RawMessage
	err        error
	state      client.State
	vendorCall int
	menuCalls  []string
}

func (f *fakeUpstream) GetVendors(ctx context.Context, timeout time.Duration) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.vendorCall++
	if f.err != nil {
		return nil, f.err
	}
	return f.vendors, nil
}

func (f *fakeUpstream) GetVendorMenu(ctx context.Context, vendorRoute string, timeout time.Duration) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.menuCalls = append(f.menuCalls, vendorRoute)
	if err := client.ValidateRoute(vendorRoute); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.menus[vendorRoute], nil
}

func (f *fakeUpstream) State() client.State {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

type fakeTimeslots struct {
	mu   sync.Mutex
	body []byte
	err  error
	keys []string
}

func (f *fakeTimeslots) Fetch(ctx context.Context, req server.TimeslotRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keys = append(f.keys, req.CacheKey())
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

// stalledDialer blocks every dial until released, then fails it.
type stalledDialer struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (d *stalledDialer) Dial(ctx context.Context, url string) (transport.Socket, error) {
	d.once.Do(func() { close(d.started) })

	select {
	case <-d.release:
	case <-ctx.Done():
	}

	return nil, fmt.Errorf("%w: failed to dial %s: connection refused", protocol.ErrTransport, url)
}

var _ = Describe("server", func() {
	var (
		upstream  *fakeUpstream
		timeslots *fakeTimeslots
		now       time.Time
		router    http.Handler
	)

	BeforeEach(func() {
		upstream = &fakeUpstream{
			vendors: json.RawMessage(`[{"name":"Cafe","route":"cafe"}]`),
			menus:   map[string]json.RawMessage{"cafe": json.RawMessage(`[{"name":"Soup"}]`)},
		}
		timeslots = &fakeTimeslots{body: []byte(`{"slots":["11:30","12:00"]}`)}
		now = time.Unix(1700000000, 0)

		market := server.NewMarket(server.MarketOptions{
			Upstream:  upstream,
			Timeslots: timeslots,
			Clock:     func() time.Time { return now },
		})

		router = server.NewRouter(market, server.RouterOptions{CORSOrigins: []string{"*"}})
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}

		req := httptest.NewRequest(method, path, reader)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	Describe("GET /api/vendors", func() {
		It("serves the vendor list", func() {
			rec := do(http.MethodGet, "/api/vendors", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(ContainSubstring("application/json"))
			Expect(rec.Body.String()).To(MatchJSON(`[{"name":"Cafe","route":"cafe"}]`))
		})

		It("serves a cached copy within the TTL", func() {
			Expect(do(http.MethodGet, "/api/vendors", "").Code).To(Equal(http.StatusOK))

			now = now.Add(299 * time.Second)
			Expect(do(http.MethodGet, "/api/vendors", "").Code).To(Equal(http.StatusOK))
			Expect(upstream.vendorCall).To(Equal(1))

			now = now.Add(2 * time.Second)
			Expect(do(http.MethodGet, "/api/vendors", "").Code).To(Equal(http.StatusOK))
			Expect(upstream.vendorCall).To(Equal(2))
		})

		It("maps upstream failures to 502 and caches nothing", func() {
			upstream.err = fmt.Errorf("get vendors failed after 3 attempts: %w", protocol.ErrTransport)

			rec := do(http.MethodGet, "/api/vendors", "")
			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			Expect(rec.Body.String()).To(ContainSubstring(`"error"`))

			upstream.err = nil
			rec = do(http.MethodGet, "/api/vendors", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(upstream.vendorCall).To(Equal(2))
		})
	})

	Describe("GET /api/menu/:vendorId", func() {
		It("caches menus per vendor", func() {
			rec := do(http.MethodGet, "/api/menu/cafe", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`[{"name":"Soup"}]`))

			do(http.MethodGet, "/api/menu/cafe", "")
			do(http.MethodGet, "/api/menu/grill", "")

			Expect(upstream.menuCalls).To(Equal([]string{"cafe", "grill"}))
		})

		It("rejects invalid vendor routes", func() {
			rec := do(http.MethodGet, "/api/menu/a$b", "")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps upstream failures to 502", func() {
			upstream.err = errors.New("boom")
			Expect(do(http.MethodGet, "/api/menu/cafe", "").Code).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("POST /api/timeslots", func() {
		const order = `{"routeName":"cafe","products":[
			{"bongCategoryId":3,"productId":"p1","productName":"Soup","quantity":1},
			{"bongCategoryId":3,"productId":"p2","productName":"Bread","quantity":2}]}`

		It("passes the order through and caches by route and products", func() {
			rec := do(http.MethodPost, "/api/timeslots", order)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"slots":["11:30","12:00"]}`))

			Expect(do(http.MethodPost, "/api/timeslots", order).Code).To(Equal(http.StatusOK))
			Expect(timeslots.keys).To(Equal([]string{"cafe-p1|p2"}))
		})

		It("rejects malformed orders", func() {
			Expect(do(http.MethodPost, "/api/timeslots", `{"products":[]}`).Code).To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodPost, "/api/timeslots", `not json`).Code).To(Equal(http.StatusBadRequest))
			Expect(timeslots.keys).To(BeEmpty())
		})

		It("maps failures to 502 and caches nothing", func() {
			timeslots.err = fmt.Errorf("%w: response is larger than %d bytes", server.ErrTimeslots, server.MaxTimeslotsBody)
			Expect(do(http.MethodPost, "/api/timeslots", order).Code).To(Equal(http.StatusBadGateway))

			timeslots.err = nil
			Expect(do(http.MethodPost, "/api/timeslots", order).Code).To(Equal(http.StatusOK))
			Expect(timeslots.keys).To(HaveLen(2))
		})
	})

	Describe("GET /api/health", func() {
		It("reports the upstream connection", func() {
			rec := do(http.MethodGet, "/api/health", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"status":"OK","connected":false}`))

			upstream.state = client.Connected
			rec = do(http.MethodGet, "/api/health", "")
			Expect(rec.Body.String()).To(MatchJSON(`{"status":"OK","connected":true}`))
		})

		It("answers while a fetch is holding the client", func() {
			dialer := &stalledDialer{started: make(chan struct{}), release: make(chan struct{})}
			c := client.New(client.Options{Dialer: dialer})

			market := server.NewMarket(server.MarketOptions{Upstream: c, Timeslots: timeslots})
			router = server.NewRouter(market, server.RouterOptions{})

			fetched := make(chan error, 1)
			go func() {
				_, err := market.Vendors(context.Background())
				fetched <- err
			}()
			Eventually(dialer.started).Should(BeClosed())

			answered := make(chan *httptest.ResponseRecorder, 1)
			go func() {
				answered <- do(http.MethodGet, "/api/health", "")
			}()

			var rec *httptest.ResponseRecorder
			Eventually(answered, 500*time.Millisecond).Should(Receive(&rec))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"status":"OK","connected":false}`))

			close(dialer.release)

			var err error
			Eventually(fetched, 5*time.Second).Should(Receive(&err))
			Expect(errors.Is(err, protocol.ErrTransport)).To(BeTrue())
		})
	})

	Describe("CORS", func() {
		It("echoes the request origin with credentials", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			req.Header.Set("Origin", "http://localhost:3000")

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("http://localhost:3000"))
			Expect(rec.Header().Get("Access-Control-Allow-Credentials")).To(Equal("true"))
		})
	})

	Describe("GET /metrics", func() {
		It("exposes request counters", func() {
			do(http.MethodGet, "/api/health", "")

			rec := do(http.MethodGet, "/metrics", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("marketdash_http_requests_total"))
		})
	})
})

var _ = Describe("TimeslotClient", func() {
	req := server.TimeslotRequest{
		RouteName: "cafe",
		Products: []server.Product{
			{BongCategoryID: 3, ProductID: "p1", ProductName: "Soup", Quantity: 1},
		},
	}

	It("posts the order as JSON and returns the body", func() {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()

			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))

			body, err := io.ReadAll(r.Body)
			Expect(err).To(Succeed())
			Expect(body).To(MatchJSON(`{"routeName":"cafe","products":[{"bongCategoryId":3,"productId":"p1","productName":"Soup","quantity":1}]}`))

			_, _ = w.Write([]byte(`["12:00"]`))
		}))
		defer upstream.Close()

		data, err := server.NewTimeslotClient(upstream.URL, nil, nil).Fetch(context.Background(), req)
		Expect(err).To(Succeed())
		Expect(data).To(MatchJSON(`["12:00"]`))
	})

	It("treats non-2xx responses as errors", func() {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"message":"closed for lunch"}`))
		}))
		defer upstream.Close()

		_, err := server.NewTimeslotClient(upstream.URL, nil, nil).Fetch(context.Background(), req)
		Expect(errors.Is(err, server.ErrTimeslots)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("503"))
		Expect(err.Error()).To(ContainSubstring("closed for lunch"))
	})

	It("rejects responses larger than the limit", func() {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`"` + strings.Repeat("x", server.MaxTimeslotsBody) + `"`))
		}))
		defer upstream.Close()

		data, err := server.NewTimeslotClient(upstream.URL, nil, nil).Fetch(context.Background(), req)
		Expect(errors.Is(err, server.ErrTimeslots)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("larger than"))
		Expect(data).To(BeNil())
	})

	It("accepts a response at the limit", func() {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`"` + strings.Repeat("x", server.MaxTimeslotsBody-2) + `"`))
		}))
		defer upstream.Close()

		data, err := server.NewTimeslotClient(upstream.URL, nil, nil).Fetch(context.Background(), req)
		Expect(err).To(Succeed())
		Expect(data).To(HaveLen(server.MaxTimeslotsBody))
	})

	It("builds cache keys from the route and product ids", func() {
		Expect(req.CacheKey()).To(Equal("cafe-p1"))
		Expect(server.TimeslotRequest{RouteName: "r"}.CacheKey()).To(Equal("r-"))
	})
})
