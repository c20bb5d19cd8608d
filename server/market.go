package server

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/Spinkelben/MarketDash/client"
	"github.com/Spinkelben/MarketDash/internal/metrics"
	"github.com/Spinkelben/MarketDash/storage"
)

const DefaultQueryTimeout = 5 * time.Second

// Upstream is the realtime database, normally a *client.Client.
type Upstream interface {
	GetVendors(ctx context.Context, timeout time.Duration) (json.RawMessage, error)
	GetVendorMenu(ctx context.Context, vendorRoute string, timeout time.Duration) (json.RawMessage, error)
	State() client.State
}

// Timeslots fetches pickup timeslots for an order, normally a *TimeslotClient.
type Timeslots interface {
	Fetch(ctx context.Context, req TimeslotRequest) ([]byte, error)
}

type MarketOptions struct {
	Upstream  Upstream
	Timeslots Timeslots

	// QueryTimeout bounds every wait on the upstream socket
	QueryTimeout time.Duration

	// CacheTTL is how long fetched values are served from memory
	CacheTTL time.Duration

	// Clock is used by the caches, mostly for tests
	Clock storage.Clock

	Log *zap.Logger
}

// Market serves vendor data through TTL caches. A cache is never locked
// while the upstream is being queried, so concurrent misses for the same key
// may each fetch, and the last write wins.
type Market struct {
	upstream     Upstream
	timeslots    Timeslots
	queryTimeout time.Duration
	log          *zap.Logger

	vendors storage.ValueCache[json.RawMessage]
	menus   storage.KeyedCache[json.RawMessage]
	slots   storage.KeyedCache[[]byte]
}

func NewMarket(options MarketOptions) *Market {
	if options.QueryTimeout <= 0 {
		options.QueryTimeout = DefaultQueryTimeout
	}

	if options.CacheTTL <= 0 {
		options.CacheTTL = storage.DefaultTTL
	}

	if options.Log == nil {
		options.Log = zap.NewNop()
	}

	var opts []storage.Option
	if options.Clock != nil {
		opts = append(opts, storage.WithClock(options.Clock))
	}

	return &Market{
		upstream:     options.Upstream,
		timeslots:    options.Timeslots,
		queryTimeout: options.QueryTimeout,
		log:          options.Log,
		vendors:      storage.NewInmemoryValue[json.RawMessage](options.CacheTTL, opts...),
		menus:        storage.NewInmemoryKeyed[json.RawMessage](options.CacheTTL, opts...),
		slots:        storage.NewInmemoryKeyed[[]byte](options.CacheTTL, opts...),
	}
}

func (m *Market) Vendors(ctx context.Context) (json.RawMessage, error) {
	if value, ok := m.vendors.Get(); ok {
		metrics.RecordCacheLookup("vendors", true)
		return value, nil
	}

	metrics.RecordCacheLookup("vendors", false)

	value, err := m.upstream.GetVendors(ctx, m.queryTimeout)
	if err != nil {
		return nil, err
	}

	m.vendors.Set(value)
	return value, nil
}

func (m *Market) Menu(ctx context.Context, vendorID string) (json.RawMessage, error) {
	if value, ok := m.menus.Get(vendorID); ok {
		metrics.RecordCacheLookup("menus", true)
		return value, nil
	}

	metrics.RecordCacheLookup("menus", false)

	value, err := m.upstream.GetVendorMenu(ctx, vendorID, m.queryTimeout)
	if err != nil {
		return nil, err
	}

	m.menus.Set(vendorID, value)
	m.log.Debug("Cached menu", zap.String("vendorID", vendorID), zap.Int("menus", m.menus.Len()))

	return value, nil
}

func (m *Market) Timeslots(ctx context.Context, req TimeslotRequest) ([]byte, error) {
	key := req.CacheKey()

	if value, ok := m.slots.Get(key); ok {
		metrics.RecordCacheLookup("timeslots", true)
		return value, nil
	}

	metrics.RecordCacheLookup("timeslots", false)

	value, err := m.timeslots.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	m.slots.Set(key, value)
	return value, nil
}

// Connected reports whether the upstream socket is currently open.
func (m *Market) Connected() bool {
	return m.upstream.State() == client.Connected
}
