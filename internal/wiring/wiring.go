package wiring

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/cache"
	"github.com/BearBump/ShipBox/internal/cache/memcache"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/integrations/carrier/fake"
	"github.com/BearBump/ShipBox/internal/integrations/carrier/shippo"
	"github.com/BearBump/ShipBox/internal/integrations/geocode"
	"github.com/BearBump/ShipBox/internal/integrations/marketplace"
	"github.com/BearBump/ShipBox/internal/integrations/marketplace/flexhttp"
	"github.com/BearBump/ShipBox/internal/integrations/marketplace/memstore"
	"github.com/BearBump/ShipBox/internal/integrations/shortener"
	"github.com/BearBump/ShipBox/internal/integrations/sms"
	"github.com/BearBump/ShipBox/internal/metrics"
	"github.com/BearBump/ShipBox/internal/services/deadline"
	"github.com/BearBump/ShipBox/internal/services/labels"
	"github.com/BearBump/ShipBox/internal/services/linkpolicy"
	"github.com/BearBump/ShipBox/internal/services/notify"
	"github.com/BearBump/ShipBox/internal/services/reconciler"
	"github.com/BearBump/ShipBox/internal/storage/pgtransactions"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Factories build the external edges. Tests swap them for in-process fakes.
type Factories struct {
	NewStore   func(cfg *config.Config) (store marketplace.Store, closeFn func(), err error)
	NewCarrier func(cfg *config.Config) carrier.Client
	NewSMS     func(cfg *config.Config, log *zap.Logger) notify.SMSSender

	// NewDedup returns the reservation cache and, for the in-process one, a sweeper to run.
	NewDedup    func(cfg *config.Config) (dedup cache.Deduper, run func(ctx context.Context), closeFn func())
	NewGeoCache func(cfg *config.Config) (deadline.GeoCache, func())
	// Redis is shared by the Redis-backed factories, including ones added by the binaries.
	Redis       *RedisConn
}

func DefaultFactories() Factories {
	conn := &RedisConn{}
	return Factories{
		Redis: conn,
		NewStore: func(cfg *config.Config) (marketplace.Store, func(), error) {
			switch cfg.Marketplace.Driver {
			case "postgres":
				st, err := openPostgresWithRetry(cfg.Database, 60*time.Second)
				if err != nil {
					return nil, nil, err
				}
				return st, st.Close, nil
			case "http":
				if cfg.Marketplace.BaseURL == "" {
					return nil, nil, errors.New("marketplace.base_url is required for the http driver")
				}
				return flexhttp.New(cfg.Marketplace.BaseURL, cfg.Marketplace.Token,
					time.Duration(cfg.Marketplace.TimeoutSeconds)*time.Second), nil, nil
			case "memory", "":
				return memstore.New(), nil, nil
			default:
				return nil, nil, errors.Errorf("unknown marketplace driver %q", cfg.Marketplace.Driver)
			}
		},
		NewCarrier: func(cfg *config.Config) carrier.Client {
			if cfg.Carrier.Driver == "shippo" {
				return shippo.New(cfg.Carrier.BaseURL, cfg.Carrier.Token, time.Duration(cfg.Carrier.TimeoutSeconds)*time.Second)
			}
			return fake.New()
		},
		NewSMS: func(cfg *config.Config, log *zap.Logger) notify.SMSSender {
			if cfg.SMS.DryRun {
				return sms.NewDryRun(log)
			}
			if cfg.SMS.AccountSID == "" || cfg.SMS.AuthToken == "" {
				log.Warn("sms credentials missing, falling back to dry run")
				return sms.NewDryRun(log)
			}
			return sms.NewTwilio(cfg.SMS.BaseURL, cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.From,
				time.Duration(cfg.SMS.TimeoutSeconds)*time.Second)
		},
		NewDedup: func(cfg *config.Config) (cache.Deduper, func(context.Context), func()) {
			if cfg.Redis.Enabled {
				c, release := conn.Acquire(cfg.Redis.Addr())
				return c.Dedup(""), nil, release
			}
			d := memcache.NewDedup(memcache.DefaultSweepInterval)
			return d, d.Run, nil
		},
		NewGeoCache: func(cfg *config.Config) (deadline.GeoCache, func()) {
			if cfg.Redis.Enabled {
				c, release := conn.Acquire(cfg.Redis.Addr())
				return deadline.NewBytesGeoCache(c.Cache(""), time.Duration(cfg.Geocoder.CacheTTLHours)*time.Hour), release
			}
			return deadline.NewMemoryGeoCache(), nil
		},
	}
}

func openPostgresWithRetry(db config.DatabaseConfig, wait time.Duration) (*pgtransactions.Storage, error) {
	opts := pgtransactions.DefaultOptions()
	opts.MaxConns = int32(db.MaxConns)

	deadlineAt := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadlineAt) {
		st, err := pgtransactions.New(context.Background(), db.ConnString(), opts)
		if err == nil {
			return st, nil
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	return nil, errors.Wrapf(lastErr, "postgres is not ready after %s", wait)
}

// Core is the service graph shared by ship-api and ship-worker.
type Core struct {
	Store      marketplace.Store
	Carrier    carrier.Client
	Merger     *reconciler.Reconciler
	Dispatcher *notify.Dispatcher
	Composer   *notify.Composer
	Links      *linkpolicy.Policy
	ShipBy     *deadline.Calculator
	Labels     *labels.Orchestrator
	Metrics    *metrics.Metrics
	LeadMode   deadline.Mode

	background []func(ctx context.Context)
	closers    []func()
}

func Build(cfg *config.Config, f Factories, reg prometheus.Registerer, log *zap.Logger) (*Core, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Core{Metrics: metrics.New(reg)}

	store, closeStore, err := f.NewStore(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "marketplace store")
	}
	c.Store = store
	c.addCloser(closeStore)

	dedup, runDedup, closeDedup := f.NewDedup(cfg)
	c.addCloser(closeDedup)
	if runDedup != nil {
		c.background = append(c.background, runDedup)
	}

	geoCache, closeGeo := f.NewGeoCache(cfg)
	c.addCloser(closeGeo)

	loc, err := time.LoadLocation(cfg.LeadTime.Timezone)
	if err != nil {
		c.Close()
		return nil, errors.Wrapf(err, "lead_time.timezone %q", cfg.LeadTime.Timezone)
	}

	c.Merger = reconciler.New(store, reconciler.DefaultOptions(), log.Named("reconciler")).WithMetrics(c.Metrics)

	c.Links = linkpolicy.New(linkPreferences(cfg.Links.Preferences), cfg.Links.AllowTracking)

	var short notify.Shortener
	if cfg.Shortener.BaseURL != "" {
		short = shortener.New(cfg.Shortener.BaseURL, cfg.Shortener.Token, time.Duration(cfg.Shortener.TimeoutSeconds)*time.Second)
	}
	c.Composer = notify.NewComposer(c.Links, short, log.Named("composer"))

	c.Dispatcher = notify.NewDispatcher(f.NewSMS(cfg, log.Named("sms")), dedup, c.Merger, log.Named("notify")).
		WithDedupTTL(time.Duration(cfg.SMS.DedupTTLHours) * time.Hour).
		WithMetrics(c.Metrics)

	geo := geocode.New(cfg.Geocoder.BaseURL, cfg.Geocoder.APIKey,
		time.Duration(cfg.Geocoder.TimeoutSeconds)*time.Second, cfg.Geocoder.RequestsPerSecond)
	c.ShipBy = deadline.New(geo, geoCache, loc, log.Named("deadline")).
		WithLookupTimeout(time.Duration(cfg.Geocoder.TimeoutSeconds) * time.Second)
	c.LeadMode = deadline.Mode(strings.ToLower(cfg.LeadTime.Mode))

	c.Carrier = f.NewCarrier(cfg)
	lcfg := labels.DefaultConfig()
	lcfg.ProviderPreference = cfg.Carrier.ProviderPreference
	lcfg.QRCarriers = cfg.Carrier.QRCarriers
	lcfg.LabelFileType = cfg.Carrier.LabelFileType
	lcfg.ReturnLabels = cfg.Carrier.ReturnLabels
	lcfg.LeadMode = c.LeadMode
	lcfg.LeadDaysStatic = cfg.LeadTime.StaticDays
	lcfg.LeadDaysMax = cfg.LeadTime.MaxDays
	c.Labels = labels.New(c.Carrier, store, c.ShipBy, c.Merger, c.Dispatcher, c.Composer, lcfg, log.Named("labels")).
		WithMetrics(c.Metrics)

	return c, nil
}

func linkPreferences(in map[string][]string) map[string][]linkpolicy.LinkKind {
	prefs := linkpolicy.DefaultPreferences()
	for k, v := range in {
		if kinds := linkpolicy.ParseKinds(v); len(kinds) > 0 {
			prefs[strings.ToLower(k)] = kinds
		}
	}
	return prefs
}

func (c *Core) addCloser(fn func()) {
	if fn != nil {
		c.closers = append(c.closers, fn)
	}
}

// RunBackground starts housekeeping loops (dedup sweeper) until ctx is done.
func (c *Core) RunBackground(ctx context.Context) {
	for _, fn := range c.background {
		go fn(ctx)
	}
}

func (c *Core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
