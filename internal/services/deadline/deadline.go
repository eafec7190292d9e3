package deadline

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Mode string

const (
	ModeStatic   Mode = "static"
	ModeDistance Mode = "distance"
)

const (
	DefaultLeadDaysStatic = 2
	DefaultLeadDaysMax    = 5
	DefaultLookupTimeout  = 5 * time.Second
)

// Point is a geocoded location in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Geocoder interface {
	// Enabled is false when no credential is configured; the calculator then never calls Geocode.
	Enabled() bool
	Geocode(ctx context.Context, zip string) (Point, error)
}

type GeoCache interface {
	Get(ctx context.Context, zip string) (Point, bool)
	Set(ctx context.Context, zip string, p Point)
}

type Input struct {
	BookingStart   string
	Mode           Mode
	// LeadDaysStatic below zero means DefaultLeadDaysStatic; zero is a same-day ship-by.
	LeadDaysStatic int
	LeadDaysMax    int
	OriginZip      string
	DestZip        string
}

type Calculator struct {
	geo     Geocoder
	cache   GeoCache
	loc     *time.Location
	timeout time.Duration
	log     *zap.Logger

	noCredentialOnce sync.Once
	lookupFailedOnce sync.Once
}

func New(geo Geocoder, cache GeoCache, loc *time.Location, log *zap.Logger) *Calculator {
	if cache == nil {
		cache = NewMemoryGeoCache()
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Calculator{
		geo:     geo,
		cache:   cache,
		loc:     loc,
		timeout: DefaultLookupTimeout,
		log:     log,
	}
}

func (c *Calculator) WithLookupTimeout(d time.Duration) *Calculator {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// ComputeShipBy returns the date by which the outbound parcel must be shipped.
// ok=false only when the booking start is missing or unparseable.
func (c *Calculator) ComputeShipBy(ctx context.Context, in Input) (time.Time, bool) {
	start, ok := c.parseStart(in.BookingStart)
	if !ok {
		return time.Time{}, false
	}

	staticDays := in.LeadDaysStatic
	if staticDays < 0 {
		staticDays = DefaultLeadDaysStatic
	}

	days := staticDays
	if Mode(strings.ToLower(string(in.Mode))) == ModeDistance {
		if d, ok := c.distanceDays(ctx, in.OriginZip, in.DestZip); ok {
			days = d
			if in.LeadDaysMax > 0 && days > in.LeadDaysMax {
				days = in.LeadDaysMax
			}
		}
	}

	return start.AddDate(0, 0, -days), true
}

// parseStart normalises the booking start to local midnight.
func (c *Calculator) parseStart(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.In(c.loc)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc), true
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, c.loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (c *Calculator) distanceDays(ctx context.Context, origin, dest string) (int, bool) {
	if c.geo == nil || !c.geo.Enabled() {
		c.noCredentialOnce.Do(func() {
			c.log.Warn("geocoder credential missing, distance lead time falls back to static")
		})
		return 0, false
	}

	from, err := c.lookup(ctx, origin)
	if err != nil {
		c.warnLookup(err)
		return 0, false
	}
	to, err := c.lookup(ctx, dest)
	if err != nil {
		c.warnLookup(err)
		return 0, false
	}

	return DaysForMiles(HaversineMiles(from, to)), true
}

func (c *Calculator) warnLookup(err error) {
	c.lookupFailedOnce.Do(func() {
		c.log.Warn("geocode lookup failed, distance lead time falls back to static", zap.Error(err))
	})
}

func (c *Calculator) lookup(ctx context.Context, zip string) (Point, error) {
	zip = normalizeZip(zip)
	if p, ok := c.cache.Get(ctx, zip); ok {
		return p, nil
	}

	lctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	p, err := c.geo.Geocode(lctx, zip)
	if err != nil {
		return Point{}, err
	}
	c.cache.Set(ctx, zip, p)
	return p, nil
}

func normalizeZip(z string) string {
	z = strings.TrimSpace(z)
	// 78701-1234 → 78701
	if i := strings.IndexByte(z, '-'); i > 0 {
		z = z[:i]
	}
	return z
}

// DaysForMiles is the distance → lead-days step function.
func DaysForMiles(miles float64) int {
	switch {
	case miles <= 200:
		return 1
	case miles <= 1000:
		return 2
	default:
		return 3
	}
}

const earthRadiusMiles = 3958.8

func HaversineMiles(a, b Point) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(h)))
}
