package deadline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	cachemocks "github.com/BearBump/ShipBox/internal/cache/mocks"
	"github.com/BearBump/ShipBox/internal/cache/rediscache"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubGeocoder struct {
	enabled bool
	points  map[string]Point
	err     error
	calls   atomic.Int32
}

func (s *stubGeocoder) Enabled() bool { return s.enabled }

func (s *stubGeocoder) Geocode(ctx context.Context, zip string) (Point, error) {
	s.calls.Add(1)
	if s.err != nil {
		return Point{}, s.err
	}
	p, ok := s.points[zip]
	if !ok {
		return Point{}, errors.New("zero results")
	}
	return p, nil
}

var (
	austin  = Point{Lat: 30.2672, Lng: -97.7431}
	sanAnt  = Point{Lat: 29.4241, Lng: -98.4936}
	denver  = Point{Lat: 39.7392, Lng: -104.9903}
	newYork = Point{Lat: 40.7128, Lng: -74.0060}
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeShipBy_Static(t *testing.T) {
	c := New(nil, nil, time.UTC, nil)

	got, ok := c.ComputeShipBy(context.Background(), Input{BookingStart: "2025-01-20", Mode: ModeStatic, LeadDaysStatic: 2})
	require.True(t, ok)
	require.Equal(t, day(2025, 1, 18), got)

	got, ok = c.ComputeShipBy(context.Background(), Input{BookingStart: "2025-01-20T15:30:00Z", Mode: ModeStatic, LeadDaysStatic: 2})
	require.True(t, ok)
	require.Equal(t, day(2025, 1, 18), got)
}

func TestComputeShipBy_ZeroLeadIsSameDay(t *testing.T) {
	c := New(nil, nil, time.UTC, nil)
	ctx := context.Background()

	got, ok := c.ComputeShipBy(ctx, Input{BookingStart: "2025-01-20", Mode: ModeStatic, LeadDaysStatic: 0})
	require.True(t, ok)
	require.Equal(t, day(2025, 1, 20), got)

	got, ok = c.ComputeShipBy(ctx, Input{BookingStart: "2025-01-20", Mode: ModeStatic, LeadDaysStatic: -1})
	require.True(t, ok)
	require.Equal(t, day(2025, 1, 18), got)
}

func TestComputeShipBy_InvalidStart(t *testing.T) {
	c := New(nil, nil, time.UTC, nil)

	_, ok := c.ComputeShipBy(context.Background(), Input{BookingStart: ""})
	require.False(t, ok)
	_, ok = c.ComputeShipBy(context.Background(), Input{BookingStart: "next tuesday"})
	require.False(t, ok)
}

func TestComputeShipBy_LocalMidnight(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	c := New(nil, nil, loc, nil)

	// 03:00Z on the 20th is still the 19th in CST.
	got, ok := c.ComputeShipBy(context.Background(), Input{BookingStart: "2025-01-20T03:00:00Z", Mode: ModeStatic, LeadDaysStatic: 2})
	require.True(t, ok)
	require.Equal(t, time.Date(2025, 1, 17, 0, 0, 0, 0, loc), got)
}

func TestComputeShipBy_Pure(t *testing.T) {
	geo := &stubGeocoder{enabled: true, points: map[string]Point{"78701": austin, "80202": denver}}
	c := New(geo, nil, time.UTC, nil)
	in := Input{BookingStart: "2025-03-10", Mode: ModeDistance, LeadDaysStatic: 2, LeadDaysMax: 5, OriginZip: "78701", DestZip: "80202"}

	a, okA := c.ComputeShipBy(context.Background(), in)
	b, okB := c.ComputeShipBy(context.Background(), in)
	require.Equal(t, okA, okB)
	require.Equal(t, a, b)
	// both ZIPs are cached after the first call
	require.Equal(t, int32(2), geo.calls.Load())
}

func TestComputeShipBy_DistanceSteps(t *testing.T) {
	geo := &stubGeocoder{enabled: true, points: map[string]Point{
		"78701": austin, "78205": sanAnt, "80202": denver, "10001": newYork,
	}}
	c := New(geo, nil, time.UTC, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		dest   string
		max    int
		expect time.Time
	}{
		{"short hop", "78205", 5, day(2025, 3, 9)},
		{"mid range", "80202", 5, day(2025, 3, 8)},
		{"cross country", "10001", 5, day(2025, 3, 7)},
		{"clamped", "10001", 2, day(2025, 3, 8)},
		{"zip+4", "78205-1234", 5, day(2025, 3, 9)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := c.ComputeShipBy(ctx, Input{
				BookingStart: "2025-03-10", Mode: ModeDistance, LeadDaysStatic: 4, LeadDaysMax: tc.max,
				OriginZip: "78701", DestZip: tc.dest,
			})
			require.True(t, ok)
			require.Equal(t, tc.expect, got)
		})
	}
}

func TestComputeShipBy_DistanceFallbackEqualsStatic(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	geo := &stubGeocoder{enabled: true, err: errors.New("boom")}
	c := New(geo, nil, time.UTC, zap.New(core))
	ctx := context.Background()

	static, _ := New(nil, nil, time.UTC, nil).ComputeShipBy(ctx, Input{BookingStart: "2025-01-20", Mode: ModeStatic, LeadDaysStatic: 3})
	for i := 0; i < 3; i++ {
		got, ok := c.ComputeShipBy(ctx, Input{BookingStart: "2025-01-20", Mode: ModeDistance, LeadDaysStatic: 3, LeadDaysMax: 5, OriginZip: "1", DestZip: "2"})
		require.True(t, ok)
		require.Equal(t, static, got)
	}
	require.Equal(t, 1, logs.Len())
}

func TestComputeShipBy_NoCredentialWarnsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	geo := &stubGeocoder{enabled: false}
	c := New(geo, nil, time.UTC, zap.New(core))

	for i := 0; i < 5; i++ {
		got, ok := c.ComputeShipBy(context.Background(), Input{BookingStart: "2025-01-20", Mode: ModeDistance, LeadDaysStatic: 2, OriginZip: "1", DestZip: "2"})
		require.True(t, ok)
		require.Equal(t, day(2025, 1, 18), got)
	}
	require.Equal(t, int32(0), geo.calls.Load())
	require.Equal(t, 1, logs.Len())
}

func TestHaversineAndSteps(t *testing.T) {
	require.InDelta(t, 0, HaversineMiles(austin, austin), 1e-9)
	m := HaversineMiles(austin, denver)
	require.InDelta(t, 770, m, 25)

	require.Equal(t, 1, DaysForMiles(200))
	require.Equal(t, 2, DaysForMiles(200.1))
	require.Equal(t, 2, DaysForMiles(1000))
	require.Equal(t, 3, DaysForMiles(1000.1))
}

func TestBytesGeoCache_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := rediscache.New(mr.Addr())
	gc := NewBytesGeoCache(rc, time.Hour)
	ctx := context.Background()

	_, ok := gc.Get(ctx, "78701")
	require.False(t, ok)

	gc.Set(ctx, "78701", austin)
	p, ok := gc.Get(ctx, "78701")
	require.True(t, ok)
	require.Equal(t, austin, p)

	geo := &stubGeocoder{enabled: true, points: map[string]Point{"80202": denver}}
	c := New(geo, gc, time.UTC, nil)
	_, ok = c.ComputeShipBy(ctx, Input{BookingStart: "2025-03-10", Mode: ModeDistance, OriginZip: "78701", DestZip: "80202"})
	require.True(t, ok)
	require.Equal(t, int32(1), geo.calls.Load())
}

func TestBytesGeoCache_ErrorsAreMisses(t *testing.T) {
	bc := cachemocks.NewMockBytesCache(t)
	bc.On("Get", mock.Anything, "shipbox:geo:78701").Return(nil, false, errors.New("redis down")).Once()
	bc.On("Get", mock.Anything, "shipbox:geo:80202").Return([]byte("{broken"), true, nil).Once()
	bc.On("Set", mock.Anything, "shipbox:geo:78701", mock.Anything, 2*time.Hour).Return(errors.New("redis down")).Once()

	gc := NewBytesGeoCache(bc, 2*time.Hour)
	ctx := context.Background()

	_, ok := gc.Get(ctx, "78701")
	require.False(t, ok)
	_, ok = gc.Get(ctx, "80202")
	require.False(t, ok)
	gc.Set(ctx, "78701", austin)
}
