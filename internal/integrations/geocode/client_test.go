package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/ShipBox/internal/services/deadline"
	"github.com/stretchr/testify/require"
)

func TestClient_Geocode_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/maps/api/geocode/json", r.URL.Path)
		require.Equal(t, "78701", r.URL.Query().Get("address"))
		require.Equal(t, "k", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"geometry":{"location":{"lat":30.27,"lng":-97.74}}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", time.Second, 100)
	require.True(t, c.Enabled())

	p, err := c.Geocode(context.Background(), "78701")
	require.NoError(t, err)
	require.Equal(t, deadline.Point{Lat: 30.27, Lng: -97.74}, p)
}

func TestClient_Geocode_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", time.Second, 100).Geocode(context.Background(), "00000")
	require.ErrorIs(t, err, ErrNoResults)
}

func TestClient_Geocode_DeniedAndHTTPError(t *testing.T) {
	code := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", time.Second, 100)
	_, err := c.Geocode(context.Background(), "1")
	require.ErrorContains(t, err, "REQUEST_DENIED")

	code = http.StatusInternalServerError
	_, err = c.Geocode(context.Background(), "1")
	require.ErrorContains(t, err, "http 500")
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k", 20*time.Millisecond, 100).Geocode(context.Background(), "1")
	require.Error(t, err)
}

func TestClient_DisabledWithoutKey(t *testing.T) {
	c := New("http://127.0.0.1:0", "", 0, 0)
	require.False(t, c.Enabled())
	_, err := c.Geocode(context.Background(), "78701")
	require.Error(t, err)
}
