package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTwilio_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "AC1", user)
		require.Equal(t, "secret", pass)
		require.NotEmpty(t, r.Header.Get("I-Twilio-Idempotency-Token"))

		require.NoError(t, r.ParseForm())
		require.Equal(t, "+15125550100", r.PostForm.Get("To"))
		require.Equal(t, "+15005550006", r.PostForm.Get("From"))
		require.Equal(t, "hello", r.PostForm.Get("Body"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	}))
	defer srv.Close()

	tw := NewTwilio(srv.URL, "AC1", "secret", "+15005550006", time.Second)
	id, err := tw.Send(context.Background(), "+15125550100", "hello", "1Z|firstScanToBorrower")
	require.NoError(t, err)
	require.Equal(t, "SM42", id)
}

func TestTwilio_SameKeySameToken(t *testing.T) {
	var mu sync.Mutex
	var tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tokens = append(tokens, r.Header.Get("I-Twilio-Idempotency-Token"))
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	tw := NewTwilio(srv.URL, "AC1", "secret", "+1", time.Second)
	for _, key := range []string{"1Z|deliveredToBorrower", "1Z|deliveredToBorrower", "1Z|firstScanToBorrower"} {
		_, err := tw.Send(context.Background(), "+1", "x", key)
		require.NoError(t, err)
	}

	require.Len(t, tokens, 3)
	require.Equal(t, tokens[0], tokens[1])
	require.NotEqual(t, tokens[0], tokens[2])
	require.Equal(t, IdempotencyToken("1Z|deliveredToBorrower"), tokens[0])
	require.NotEqual(t, IdempotencyToken(""), IdempotencyToken(""))
}

func TestTwilio_Errors(t *testing.T) {
	resp := `{"code":21211,"message":"invalid To"}`
	code := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(resp))
	}))
	defer srv.Close()

	tw := NewTwilio(srv.URL, "AC1", "secret", "+1", time.Second)
	_, err := tw.Send(context.Background(), "bad", "x", "")
	require.ErrorContains(t, err, "21211")

	code = http.StatusCreated
	resp = `{"sid":"SM1","status":"failed"}`
	_, err = tw.Send(context.Background(), "+1", "x", "")
	require.ErrorContains(t, err, "failed")

	resp = `{}`
	_, err = tw.Send(context.Background(), "+1", "x", "")
	require.Error(t, err)
}

func TestDryRun_Logs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	d := NewDryRun(zap.New(core))

	id, err := d.Send(context.Background(), "+1", "body", "tx:1|labelReadyToLender")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id, "dry-"))
	entries := logs.FilterMessage("sms dry run").All()
	require.Len(t, entries, 1)
	require.Equal(t, "tx:1|labelReadyToLender", entries[0].ContextMap()["idempotency_key"])
}
