package neynar

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"PhenomenonIndexer/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "0xAaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c := NewClient(config.NeynarConfig{BaseURL: srv.URL + "/", APIKey: "secret", CacheTTL: time.Minute}, logger)
	return c, &calls
}

func TestLookupProfiles(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/farcaster/user/bulk-by-address/", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, strings.ToLower(alice)+","+bob, r.URL.Query().Get("addresses"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"`+strings.ToLower(alice)+`":[{"username":"alice","display_name":"Alice","pfp_url":"https://img/a.png"}]}`)
	})

	got, err := c.LookupProfiles(context.Background(), []string{alice, bob, "garbage", alice})
	require.NoError(t, err)
	require.Len(t, got, 1)
	p := got[strings.ToLower(alice)]
	require.NotNil(t, p.Username)
	assert.Equal(t, "alice", *p.Username)
	assert.Equal(t, "Alice", *p.DisplayName)
	assert.Equal(t, "https://img/a.png", *p.PfpURL)

	// hits and misses are both cached
	got, err = c.LookupProfiles(context.Background(), []string{bob, alice})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestLookupProfilesDisplayNameFallsBackToUsername(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"`+bob+`":{"username":"bob"}}`)
	})
	got, err := c.LookupProfiles(context.Background(), []string{bob})
	require.NoError(t, err)
	require.Contains(t, got, bob)
	assert.Equal(t, "bob", *got[bob].DisplayName)
	assert.Nil(t, got[bob].PfpURL)
}

func TestLookupProfilesErrors(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "rate limited")
	})
	_, err := c.LookupProfiles(context.Background(), []string{bob})
	require.Error(t, err)
	status, ok := IsAPIError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, status)

	many := make([]string, 0, MaxAddresses+1)
	for i := 0; i <= MaxAddresses; i++ {
		many = append(many, "0x"+strings.Repeat("0", 37)+padHex(i))
	}
	_, err = c.LookupProfiles(context.Background(), many)
	assert.ErrorIs(t, err, ErrTooManyAddresses)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestLookupProfilesNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	got, err := c.LookupProfiles(context.Background(), []string{bob})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func padHex(i int) string {
	const digits = "0123456789abcdef"
	b := []byte{'0', '0', '0'}
	for pos := 2; pos >= 0; pos-- {
		b[pos] = digits[i%16]
		i /= 16
	}
	return string(b)
}
