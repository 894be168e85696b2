package oracle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedServer(t *testing.T, priceByPath map[string]feedValue) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "abci_query", req.Method)

		var resp jsonRPCResponse
		resp.JSONRPC = "2.0"
		resp.ID = req.ID

		value, ok := priceByPath[req.Params.Path]
		if ok {
			body, err := json.Marshal(value)
			require.NoError(t, err)
			resp.Result.Response.Value = base64.StdEncoding.EncodeToString(body)
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestRPCClientScalesFeedPriceToWad(t *testing.T) {
	// 2500.00000000 in 8-decimal fixed point.
	srv := feedServer(t, map[string]feedValue{
		"/feed/price": {Price: "250000000000"},
	})
	defer srv.Close()

	client, err := NewRPCClient(srv.URL)
	require.NoError(t, err)

	price, err := client.Price(context.Background(), 1)
	require.NoError(t, err)

	want := sdkmath.NewInt(2500).Mul(sdkmath.NewInt(1_000_000_000_000_000_000))
	assert.Equal(t, want.String(), price.String())
}

func TestRPCClientMissingFeedIsExplicit(t *testing.T) {
	srv := feedServer(t, map[string]feedValue{})
	defer srv.Close()

	client, err := NewRPCClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Price(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoPriceData)
}

func TestRPCClientRejectsZeroPrice(t *testing.T) {
	srv := feedServer(t, map[string]feedValue{
		"/feed/price": {Price: "0"},
	})
	defer srv.Close()

	client, err := NewRPCClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Price(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoPriceData)
}

func TestRPCClientYield(t *testing.T) {
	srv := feedServer(t, map[string]feedValue{
		"/feed/yield": {YieldBps: "420"},
	})
	defer srv.Close()

	client, err := NewRPCClient(srv.URL)
	require.NoError(t, err)

	yieldBps, err := client.ExternalYieldBps(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(420), yieldBps)
}

func TestStaticSourceDefaults(t *testing.T) {
	s := NewStatic()

	_, err := s.Price(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoPriceData)
	_, err = s.ExternalYieldBps(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoYieldData)

	s.SetPrice(1, sdkmath.NewInt(42))
	s.SetYieldBps(1, 300)

	price, err := s.Price(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(42), price.Int64())

	yieldBps, err := s.ExternalYieldBps(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(300), yieldBps)
}
