package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/gabikreal1/HLE/internal/logger"
	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/wadmath"
)

const rpcTimeout = 20 * time.Second

// jsonRPCRequest defines the structure of a JSON-RPC request.
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  abciQueryParams `json:"params"`
}

// abciQueryParams defines the parameters for the "abci_query" method.
type abciQueryParams struct {
	Path   string `json:"path"`
	Data   string `json:"data"` // Hex-encoded string
	Height string `json:"height,omitempty"`
	Prove  bool   `json:"prove,omitempty"`
}

// jsonRPCResponse defines the structure of a JSON-RPC response.
type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  abciQueryResult `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type abciQueryResult struct {
	Response struct {
		Log    string `json:"log"`
		Key    string `json:"key"`   // Base64 encoded
		Value  string `json:"value"` // Base64 encoded
		Height string `json:"height"`
		Code   uint32 `json:"code"`
	} `json:"response"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// feedValue is the JSON body carried in the query response value: the raw
// 8-decimal feed price and the venue yield as integers in string form.
type feedValue struct {
	Price    string `json:"price,omitempty"`     // 8-decimal fixed point
	YieldBps string `json:"yield_bps,omitempty"` // annualized bps
}

// RPCClient reads reference prices and external yields over the execution
// layer's abci_query JSON-RPC surface. It implements both PriceSource and
// YieldSource.
type RPCClient struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

func NewRPCClient(endpoint string) (*RPCClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("oracle endpoint cannot be empty")
	}
	return &RPCClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: rpcTimeout},
		log:      logger.GetForComponent("oracle_rpc"),
	}, nil
}

func (c *RPCClient) query(ctx context.Context, path string, instrument types.InstrumentID) (feedValue, error) {
	reqBody, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "abci_query",
		Params: abciQueryParams{
			Path: path,
			Data: fmt.Sprintf("%016x", uint64(instrument)),
		},
	})
	if err != nil {
		return feedValue{}, fmt.Errorf("failed to encode query request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return feedValue{}, fmt.Errorf("failed to build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return feedValue{}, fmt.Errorf("query request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return feedValue{}, fmt.Errorf("failed to read query response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return feedValue{}, fmt.Errorf("query returned status %d", resp.StatusCode)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return feedValue{}, fmt.Errorf("failed to decode query response: %w", err)
	}
	if rpcResp.Error != nil {
		return feedValue{}, fmt.Errorf("query rejected: %s (code %d)", rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if rpcResp.Result.Response.Code != 0 {
		return feedValue{}, fmt.Errorf("query failed with app code %d: %s", rpcResp.Result.Response.Code, rpcResp.Result.Response.Log)
	}
	if rpcResp.Result.Response.Value == "" {
		return feedValue{}, ErrNoPriceData
	}

	decoded, err := base64.StdEncoding.DecodeString(rpcResp.Result.Response.Value)
	if err != nil {
		return feedValue{}, fmt.Errorf("failed to decode query value: %w", err)
	}

	var value feedValue
	if err := json.Unmarshal(decoded, &value); err != nil {
		return feedValue{}, fmt.Errorf("failed to parse feed value: %w", err)
	}
	return value, nil
}

// Price returns the instrument's reference price in WAD. The feed carries
// 8-decimal fixed point; the value is scaled up here so nothing downstream
// ever sees feed precision.
func (c *RPCClient) Price(ctx context.Context, instrument types.InstrumentID) (sdkmath.Int, error) {
	value, err := c.query(ctx, "/feed/price", instrument)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if value.Price == "" {
		return sdkmath.Int{}, ErrNoPriceData
	}

	price8, ok := sdkmath.NewIntFromString(value.Price)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: unparseable price %q", ErrNoPriceData, value.Price)
	}
	if !price8.IsPositive() {
		return sdkmath.Int{}, fmt.Errorf("%w: feed returned %s", ErrNoPriceData, price8)
	}

	priceWad, err := wadmath.ScaleFromOracle(price8)
	if err != nil {
		return sdkmath.Int{}, err
	}

	c.log.Debug().
		Uint64("instrument", uint64(instrument)).
		Str("price_wad", priceWad.String()).
		Msg("Reference price fetched")
	return priceWad, nil
}

// ExternalYieldBps returns the external venue's advertised annualized yield.
func (c *RPCClient) ExternalYieldBps(ctx context.Context, instrument types.InstrumentID) (int64, error) {
	value, err := c.query(ctx, "/feed/yield", instrument)
	if err != nil {
		return 0, err
	}
	if value.YieldBps == "" {
		return 0, ErrNoYieldData
	}

	yieldBps, err := strconv.ParseInt(value.YieldBps, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: unparseable yield %q", ErrNoYieldData, value.YieldBps)
	}
	if yieldBps < 0 {
		return 0, fmt.Errorf("%w: negative yield %d", ErrNoYieldData, yieldBps)
	}
	return yieldBps, nil
}
