package bridge

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gabikreal1/HLE/internal/logger"
)

// Submitter hands an encoded action payload to the cross-layer transport.
// Submission is fire-and-forget: the effect is not observable within the
// calling operation and callers must never assume it has completed.
type Submitter interface {
	Submit(ctx context.Context, payload []byte) error
}

const submitTimeout = 20 * time.Second

// jsonRPCRequest mirrors the broadcast convention of the execution layer's
// RPC surface.
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  broadcastParams `json:"params"`
}

type broadcastParams struct {
	Tx string `json:"tx"` // hex-encoded payload
}

type jsonRPCResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// HTTPSubmitter broadcasts payloads over JSON-RPC. Submit returns once the
// request is accepted by the transport; delivery failures are logged and
// reconciled out-of-band, never surfaced into pricing state.
type HTTPSubmitter struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

func NewHTTPSubmitter(endpoint string) (*HTTPSubmitter, error) {
	if endpoint == "" {
		return nil, errors.New("submitter endpoint cannot be empty")
	}
	return &HTTPSubmitter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: submitTimeout},
		log:      logger.GetForComponent("bridge_submitter"),
	}, nil
}

func (s *HTTPSubmitter) Submit(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return ErrMalformed
	}

	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "broadcast_tx_async",
		Params:  broadcastParams{Tx: hex.EncodeToString(payload)},
	})
	if err != nil {
		return fmt.Errorf("failed to encode broadcast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("broadcast request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read broadcast response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("broadcast returned status %d", resp.StatusCode)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode broadcast response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("broadcast rejected: %s (code %d)", rpcResp.Error.Message, rpcResp.Error.Code)
	}

	s.log.Debug().Int("payload_bytes", len(payload)).Msg("Action payload submitted")
	return nil
}

// Recorder is a Submitter for tests and dry runs: it captures payloads
// instead of sending them.
type Recorder struct {
	mu       sync.Mutex
	payloads [][]byte
	failWith error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent Submit calls return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

func (r *Recorder) Submit(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	r.payloads = append(r.payloads, cp)
	return nil
}

// Payloads returns the captured submissions in order.
func (r *Recorder) Payloads() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.payloads))
	copy(out, r.payloads)
	return out
}
