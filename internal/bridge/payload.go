/*

Cross-layer action payloads. Capital moves between the trading pool and the
external yield venue travel as an opaque encoded message: byte 0 is the
protocol version, bytes 1-3 identify the action family, and the rest is the
action-specific body (opcode, asset index, 32-byte big-endian amount).
Encoding is deterministic so the same decision always produces the same
bytes, and every action can be previewed without being submitted.

*/

package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

const (
	// ProtocolVersion is byte 0 of every payload.
	ProtocolVersion byte = 0x01

	// payloadLen = version(1) + family(3) + opcode(1) + asset(4) + amount(32)
	payloadLen = 41
)

// capitalFamily identifies capital-allocation actions (bytes 1-3).
var capitalFamily = [3]byte{0x00, 0x00, 0x01}

// Opcode selects the capital operation within the family.
type Opcode byte

const (
	// OpSupply moves pool capital out to the external yield venue.
	OpSupply Opcode = 0x01
	// OpRecall pulls externally supplied capital back into the pool.
	OpRecall Opcode = 0x02
)

var (
	ErrInvalidOpcode  = errors.New("invalid capital opcode")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrMalformed      = errors.New("malformed payload")
	ErrUnknownVersion = errors.New("unknown protocol version")
)

// EncodeCapitalAction builds the wire payload for a capital move.
func EncodeCapitalAction(op Opcode, assetIndex uint32, amount sdkmath.Int) ([]byte, error) {
	if op != OpSupply && op != OpRecall {
		return nil, ErrInvalidOpcode
	}
	if amount.IsNil() || !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	buf := make([]byte, payloadLen)
	buf[0] = ProtocolVersion
	copy(buf[1:4], capitalFamily[:])
	buf[4] = byte(op)
	binary.BigEndian.PutUint32(buf[5:9], assetIndex)
	amount.BigInt().FillBytes(buf[9:41])
	return buf, nil
}

// CapitalAction is the decoded form of a capital payload.
type CapitalAction struct {
	Op         Opcode
	AssetIndex uint32
	Amount     sdkmath.Int
}

// DecodeCapitalAction parses a payload previously produced by
// EncodeCapitalAction. Used by the receiving side and by round-trip checks.
func DecodeCapitalAction(payload []byte) (CapitalAction, error) {
	if len(payload) != payloadLen {
		return CapitalAction{}, fmt.Errorf("%w: length %d", ErrMalformed, len(payload))
	}
	if payload[0] != ProtocolVersion {
		return CapitalAction{}, fmt.Errorf("%w: %#x", ErrUnknownVersion, payload[0])
	}
	if payload[1] != capitalFamily[0] || payload[2] != capitalFamily[1] || payload[3] != capitalFamily[2] {
		return CapitalAction{}, fmt.Errorf("%w: unexpected action family", ErrMalformed)
	}
	op := Opcode(payload[4])
	if op != OpSupply && op != OpRecall {
		return CapitalAction{}, ErrInvalidOpcode
	}
	amount := sdkmath.NewIntFromBigInt(new(big.Int).SetBytes(payload[9:41]))
	return CapitalAction{
		Op:         op,
		AssetIndex: binary.BigEndian.Uint32(payload[5:9]),
		Amount:     amount,
	}, nil
}
