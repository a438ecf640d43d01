package outbound

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrRangeTooLarge is returned by FilterLogs when the provider rejects the
// requested height span or result size. Callers recover by narrowing the
// range; every other FilterLogs error is a transport failure.
var ErrRangeTooLarge = errors.New("log query range too large")

// LogRecord is a single event record as returned by the ledger. Immutable
// once returned; the core never mutates records.
type LogRecord struct {
	Height  uint64
	TxHash  common.Hash
	Address common.Address
	Topics  []common.Hash
	Data    []byte

	// Index is the record's position within its block, used only to give
	// aggregated results a stable order.
	Index uint
}

// LogQuery describes a closed-range log fetch against a single contract.
// A nil Topics filter matches all records the contract emitted.
type LogQuery struct {
	Address    common.Address
	FromHeight uint64
	ToHeight   uint64
	Topics     [][]common.Hash
}

// HeightRange is a closed block range [From, To].
type HeightRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// Size returns the number of heights covered by the range.
func (r HeightRange) Size() uint64 {
	return r.To - r.From + 1
}

// LedgerReader is the query port the analysis core consumes. Implementations
// perform no retries of their own: errors surface to the core unmodified so
// the core can decide whether to retry, narrow, or record the failure.
type LedgerReader interface {
	// CodeExists reports whether the address held contract code at the
	// given height. A transport failure is an error, never false.
	CodeExists(ctx context.Context, addr common.Address, height uint64) (bool, error)

	// CallView executes a read-only call with pre-packed calldata against
	// the state at the given height and returns the raw return bytes.
	CallView(ctx context.Context, addr common.Address, calldata []byte, height uint64) ([]byte, error)

	// StorageWordAt reads one 32-byte storage word at the given height.
	StorageWordAt(ctx context.Context, addr common.Address, slot common.Hash, height uint64) (common.Hash, error)

	// FilterLogs returns all records matching the query. Fails with
	// ErrRangeTooLarge (wrapped) when the provider caps the span.
	FilterLogs(ctx context.Context, query LogQuery) ([]LogRecord, error)

	// CurrentHeight returns the ledger head height.
	CurrentHeight(ctx context.Context) (uint64, error)
}
