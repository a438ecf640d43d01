package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/proxy-audit/internal/ports/outbound"
)

// MockLedger implements outbound.LedgerReader for testing. Behavior is
// driven by data tables and override fields so tests can simulate partial
// failures, indeterminate heights, and provider range caps
// deterministically.
type MockLedger struct {
	mu sync.RWMutex

	// Head is returned by CurrentHeight. HeadErr overrides it.
	Head    uint64
	HeadErr error

	// CodeFrom maps addresses to the height their code first exists.
	// Addresses absent from the map never have code.
	CodeFrom map[common.Address]uint64

	// Storage holds words returned by StorageWordAt, keyed by address
	// then slot. Missing entries read as the zero word.
	Storage map[common.Address]map[common.Hash]common.Hash

	// Logs holds every record the ledger knows; FilterLogs selects by
	// address, range, and topic filter.
	Logs []outbound.LogRecord

	// FailHeights makes CodeExists and CallView fail at these heights,
	// simulating pruned or flaky historical state.
	FailHeights map[uint64]bool

	// FailLogRanges makes FilterLogs fail for queries overlapping any of
	// these ranges.
	FailLogRanges []outbound.HeightRange

	// RangeCap makes FilterLogs return ErrRangeTooLarge for queries
	// spanning more than this many heights. Zero disables the cap.
	RangeCap uint64

	// ViewFn handles CallView; required for tests that exercise view
	// calls. It runs after the FailHeights check.
	ViewFn func(addr common.Address, calldata []byte, height uint64) ([]byte, error)

	// Call counters.
	CodeExistsCalls atomic.Int64
	CallViewCalls   atomic.Int64
	FilterLogsCalls atomic.Int64
}

var _ outbound.LedgerReader = (*MockLedger)(nil)

func NewMockLedger(head uint64) *MockLedger {
	return &MockLedger{
		Head:        head,
		CodeFrom:    make(map[common.Address]uint64),
		Storage:     make(map[common.Address]map[common.Hash]common.Hash),
		FailHeights: make(map[uint64]bool),
	}
}

// SetStorage stores a word for StorageWordAt to return.
func (m *MockLedger) SetStorage(addr common.Address, slot, word common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Storage[addr] == nil {
		m.Storage[addr] = make(map[common.Hash]common.Hash)
	}
	m.Storage[addr][slot] = word
}

// AddLog appends a record to the ledger's log set.
func (m *MockLedger) AddLog(rec outbound.LogRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, rec)
}

func (m *MockLedger) CodeExists(ctx context.Context, addr common.Address, height uint64) (bool, error) {
	m.CodeExistsCalls.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailHeights[height] {
		return false, fmt.Errorf("state unavailable at height %d", height)
	}
	birth, ok := m.CodeFrom[addr]
	return ok && height >= birth, nil
}

func (m *MockLedger) CallView(ctx context.Context, addr common.Address, calldata []byte, height uint64) ([]byte, error) {
	m.CallViewCalls.Add(1)
	m.mu.RLock()
	failed := m.FailHeights[height]
	viewFn := m.ViewFn
	m.mu.RUnlock()

	if failed {
		return nil, fmt.Errorf("state unavailable at height %d", height)
	}
	if viewFn == nil {
		return nil, fmt.Errorf("no view handler configured")
	}
	return viewFn(addr, calldata, height)
}

func (m *MockLedger) StorageWordAt(ctx context.Context, addr common.Address, slot common.Hash, height uint64) (common.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailHeights[height] {
		return common.Hash{}, fmt.Errorf("state unavailable at height %d", height)
	}
	return m.Storage[addr][slot], nil
}

func (m *MockLedger) FilterLogs(ctx context.Context, query outbound.LogQuery) ([]outbound.LogRecord, error) {
	m.FilterLogsCalls.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.RangeCap > 0 && query.ToHeight-query.FromHeight+1 > m.RangeCap {
		return nil, fmt.Errorf("%w: span %d exceeds cap %d",
			outbound.ErrRangeTooLarge, query.ToHeight-query.FromHeight+1, m.RangeCap)
	}
	for _, r := range m.FailLogRanges {
		if query.FromHeight <= r.To && query.ToHeight >= r.From {
			return nil, fmt.Errorf("provider failure for range [%d, %d]", query.FromHeight, query.ToHeight)
		}
	}

	var matched []outbound.LogRecord
	for _, rec := range m.Logs {
		if rec.Address != query.Address {
			continue
		}
		if rec.Height < query.FromHeight || rec.Height > query.ToHeight {
			continue
		}
		if !matchTopics(rec.Topics, query.Topics) {
			continue
		}
		matched = append(matched, rec)
	}
	return matched, nil
}

func (m *MockLedger) CurrentHeight(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.HeadErr != nil {
		return 0, m.HeadErr
	}
	return m.Head, nil
}

// matchTopics applies the standard positional topic filter: each position
// may list alternatives, an empty position matches anything.
func matchTopics(topics []common.Hash, filter [][]common.Hash) bool {
	for i, alternatives := range filter {
		if len(alternatives) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}
		found := false
		for _, alt := range alternatives {
			if topics[i] == alt {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
