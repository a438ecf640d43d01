// Package contract_probe takes best-effort snapshots of a contract's
// read-only state at a height. Every field is queried in isolation, so one
// failing call degrades exactly one entry to Unknown instead of losing the
// whole snapshot.
package contract_probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/proxy-audit/internal/domain/entity"
	"github.com/archon-research/proxy-audit/internal/ports/outbound"
)

// Field names one view call to include in a probe.
type Field struct {
	// Name is the key the value is reported under.
	Name string

	// Method is the ABI method to call.
	Method string

	// Args are the call arguments, matching the method's inputs.
	Args []any
}

// Prober executes best-effort multi-field contract probes.
type Prober struct {
	ledger      outbound.LedgerReader
	contractABI *abi.ABI
	logger      *slog.Logger
}

// NewProber creates a Prober bound to a contract ABI.
func NewProber(ledger outbound.LedgerReader, contractABI *abi.ABI, logger *slog.Logger) (*Prober, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if contractABI == nil {
		return nil, fmt.Errorf("contractABI cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Prober{
		ledger:      ledger,
		contractABI: contractABI,
		logger:      logger.With("component", "contract-probe"),
	}, nil
}

// Probe queries all fields at the given height, concurrently. Each field
// that fails to pack, call, or unpack is reported as Unknown; the others
// are unaffected. Probe itself never fails.
func (p *Prober) Probe(ctx context.Context, addr common.Address, fields []Field, height uint64) entity.ProbeResult {
	values := make([]entity.FieldValue, len(fields))

	var wg sync.WaitGroup
	for i, field := range fields {
		wg.Add(1)
		go func(i int, field Field) {
			defer wg.Done()
			values[i] = p.probeField(ctx, addr, field, height)
		}(i, field)
	}
	wg.Wait()

	result := make(entity.ProbeResult, len(fields))
	for i, field := range fields {
		result[field.Name] = values[i]
	}
	return result
}

func (p *Prober) probeField(ctx context.Context, addr common.Address, field Field, height uint64) entity.FieldValue {
	calldata, err := p.contractABI.Pack(field.Method, field.Args...)
	if err != nil {
		p.logger.Warn("field pack failed", "field", field.Name, "error", err)
		return entity.Unknown()
	}

	ret, err := p.ledger.CallView(ctx, addr, calldata, height)
	if err != nil {
		p.logger.Debug("field call failed", "field", field.Name, "height", height, "error", err)
		return entity.Unknown()
	}

	unpacked, err := p.contractABI.Unpack(field.Method, ret)
	if err != nil || len(unpacked) == 0 {
		p.logger.Warn("field unpack failed", "field", field.Name, "error", err)
		return entity.Unknown()
	}

	if len(unpacked) == 1 {
		return entity.KnownValue(unpacked[0])
	}
	return entity.KnownValue(unpacked)
}

// ResolveImplementation reads the proxy's implementation address from a
// fixed storage slot, taking the low-order 20 bytes of the word. An empty
// slot resolves to the zero address with no error: it is evidence that no
// implementation has been set, not a failure.
func (p *Prober) ResolveImplementation(ctx context.Context, proxy common.Address, slot common.Hash, height uint64) (common.Address, error) {
	word, err := p.ledger.StorageWordAt(ctx, proxy, slot, height)
	if err != nil {
		return common.Address{}, fmt.Errorf("reading implementation slot: %w", err)
	}
	return common.BytesToAddress(word[12:]), nil
}

// DefaultFields returns the fiat-token field set probed on the proxy.
// account parameterizes the per-account calls.
func DefaultFields(account common.Address) []Field {
	return []Field{
		{Name: "name", Method: "name"},
		{Name: "symbol", Method: "symbol"},
		{Name: "owner", Method: "owner"},
		{Name: "paused", Method: "paused"},
		{Name: "blacklister", Method: "blacklister"},
		{Name: "is_blacklisted", Method: "isBlacklisted", Args: []any{account}},
		{Name: "balance", Method: "balanceOf", Args: []any{account}},
		{Name: "total_supply", Method: "totalSupply"},
	}
}
