package contract_probe

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/proxy-audit/internal/pkg/blockchain"
	"github.com/archon-research/proxy-audit/internal/pkg/blockchain/abis"
	"github.com/archon-research/proxy-audit/internal/testutil"
)

var (
	proxyAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	account   = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func testABI(t *testing.T) *abi.ABI {
	t.Helper()
	contractABI, err := abis.GetFiatTokenABI()
	if err != nil {
		t.Fatalf("parsing ABI: %v", err)
	}
	return contractABI
}

// packOutput encodes a method's return value the way a node would.
func packOutput(t *testing.T, contractABI *abi.ABI, method string, vals ...any) []byte {
	t.Helper()
	out, err := contractABI.Methods[method].Outputs.Pack(vals...)
	if err != nil {
		t.Fatalf("packing %s output: %v", method, err)
	}
	return out
}

// selectorOf returns the 4-byte selector for a method.
func selectorOf(t *testing.T, contractABI *abi.ABI, method string) []byte {
	t.Helper()
	m, ok := contractABI.Methods[method]
	if !ok {
		t.Fatalf("method %q not in ABI", method)
	}
	return m.ID
}

func TestProbe_FailedFieldDegradesAlone(t *testing.T) {
	contractABI := testABI(t)
	ledger := testutil.NewMockLedger(1000)

	nameSel := selectorOf(t, contractABI, "name")
	pausedSel := selectorOf(t, contractABI, "paused")
	ledger.ViewFn = func(addr common.Address, calldata []byte, height uint64) ([]byte, error) {
		switch {
		case bytes.HasPrefix(calldata, nameSel):
			return packOutput(t, contractABI, "name", "USD Coin"), nil
		case bytes.HasPrefix(calldata, pausedSel):
			return nil, fmt.Errorf("execution reverted")
		default:
			return nil, fmt.Errorf("unexpected call")
		}
	}

	prober, err := NewProber(ledger, contractABI, nil)
	if err != nil {
		t.Fatalf("creating prober: %v", err)
	}

	fields := []Field{
		{Name: "name", Method: "name"},
		{Name: "paused", Method: "paused"},
	}
	result := prober.Probe(context.Background(), proxyAddr, fields, 500)

	name, ok := result.Known("name")
	if !ok {
		t.Fatal("expected name to be known")
	}
	if name != "USD Coin" {
		t.Errorf("expected name %q, got %v", "USD Coin", name)
	}
	if _, ok := result.Known("paused"); ok {
		t.Error("expected paused to be unknown after its call failed")
	}

	unknown := result.UnknownFields()
	if len(unknown) != 1 || unknown[0] != "paused" {
		t.Errorf("expected exactly [paused] unknown, got %v", unknown)
	}
}

func TestProbe_AllFieldsKnown(t *testing.T) {
	contractABI := testABI(t)
	ledger := testutil.NewMockLedger(1000)

	flaggedSel := selectorOf(t, contractABI, "isBlacklisted")
	ownerSel := selectorOf(t, contractABI, "owner")
	ownerAddr := common.HexToAddress("0x3333333333333333333333333333333333333333")
	ledger.ViewFn = func(addr common.Address, calldata []byte, height uint64) ([]byte, error) {
		switch {
		case bytes.HasPrefix(calldata, flaggedSel):
			return packOutput(t, contractABI, "isBlacklisted", true), nil
		case bytes.HasPrefix(calldata, ownerSel):
			return packOutput(t, contractABI, "owner", ownerAddr), nil
		default:
			return nil, fmt.Errorf("unexpected call")
		}
	}

	prober, err := NewProber(ledger, contractABI, nil)
	if err != nil {
		t.Fatalf("creating prober: %v", err)
	}

	fields := []Field{
		{Name: "is_blacklisted", Method: "isBlacklisted", Args: []any{account}},
		{Name: "owner", Method: "owner"},
	}
	result := prober.Probe(context.Background(), proxyAddr, fields, 500)

	flagged, ok := result.Bool("is_blacklisted")
	if !ok || !flagged {
		t.Errorf("expected is_blacklisted true, got ok=%v value=%v", ok, flagged)
	}
	owner, ok := result.Known("owner")
	if !ok {
		t.Fatal("expected owner to be known")
	}
	if owner != ownerAddr {
		t.Errorf("expected owner %s, got %v", ownerAddr.Hex(), owner)
	}
	if unknown := result.UnknownFields(); len(unknown) != 0 {
		t.Errorf("expected no unknown fields, got %v", unknown)
	}
}

func TestProbe_BadArgsDegradeToUnknown(t *testing.T) {
	contractABI := testABI(t)
	ledger := testutil.NewMockLedger(1000)
	ledger.ViewFn = func(addr common.Address, calldata []byte, height uint64) ([]byte, error) {
		t.Error("unpackable field must not reach the ledger")
		return nil, nil
	}

	prober, err := NewProber(ledger, contractABI, nil)
	if err != nil {
		t.Fatalf("creating prober: %v", err)
	}

	// isBlacklisted takes an address; a string cannot be packed.
	fields := []Field{{Name: "bad", Method: "isBlacklisted", Args: []any{"not-an-address"}}}
	result := prober.Probe(context.Background(), proxyAddr, fields, 500)

	if _, ok := result.Known("bad"); ok {
		t.Error("expected field with unpackable args to be unknown")
	}
}

func TestProbe_MalformedReturnDegradesToUnknown(t *testing.T) {
	contractABI := testABI(t)
	ledger := testutil.NewMockLedger(1000)
	ledger.ViewFn = func(addr common.Address, calldata []byte, height uint64) ([]byte, error) {
		return []byte{0x01, 0x02}, nil // too short for any return type
	}

	prober, err := NewProber(ledger, contractABI, nil)
	if err != nil {
		t.Fatalf("creating prober: %v", err)
	}

	result := prober.Probe(context.Background(), proxyAddr, []Field{{Name: "paused", Method: "paused"}}, 500)
	if _, ok := result.Known("paused"); ok {
		t.Error("expected malformed return to yield unknown")
	}
}

func TestResolveImplementation(t *testing.T) {
	contractABI := testABI(t)
	ledger := testutil.NewMockLedger(1000)

	impl := common.HexToAddress("0x43506849D7C04F9138D1A2050bbF3A0c054402dd")
	// Slot words carry the address in the low-order 20 bytes; the high 12
	// may hold unrelated data and must be ignored.
	var word common.Hash
	copy(word[:12], bytes.Repeat([]byte{0xff}, 12))
	copy(word[12:], impl.Bytes())
	ledger.SetStorage(proxyAddr, blockchain.EIP1967ImplementationSlot, word)

	prober, err := NewProber(ledger, contractABI, nil)
	if err != nil {
		t.Fatalf("creating prober: %v", err)
	}

	got, err := prober.ResolveImplementation(context.Background(), proxyAddr, blockchain.EIP1967ImplementationSlot, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != impl {
		t.Errorf("expected implementation %s, got %s", impl.Hex(), got.Hex())
	}
}

func TestResolveImplementation_EmptySlot(t *testing.T) {
	contractABI := testABI(t)
	ledger := testutil.NewMockLedger(1000)

	prober, err := NewProber(ledger, contractABI, nil)
	if err != nil {
		t.Fatalf("creating prober: %v", err)
	}

	got, err := prober.ResolveImplementation(context.Background(), proxyAddr, blockchain.EIP1967ImplementationSlot, 500)
	if err != nil {
		t.Fatalf("empty slot must not be an error, got: %v", err)
	}
	if got != (common.Address{}) {
		t.Errorf("expected zero address for empty slot, got %s", got.Hex())
	}
}

func TestResolveImplementation_ReadFailure(t *testing.T) {
	contractABI := testABI(t)
	ledger := testutil.NewMockLedger(1000)
	ledger.FailHeights[500] = true

	prober, err := NewProber(ledger, contractABI, nil)
	if err != nil {
		t.Fatalf("creating prober: %v", err)
	}

	if _, err := prober.ResolveImplementation(context.Background(), proxyAddr, blockchain.EIP1967ImplementationSlot, 500); err == nil {
		t.Fatal("expected error when the storage read fails")
	}
}

func TestDefaultFields(t *testing.T) {
	fields := DefaultFields(account)

	want := map[string]bool{
		"name": true, "symbol": true, "owner": true, "paused": true,
		"blacklister": true, "is_blacklisted": true, "balance": true, "total_supply": true,
	}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(fields))
	}
	for _, f := range fields {
		if !want[f.Name] {
			t.Errorf("unexpected field %q", f.Name)
		}
	}
}

func TestNewProber_Validation(t *testing.T) {
	contractABI := testABI(t)

	if _, err := NewProber(nil, contractABI, nil); err == nil {
		t.Error("expected error for nil ledger")
	}
	if _, err := NewProber(testutil.NewMockLedger(0), nil, nil); err == nil {
		t.Error("expected error for nil ABI")
	}
}
