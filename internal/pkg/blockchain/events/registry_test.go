package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/archon-research/proxy-audit/internal/pkg/blockchain/abis"
	"github.com/archon-research/proxy-audit/internal/ports/outbound"
)

var (
	tokenAddr = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	sender    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	receiver  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	registry, err := NewDefaultRegistry()
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return registry
}

func TestDecode_Transfer(t *testing.T) {
	registry := newRegistry(t)

	value := big.NewInt(1_000_000)
	rec := outbound.LogRecord{
		Height:  18_000_000,
		Address: tokenAddr,
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")),
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(receiver.Bytes()),
		},
		Data: common.BigToHash(value).Bytes(),
	}

	decoded := registry.Decode(rec)
	if decoded.IsUnparsed() {
		t.Fatal("expected Transfer to decode")
	}
	if decoded.Name != "Transfer" {
		t.Fatalf("expected event name Transfer, got %q", decoded.Name)
	}
	if len(decoded.Args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(decoded.Args))
	}

	// Args come back in declaration order: from, to, value.
	if decoded.Args[0].Name != "from" || decoded.Args[0].Value != sender {
		t.Errorf("arg 0: expected from=%s, got %s=%v", sender.Hex(), decoded.Args[0].Name, decoded.Args[0].Value)
	}
	if decoded.Args[1].Name != "to" || decoded.Args[1].Value != receiver {
		t.Errorf("arg 1: expected to=%s, got %s=%v", receiver.Hex(), decoded.Args[1].Name, decoded.Args[1].Value)
	}
	if decoded.Args[2].Name != "value" {
		t.Fatalf("arg 2: expected name value, got %q", decoded.Args[2].Name)
	}
	got, ok := decoded.Args[2].Value.(*big.Int)
	if !ok || got.Cmp(value) != 0 {
		t.Errorf("arg 2: expected value %s, got %v", value, decoded.Args[2].Value)
	}
}

func TestDecode_Blacklisted(t *testing.T) {
	registry := newRegistry(t)

	rec := outbound.LogRecord{
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte("Blacklisted(address)")),
			common.BytesToHash(sender.Bytes()),
		},
	}

	decoded := registry.Decode(rec)
	if decoded.Name != "Blacklisted" {
		t.Fatalf("expected Blacklisted, got %q", decoded.Name)
	}
	if len(decoded.Args) != 1 || decoded.Args[0].Value != sender {
		t.Errorf("expected single account arg %s, got %+v", sender.Hex(), decoded.Args)
	}
}

func TestDecode_UnknownSignature(t *testing.T) {
	registry := newRegistry(t)

	rec := outbound.LogRecord{
		Topics: []common.Hash{crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))},
	}
	if decoded := registry.Decode(rec); !decoded.IsUnparsed() {
		t.Errorf("expected unparsed for unregistered signature, got %q", decoded.Name)
	}
}

func TestDecode_NoTopics(t *testing.T) {
	registry := newRegistry(t)

	rec := outbound.LogRecord{Data: []byte{0x01}}
	if decoded := registry.Decode(rec); !decoded.IsUnparsed() {
		t.Errorf("expected unparsed for topicless record, got %q", decoded.Name)
	}
}

func TestDecode_TopicCountMismatch(t *testing.T) {
	registry := newRegistry(t)

	// Transfer declares two indexed args; a single indexed topic is some
	// other event colliding on the hash or a malformed record.
	rec := outbound.LogRecord{
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")),
			common.BytesToHash(sender.Bytes()),
		},
		Data: common.BigToHash(big.NewInt(1)).Bytes(),
	}
	if decoded := registry.Decode(rec); !decoded.IsUnparsed() {
		t.Errorf("expected unparsed for topic count mismatch, got %q", decoded.Name)
	}
}

func TestDecode_MalformedData(t *testing.T) {
	registry := newRegistry(t)

	rec := outbound.LogRecord{
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")),
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(receiver.Bytes()),
		},
		Data: []byte{0x01, 0x02, 0x03}, // not a 32-byte word
	}
	if decoded := registry.Decode(rec); !decoded.IsUnparsed() {
		t.Errorf("expected unparsed for malformed data payload, got %q", decoded.Name)
	}
}

func TestDecode_NonIndexedAddressData(t *testing.T) {
	registry := newRegistry(t)

	// AdminChanged carries both addresses in the data payload.
	prev := common.HexToAddress("0x3333333333333333333333333333333333333333")
	next := common.HexToAddress("0x4444444444444444444444444444444444444444")
	data := append(common.BytesToHash(prev.Bytes()).Bytes(), common.BytesToHash(next.Bytes()).Bytes()...)

	rec := outbound.LogRecord{
		Topics: []common.Hash{crypto.Keccak256Hash([]byte("AdminChanged(address,address)"))},
		Data:   data,
	}

	decoded := registry.Decode(rec)
	if decoded.Name != "AdminChanged" {
		t.Fatalf("expected AdminChanged, got %q", decoded.Name)
	}
	if decoded.Args[0].Value != prev || decoded.Args[1].Value != next {
		t.Errorf("expected admins %s -> %s, got %+v", prev.Hex(), next.Hex(), decoded.Args)
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	if _, err := NewRegistry(nil); err == nil {
		t.Error("expected error for nil ABI")
	}

	viewOnly, err := abis.GetFiatTokenABI()
	if err != nil {
		t.Fatalf("parsing ABI: %v", err)
	}
	if _, err := NewRegistry(viewOnly); err == nil {
		t.Error("expected error for an ABI without events")
	}
}

func TestNames(t *testing.T) {
	registry := newRegistry(t)

	names := make(map[string]bool)
	for _, name := range registry.Names() {
		names[name] = true
	}
	for _, want := range []string{"Transfer", "Blacklisted", "UnBlacklisted", "Upgraded", "OwnershipTransferred", "AdminChanged"} {
		if !names[want] {
			t.Errorf("expected %q to be registered", want)
		}
	}
}
