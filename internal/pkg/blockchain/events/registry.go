// Package events maps raw log records to named, typed events by matching
// their first topic against a registry of known signatures.
package events

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/proxy-audit/internal/domain/entity"
	"github.com/archon-research/proxy-audit/internal/pkg/blockchain/abis"
	"github.com/archon-research/proxy-audit/internal/ports/outbound"
)

// Registry holds event definitions keyed by their signature hash.
type Registry struct {
	signatures map[common.Hash]abi.Event
}

// NewRegistry builds a registry from the events of a parsed ABI.
func NewRegistry(eventsABI *abi.ABI) (*Registry, error) {
	if eventsABI == nil {
		return nil, fmt.Errorf("eventsABI cannot be nil")
	}
	if len(eventsABI.Events) == 0 {
		return nil, fmt.Errorf("ABI declares no events")
	}

	signatures := make(map[common.Hash]abi.Event, len(eventsABI.Events))
	for _, event := range eventsABI.Events {
		signatures[event.ID] = event
	}
	return &Registry{signatures: signatures}, nil
}

// NewDefaultRegistry builds a registry with the fiat-token proxy event set:
// transfers, blacklist toggles, upgrades, and ownership changes.
func NewDefaultRegistry() (*Registry, error) {
	eventsABI, err := abis.GetProxyEventsABI()
	if err != nil {
		return nil, fmt.Errorf("parsing proxy events ABI: %w", err)
	}
	return NewRegistry(eventsABI)
}

// Names returns the registered event names, in no particular order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.signatures))
	for _, event := range r.signatures {
		names = append(names, event.Name)
	}
	return names
}

// Decode maps a log record to a named event. It is total: a record whose
// first topic matches no registered signature, or whose topics or data
// payload cannot be decoded against the matched signature, yields the
// Unparsed sentinel instead of an error.
func (r *Registry) Decode(rec outbound.LogRecord) entity.DecodedEvent {
	if len(rec.Topics) == 0 {
		return entity.Unparsed()
	}
	event, ok := r.signatures[rec.Topics[0]]
	if !ok {
		return entity.Unparsed()
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	// Topic count must match the signature exactly; anything else is a
	// different (colliding or malformed) event.
	if len(rec.Topics)-1 != len(indexed) {
		return entity.Unparsed()
	}

	values := make(map[string]interface{})
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(values, indexed, rec.Topics[1:]); err != nil {
			return entity.Unparsed()
		}
	}

	nonIndexed := event.Inputs.NonIndexed()
	if len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(values, rec.Data); err != nil {
			return entity.Unparsed()
		}
	}

	// Re-assemble in declaration order so callers see arguments the way
	// the signature declares them.
	args := make([]entity.EventArg, 0, len(event.Inputs))
	for _, arg := range event.Inputs {
		v, ok := values[arg.Name]
		if !ok {
			return entity.Unparsed()
		}
		args = append(args, entity.EventArg{Name: arg.Name, Value: v})
	}

	return entity.DecodedEvent{Name: event.Name, Args: args}
}
