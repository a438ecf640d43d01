package entity

import (
	"github.com/ethereum/go-ethereum/common"
)

// UnparsedEventName is the sentinel name for records that matched no
// registered signature or whose payload could not be decoded.
const UnparsedEventName = "<unparsed>"

// EventArg is one named, decoded event argument. Args keep the declaration
// order of the event signature, indexed and non-indexed interleaved as
// declared.
type EventArg struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// DecodedEvent is a log record mapped to a named event. A record that
// cannot be decoded is represented by the Unparsed sentinel rather than an
// error: decoding is total over arbitrary log records.
type DecodedEvent struct {
	Name string     `json:"name"`
	Args []EventArg `json:"args,omitempty"`
}

// Unparsed returns the sentinel event for an undecodable record.
func Unparsed() DecodedEvent {
	return DecodedEvent{Name: UnparsedEventName}
}

// IsUnparsed reports whether the event is the Unparsed sentinel.
func (e DecodedEvent) IsUnparsed() bool {
	return e.Name == UnparsedEventName
}

// EventOccurrence is a decoded event together with its location on chain.
type EventOccurrence struct {
	Height uint64      `json:"height"`
	TxHash common.Hash `json:"tx_hash"`

	// Index is the record's position within its block; occurrences are
	// ordered by (Height, Index).
	Index uint `json:"index"`

	Event DecodedEvent `json:"event"`
}
