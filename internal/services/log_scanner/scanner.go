// Package log_scanner aggregates contract event logs across large height
// ranges by splitting them into provider-sized chunks, fetching chunks with
// a bounded worker pool, and decoding matched records.
//
// A failed chunk never aborts the scan: its bounds are recorded and the
// remaining chunks proceed, so one flaky sub-range cannot poison the whole
// result. The matched-event set is invariant under the chunk size (modulo
// failed ranges).
package log_scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/proxy-audit/internal/domain/entity"
	"github.com/archon-research/proxy-audit/internal/pkg/blockchain/events"
	"github.com/archon-research/proxy-audit/internal/pkg/retry"
	"github.com/archon-research/proxy-audit/internal/ports/outbound"
)

const tracerName = "github.com/archon-research/proxy-audit/internal/services/log_scanner"

// Config holds configuration for the Scanner.
type Config struct {
	// ChunkSize is the maximum height span of a single log query. It is a
	// provider-limit tunable, not a correctness parameter.
	ChunkSize uint64

	// MinChunkSize is the halving floor when the provider rejects a span
	// as too large. At or below this size a rejection becomes a failed
	// sub-range instead of splitting further.
	MinChunkSize uint64

	// Concurrency bounds how many chunks are fetched in parallel.
	Concurrency int

	// Retry is applied per chunk to transient transport failures.
	Retry retry.Policy

	// Logger is the structured logger.
	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		ChunkSize:    50_000,
		MinChunkSize: 256,
		Concurrency:  4,
		Retry:        retry.DefaultPolicy(),
		Logger:       slog.Default(),
	}
}

// Report is the aggregate of a chunked range scan.
type Report struct {
	// TotalMatched counts kept events from chunks that succeeded.
	TotalMatched int `json:"total_matched"`

	// Events holds matched occurrences in ascending (height, index) order
	// regardless of chunk completion order.
	Events []entity.EventOccurrence `json:"events,omitempty"`

	// FailedRanges lists the sub-ranges that could not be scanned, either
	// because the provider failed or because the scan was cancelled
	// before reaching them.
	FailedRanges []outbound.HeightRange `json:"failed_ranges,omitempty"`

	// Incomplete is set when the scan was cancelled mid-flight. The
	// partial results above remain valid; the gaps are in FailedRanges.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Scanner performs chunked, failure-isolated log range scans.
type Scanner struct {
	config   Config
	ledger   outbound.LedgerReader
	registry *events.Registry
	logger   *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(config Config, ledger outbound.LedgerReader, registry *events.Registry) (*Scanner, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}

	defaults := configDefaults()
	if config.ChunkSize == 0 {
		config.ChunkSize = defaults.ChunkSize
	}
	if config.MinChunkSize == 0 {
		config.MinChunkSize = defaults.MinChunkSize
	}
	if config.MinChunkSize > config.ChunkSize {
		config.MinChunkSize = config.ChunkSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Retry.Attempts == 0 {
		config.Retry = defaults.Retry
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Scanner{
		config:   config,
		ledger:   ledger,
		registry: registry,
		logger:   config.Logger.With("component", "log-scanner"),
	}, nil
}

// chunkOutcome is one chunk's private result slot. Workers write only their
// own slot, so accumulation needs no locks; the caller merges after all
// workers settle.
type chunkOutcome struct {
	attempted bool
	failed    bool
	events    []entity.EventOccurrence
}

// ScanRange scans the closed range [from, to] for events emitted by addr.
//
// interesting filters occurrences by decoded event name; an empty slice
// keeps every record, including undecodable ones as the Unparsed sentinel.
// Cancellation returns the partial report with Incomplete set instead of an
// error so the data collected so far is not discarded.
func (s *Scanner) ScanRange(
	ctx context.Context,
	addr common.Address,
	from, to uint64,
	topics [][]common.Hash,
	interesting []string,
) (Report, error) {
	if from > to {
		return Report{}, fmt.Errorf("invalid scan range [%d, %d]", from, to)
	}

	chunks := splitRange(from, to, s.config.ChunkSize)

	start := time.Now()
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "log_scanner.ScanRange",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("scan.address", addr.Hex()),
			attribute.Int64("scan.from", int64(from)),
			attribute.Int64("scan.to", int64(to)),
			attribute.Int("scan.chunks", len(chunks)),
		),
	)
	defer func() {
		span.SetAttributes(attribute.Int64("scan.duration_ms", time.Since(start).Milliseconds()))
		span.End()
	}()

	keep := make(map[string]bool, len(interesting))
	for _, name := range interesting {
		keep[name] = true
	}

	outcomes := make([]chunkOutcome, len(chunks))

	workerCount := s.config.Concurrency
	if workerCount > len(chunks) {
		workerCount = len(chunks)
	}

	indexCh := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexCh {
				if ctx.Err() != nil {
					return
				}
				outcomes[i] = s.scanChunk(ctx, addr, chunks[i], topics, keep)
			}
		}()
	}

	for i := range chunks {
		select {
		case indexCh <- i:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(indexCh)
	wg.Wait()

	// Merge per-chunk slots in chunk order; chunks are ascending and each
	// chunk's events are sorted, so the aggregate is ascending too.
	var report Report
	for i, oc := range outcomes {
		switch {
		case !oc.attempted:
			report.FailedRanges = append(report.FailedRanges, chunks[i])
		case oc.failed:
			report.FailedRanges = append(report.FailedRanges, chunks[i])
		default:
			report.Events = append(report.Events, oc.events...)
		}
	}
	report.TotalMatched = len(report.Events)
	report.Incomplete = ctx.Err() != nil

	s.logger.Info("scan complete",
		"address", addr.Hex(),
		"from", from,
		"to", to,
		"chunks", len(chunks),
		"matched", report.TotalMatched,
		"failedRanges", len(report.FailedRanges),
		"incomplete", report.Incomplete,
		"duration", time.Since(start).Round(time.Millisecond))

	span.SetAttributes(
		attribute.Int("scan.matched", report.TotalMatched),
		attribute.Int("scan.failed_ranges", len(report.FailedRanges)),
		attribute.Bool("scan.incomplete", report.Incomplete),
	)

	return report, nil
}

// scanChunk fetches and decodes one chunk. Failures are contained in the
// returned outcome; they never abort the surrounding scan.
func (s *Scanner) scanChunk(
	ctx context.Context,
	addr common.Address,
	chunk outbound.HeightRange,
	topics [][]common.Hash,
	keep map[string]bool,
) chunkOutcome {
	records, err := s.fetchRange(ctx, addr, chunk, topics)
	if err != nil {
		s.logger.Warn("chunk failed", "from", chunk.From, "to", chunk.To, "error", err)
		return chunkOutcome{attempted: true, failed: true}
	}

	var kept []entity.EventOccurrence
	for _, rec := range records {
		decoded := s.registry.Decode(rec)
		if len(keep) > 0 && !keep[decoded.Name] {
			continue
		}
		kept = append(kept, entity.EventOccurrence{
			Height: rec.Height,
			TxHash: rec.TxHash,
			Index:  rec.Index,
			Event:  decoded,
		})
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Height != kept[j].Height {
			return kept[i].Height < kept[j].Height
		}
		return kept[i].Index < kept[j].Index
	})

	return chunkOutcome{attempted: true, events: kept}
}

// fetchRange fetches one sub-range, retrying transient failures per the
// configured policy and recursively halving on provider range rejections.
func (s *Scanner) fetchRange(
	ctx context.Context,
	addr common.Address,
	r outbound.HeightRange,
	topics [][]common.Hash,
) ([]outbound.LogRecord, error) {
	policy := s.config.Retry
	policy.Retryable = func(err error) bool {
		// Retrying an oversized span verbatim cannot succeed; that case
		// is handled by halving below.
		return !errors.Is(err, outbound.ErrRangeTooLarge)
	}

	var records []outbound.LogRecord
	err := retry.Do(ctx, policy, func() error {
		recs, err := s.ledger.FilterLogs(ctx, outbound.LogQuery{
			Address:    addr,
			FromHeight: r.From,
			ToHeight:   r.To,
			Topics:     topics,
		})
		if err != nil {
			return err
		}
		records = recs
		return nil
	})
	if err == nil {
		return records, nil
	}

	if errors.Is(err, outbound.ErrRangeTooLarge) && r.Size() > s.config.MinChunkSize && r.From < r.To {
		mid := r.From + (r.To-r.From)/2
		s.logger.Debug("range too large, halving", "from", r.From, "to", r.To, "mid", mid)

		left, err := s.fetchRange(ctx, addr, outbound.HeightRange{From: r.From, To: mid}, topics)
		if err != nil {
			return nil, err
		}
		right, err := s.fetchRange(ctx, addr, outbound.HeightRange{From: mid + 1, To: r.To}, topics)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	}

	return nil, err
}

// splitRange cuts [from, to] into consecutive non-overlapping chunks of at
// most chunkSize heights; the last chunk may be shorter.
func splitRange(from, to, chunkSize uint64) []outbound.HeightRange {
	var chunks []outbound.HeightRange
	for start := from; ; {
		end := to
		if to-start+1 > chunkSize {
			end = start + chunkSize - 1
		}
		chunks = append(chunks, outbound.HeightRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}
	return chunks
}
