// Package proxy_audit composes the threshold search, log scanner, and
// contract probe into the two historical analyses: locating the height a
// proxy's code first appeared and locating the height an account's
// blacklist flag toggled on, together with the event scans around them.
package proxy_audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/proxy-audit/internal/domain/entity"
	"github.com/archon-research/proxy-audit/internal/pkg/blockchain"
	"github.com/archon-research/proxy-audit/internal/services/contract_probe"
	"github.com/archon-research/proxy-audit/internal/services/log_scanner"
	"github.com/archon-research/proxy-audit/internal/services/threshold_search"
	"github.com/archon-research/proxy-audit/internal/ports/outbound"
)

const tracerName = "github.com/archon-research/proxy-audit/internal/services/proxy_audit"

// Events decoded around a located flag toggle.
var toggleWindowEvents = []string{"Blacklisted", "UnBlacklisted"}

// Events decoded across the code lifetime: proxy administration history.
var lifetimeEvents = []string{"Upgraded", "AdminChanged", "OwnershipTransferred"}

// Config holds configuration for the audit service.
type Config struct {
	// HistoryWindow is how many heights before head count as observable
	// history when the caller gives no explicit range.
	HistoryWindow uint64

	// ToggleWindow is the half-width of the scan around a located toggle.
	ToggleWindow uint64

	// Logger is the structured logger.
	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		HistoryWindow: 200_000,
		ToggleWindow:  1_000,
		Logger:        slog.Default(),
	}
}

// Params identifies the target of one audit run.
type Params struct {
	// Proxy is the audited proxy contract.
	Proxy common.Address

	// Account is the account whose blacklist flag is investigated.
	Account common.Address

	// ImplementationSlot is the storage slot holding the implementation
	// address. Zero selects the EIP-1967 slot.
	ImplementationSlot common.Hash

	// FromHeight/ToHeight bound observable history. Zero values are
	// derived from the head and Config.HistoryWindow.
	FromHeight uint64
	ToHeight   uint64
}

// Service runs proxy audits against a ledger port.
type Service struct {
	config  Config
	ledger  outbound.LedgerReader
	locator *threshold_search.Locator
	scanner *log_scanner.Scanner
	prober  *contract_probe.Prober

	contractABI *abi.ABI
	logger      *slog.Logger
}

// NewService creates the audit service.
func NewService(
	config Config,
	ledger outbound.LedgerReader,
	locator *threshold_search.Locator,
	scanner *log_scanner.Scanner,
	prober *contract_probe.Prober,
	contractABI *abi.ABI,
) (*Service, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if locator == nil {
		return nil, fmt.Errorf("locator cannot be nil")
	}
	if scanner == nil {
		return nil, fmt.Errorf("scanner cannot be nil")
	}
	if prober == nil {
		return nil, fmt.Errorf("prober cannot be nil")
	}
	if contractABI == nil {
		return nil, fmt.Errorf("contractABI cannot be nil")
	}

	defaults := configDefaults()
	if config.HistoryWindow == 0 {
		config.HistoryWindow = defaults.HistoryWindow
	}
	if config.ToggleWindow == 0 {
		config.ToggleWindow = defaults.ToggleWindow
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config:      config,
		ledger:      ledger,
		locator:     locator,
		scanner:     scanner,
		prober:      prober,
		contractABI: contractABI,
		logger:      config.Logger.With("component", "proxy-audit"),
	}, nil
}

// Run executes the full audit. The only fatal failure is being unable to
// anchor the analysis at all (no current height); every partial failure
// below that is absorbed into the report's annotations.
func (s *Service) Run(ctx context.Context, params Params) (*Report, error) {
	start := time.Now()
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "proxy_audit.Run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("audit.proxy", params.Proxy.Hex())),
	)
	defer span.End()

	head, err := s.ledger.CurrentHeight(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get current height")
		return nil, fmt.Errorf("getting current height: %w", err)
	}

	from, to := s.historyRange(params, head)
	slot := params.ImplementationSlot
	if slot == (common.Hash{}) {
		slot = blockchain.EIP1967ImplementationSlot
	}

	s.logger.Info("starting audit",
		"proxy", params.Proxy.Hex(),
		"account", params.Account.Hex(),
		"head", head,
		"from", from,
		"to", to)

	report := &Report{
		Proxy:     params.Proxy,
		Account:   params.Account,
		Head:      head,
		Range:     outbound.HeightRange{From: from, To: to},
		StartedAt: start,
	}

	// Current state snapshot, best effort.
	report.CurrentState = s.prober.Probe(ctx, params.Proxy, contract_probe.DefaultFields(params.Account), to)
	impl, err := s.prober.ResolveImplementation(ctx, params.Proxy, slot, to)
	if err == nil && impl == (common.Address{}) && params.ImplementationSlot == (common.Hash{}) {
		// Pre-EIP-1967 OpenZeppelin proxies record the implementation in
		// an older slot.
		impl, err = s.prober.ResolveImplementation(ctx, params.Proxy, blockchain.OldOpenZeppelinImplementationSlot, to)
	}
	if err != nil {
		s.logger.Warn("implementation resolution failed", "error", err)
	} else {
		report.Implementation = impl
		report.ImplementationKnown = true
	}

	// Code birth.
	codeBirth, err := s.locator.FindThreshold(ctx, s.codeExistsPredicate(params.Proxy), from, to)
	if err != nil {
		report.CodeBirth = codeBirth
		return report, fmt.Errorf("code birth search: %w", err)
	}
	report.CodeBirth = codeBirth

	// Flag toggle, only when the flag is confirmed active now and
	// confirmed inactive at code birth.
	report.FlagToggle = s.locateFlagToggle(ctx, params, report)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("audit cancelled: %w", err)
	}

	// Event scans.
	if report.FlagToggle.Found {
		windowFrom, windowTo := clampWindow(report.FlagToggle.Height, s.config.ToggleWindow, from, to)
		scan, err := s.scanner.ScanRange(ctx, params.Proxy, windowFrom, windowTo, nil, toggleWindowEvents)
		if err != nil {
			s.logger.Warn("toggle window scan failed", "error", err)
		} else {
			report.ToggleWindowScan = &scan
		}
	}

	lifetimeFrom := from
	if report.CodeBirth.Found {
		lifetimeFrom = report.CodeBirth.Height
	}
	scan, err := s.scanner.ScanRange(ctx, params.Proxy, lifetimeFrom, to, nil, lifetimeEvents)
	if err != nil {
		s.logger.Warn("lifetime scan failed", "error", err)
	} else {
		report.LifetimeScan = &scan
	}

	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)

	span.SetAttributes(
		attribute.Bool("audit.code_birth_found", report.CodeBirth.Found),
		attribute.Bool("audit.flag_toggle_found", report.FlagToggle.Found),
		attribute.Bool("audit.exact", report.Exact()),
	)

	s.logger.Info("audit complete",
		"codeBirthFound", report.CodeBirth.Found,
		"flagToggleFound", report.FlagToggle.Found,
		"exact", report.Exact(),
		"duration", report.Duration.Round(time.Millisecond))

	return report, nil
}

// locateFlagToggle runs the toggle search when its preconditions hold. A
// flag that cannot be confirmed active yields a skipped outcome: the audit
// never substitutes a guess for a failed read.
func (s *Service) locateFlagToggle(ctx context.Context, params Params, report *Report) entity.SearchOutcome {
	flagNow, ok := report.CurrentState.Bool("is_blacklisted")
	if !ok {
		s.logger.Warn("flag state unknown at head, skipping toggle search")
		return entity.SearchOutcome{Reason: entity.ReasonSkipped}
	}
	if !flagNow {
		return entity.SearchOutcome{Reason: entity.ReasonNotActive}
	}
	if !report.CodeBirth.Found {
		s.logger.Warn("code birth not located, skipping toggle search")
		return entity.SearchOutcome{
			Reason:                   entity.ReasonSkipped,
			ExhaustedByIndeterminate: report.CodeBirth.ExhaustedByIndeterminate,
		}
	}

	pred := s.flagPredicate(params.Proxy, params.Account)
	birth := report.CodeBirth.Height

	// The toggle search is only meaningful if the flag was off when the
	// code appeared. Already-on means the transition predates observable
	// history; an unconfirmed read means the search cannot be anchored.
	switch pred(ctx, birth) {
	case entity.True:
		return entity.SearchOutcome{Reason: entity.ReasonPredatesHistory, Probes: 1}
	case entity.Indeterminate:
		return entity.SearchOutcome{
			Reason:                   entity.ReasonSkipped,
			ExhaustedByIndeterminate: true,
			Probes:                   1,
		}
	}

	lo := birth
	if lo < report.Range.To {
		lo = birth + 1
	}
	outcome, err := s.locator.FindThreshold(ctx, pred, lo, report.Range.To)
	if err != nil {
		s.logger.Warn("flag toggle search aborted", "error", err)
	}
	outcome.Probes++ // the anchor probe at code birth
	return outcome
}

func (s *Service) codeExistsPredicate(addr common.Address) threshold_search.Predicate {
	return func(ctx context.Context, height uint64) entity.Tristate {
		exists, err := s.ledger.CodeExists(ctx, addr, height)
		if err != nil {
			s.logger.Debug("code probe indeterminate", "height", height, "error", err)
			return entity.Indeterminate
		}
		return entity.FromBool(exists)
	}
}

func (s *Service) flagPredicate(addr, account common.Address) threshold_search.Predicate {
	return func(ctx context.Context, height uint64) entity.Tristate {
		calldata, err := s.contractABI.Pack("isBlacklisted", account)
		if err != nil {
			s.logger.Warn("flag calldata pack failed", "error", err)
			return entity.Indeterminate
		}
		ret, err := s.ledger.CallView(ctx, addr, calldata, height)
		if err != nil {
			s.logger.Debug("flag probe indeterminate", "height", height, "error", err)
			return entity.Indeterminate
		}
		unpacked, err := s.contractABI.Unpack("isBlacklisted", ret)
		if err != nil || len(unpacked) == 0 {
			// A malformed return (e.g. calling into a pre-flag
			// implementation) is not a domain answer either way.
			return entity.Indeterminate
		}
		flagged, ok := unpacked[0].(bool)
		if !ok {
			return entity.Indeterminate
		}
		return entity.FromBool(flagged)
	}
}

// historyRange derives the observable history bounds from params and head.
func (s *Service) historyRange(params Params, head uint64) (uint64, uint64) {
	to := params.ToHeight
	if to == 0 || to > head {
		to = head
	}
	from := params.FromHeight
	if from == 0 {
		if to > s.config.HistoryWindow {
			from = to - s.config.HistoryWindow
		}
	}
	if from > to {
		from = to
	}
	return from, to
}

// clampWindow bounds [center-delta, center+delta] to [lo, hi].
func clampWindow(center, delta, lo, hi uint64) (uint64, uint64) {
	from := lo
	if center > delta && center-delta > lo {
		from = center - delta
	}
	to := center + delta
	if to > hi {
		to = hi
	}
	return from, to
}
