package proxy_audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/proxy-audit/internal/domain/entity"
	"github.com/archon-research/proxy-audit/internal/services/log_scanner"
	"github.com/archon-research/proxy-audit/internal/ports/outbound"
)

// Report is the structured outcome of one audit run. Every section carries
// its own exact-vs-indeterminate annotations (search outcomes record
// indeterminate exhaustion, probe fields record Unknown, scans record
// failed sub-ranges); nothing in the report is a guessed value.
type Report struct {
	Proxy   common.Address `json:"proxy"`
	Account common.Address `json:"account"`

	// Head is the ledger height the audit was anchored to.
	Head uint64 `json:"head"`

	// Range is the observable history window the searches covered.
	Range outbound.HeightRange `json:"range"`

	// Implementation is the address resolved from the implementation
	// slot at Head. Zero with ImplementationKnown=true means the slot is
	// genuinely empty; ImplementationKnown=false means the read failed.
	Implementation      common.Address `json:"implementation"`
	ImplementationKnown bool           `json:"implementation_known"`

	// CurrentState is the best-effort probe of the proxy at Head.
	CurrentState entity.ProbeResult `json:"current_state"`

	// CodeBirth locates the height the proxy's code first appeared.
	CodeBirth entity.SearchOutcome `json:"code_birth"`

	// FlagToggle locates the height the account's blacklist flag turned
	// on. Reason explains a negative outcome: not_active, skipped, or
	// predates_history.
	FlagToggle entity.SearchOutcome `json:"flag_toggle"`

	// ToggleWindowScan covers the heights around the located toggle.
	ToggleWindowScan *log_scanner.Report `json:"toggle_window_scan,omitempty"`

	// LifetimeScan covers the code lifetime, filtered to upgrade and
	// ownership events.
	LifetimeScan *log_scanner.Report `json:"lifetime_scan,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// Exact reports whether every part of the audit completed without
// indeterminate probes, unknown fields, or failed scan ranges.
func (r *Report) Exact() bool {
	if r.CodeBirth.ExhaustedByIndeterminate || r.FlagToggle.ExhaustedByIndeterminate {
		return false
	}
	if !r.ImplementationKnown || len(r.CurrentState.UnknownFields()) > 0 {
		return false
	}
	for _, scan := range []*log_scanner.Report{r.ToggleWindowScan, r.LifetimeScan} {
		if scan != nil && (scan.Incomplete || len(scan.FailedRanges) > 0) {
			return false
		}
	}
	return true
}

// FormatJSON returns the report as indented JSON.
func (r *Report) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}
	return string(data), nil
}
