// Package main provides a CLI tool that audits the history of an
// upgradeable proxy contract: when its code appeared, when an account's
// blacklist flag toggled, and which administrative events were emitted
// along the way.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/proxy-audit/internal/adapters/outbound/ethrpc"
	"github.com/archon-research/proxy-audit/internal/pkg/blockchain"
	"github.com/archon-research/proxy-audit/internal/pkg/blockchain/abis"
	"github.com/archon-research/proxy-audit/internal/pkg/blockchain/events"
	"github.com/archon-research/proxy-audit/internal/pkg/env"
	"github.com/archon-research/proxy-audit/internal/services/contract_probe"
	"github.com/archon-research/proxy-audit/internal/services/log_scanner"
	"github.com/archon-research/proxy-audit/internal/services/proxy_audit"
	"github.com/archon-research/proxy-audit/internal/services/threshold_search"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	rpcURL        string
	address       string
	account       string
	implSlot      string
	fromHeight    uint64
	toHeight      uint64
	historyWindow uint64
	toggleWindow  uint64
	chunkSize     uint64
	concurrency   int
	rateLimit     float64
	verbose       bool
}

func parseFlags(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("proxy-audit", flag.ContinueOnError)
	rpcURL := fs.String("rpc-url", "", "Ethereum JSON-RPC endpoint (or RPC_URL env var)")
	address := fs.String("address", "", "Proxy contract address (required)")
	account := fs.String("account", "", "Account whose blacklist flag is investigated (required)")
	implSlot := fs.String("impl-slot", "", "Implementation storage slot (default: EIP-1967)")
	fromHeight := fs.Uint64("from", 0, "Start height (0 = head minus history window)")
	toHeight := fs.Uint64("to", 0, "End height (0 = current head)")
	historyWindow := fs.Uint64("history-window", env.GetUint64("HISTORY_WINDOW", 200_000), "Heights of observable history when --from is 0")
	toggleWindow := fs.Uint64("toggle-window", env.GetUint64("TOGGLE_WINDOW", 1_000), "Half-width of the scan around a located toggle")
	chunkSize := fs.Uint64("chunk-size", env.GetUint64("CHUNK_SIZE", 50_000), "Max heights per log query")
	concurrency := fs.Int("concurrency", 4, "Parallel log chunk fetches")
	rateLimit := fs.Float64("rate-limit", 20, "RPC requests per second (0 = unlimited)")
	verbose := fs.Bool("verbose", false, "Enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		rpcURL:        *rpcURL,
		address:       *address,
		account:       *account,
		implSlot:      *implSlot,
		fromHeight:    *fromHeight,
		toHeight:      *toHeight,
		historyWindow: *historyWindow,
		toggleWindow:  *toggleWindow,
		chunkSize:     *chunkSize,
		concurrency:   *concurrency,
		rateLimit:     *rateLimit,
		verbose:       *verbose,
	}

	if cfg.rpcURL == "" {
		cfg.rpcURL = env.Get("RPC_URL", "")
	}
	if cfg.rpcURL == "" {
		return cliConfig{}, fmt.Errorf("RPC endpoint not provided (use --rpc-url flag or RPC_URL env var)")
	}
	if !common.IsHexAddress(cfg.address) {
		return cliConfig{}, fmt.Errorf("--address must be a valid hex address")
	}
	if !common.IsHexAddress(cfg.account) {
		return cliConfig{}, fmt.Errorf("--account must be a valid hex address")
	}
	if cfg.toHeight != 0 && cfg.toHeight < cfg.fromHeight {
		return cliConfig{}, fmt.Errorf("--to must be >= --from")
	}

	return cfg, nil
}

func run(args []string) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if cfg.verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down...", "signal", sig)
		cancel()
	}()

	ledger, err := ethrpc.Dial(ctx, cfg.rpcURL, ethrpc.Config{
		RateLimitPerSec: cfg.rateLimit,
		RateBurst:       5,
	})
	if err != nil {
		return fmt.Errorf("connecting to RPC endpoint: %w", err)
	}

	contractABI, err := abis.GetFiatTokenABI()
	if err != nil {
		return fmt.Errorf("loading contract ABI: %w", err)
	}
	registry, err := events.NewDefaultRegistry()
	if err != nil {
		return fmt.Errorf("building event registry: %w", err)
	}

	locator := threshold_search.NewLocator(logger)
	scanner, err := log_scanner.NewScanner(log_scanner.Config{
		ChunkSize:   cfg.chunkSize,
		Concurrency: cfg.concurrency,
		Logger:      logger,
	}, ledger, registry)
	if err != nil {
		return fmt.Errorf("creating scanner: %w", err)
	}
	prober, err := contract_probe.NewProber(ledger, contractABI, logger)
	if err != nil {
		return fmt.Errorf("creating prober: %w", err)
	}

	service, err := proxy_audit.NewService(proxy_audit.Config{
		HistoryWindow: cfg.historyWindow,
		ToggleWindow:  cfg.toggleWindow,
		Logger:        logger,
	}, ledger, locator, scanner, prober, contractABI)
	if err != nil {
		return fmt.Errorf("creating audit service: %w", err)
	}

	var implSlot common.Hash
	if cfg.implSlot != "" {
		implSlot = common.HexToHash(cfg.implSlot)
	} else {
		implSlot = blockchain.EIP1967ImplementationSlot
	}

	report, err := service.Run(ctx, proxy_audit.Params{
		Proxy:              common.HexToAddress(cfg.address),
		Account:            common.HexToAddress(cfg.account),
		ImplementationSlot: implSlot,
		FromHeight:         cfg.fromHeight,
		ToHeight:           cfg.toHeight,
	})
	if err != nil {
		return err
	}

	out, err := report.FormatJSON()
	if err != nil {
		return err
	}
	fmt.Println(out)

	return nil
}
