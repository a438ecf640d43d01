// Package ethrpc implements the LedgerReader port over a standard Ethereum
// JSON-RPC endpoint using go-ethereum's ethclient.
package ethrpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/archon-research/proxy-audit/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.LedgerReader.
var _ outbound.LedgerReader = (*Client)(nil)

// Config holds configuration for the RPC-backed ledger reader.
type Config struct {
	// RateLimitPerSec throttles outgoing requests. Zero disables
	// throttling.
	RateLimitPerSec float64

	// RateBurst is the limiter burst size; defaults to 1 when throttled.
	RateBurst int

	// CallTimeout bounds each individual RPC call. Zero means the
	// caller's context is the only bound.
	CallTimeout time.Duration
}

// ConfigDefaults returns a config suited to public rate-limited endpoints.
func ConfigDefaults() Config {
	return Config{
		RateLimitPerSec: 20,
		RateBurst:       5,
		CallTimeout:     30 * time.Second,
	}
}

// Client adapts *ethclient.Client to the LedgerReader port. It performs no
// retries: the core owns retry and narrowing decisions, so every provider
// failure surfaces as-is (classified as ErrRangeTooLarge where applicable).
type Client struct {
	eth     *ethclient.Client
	limiter *rate.Limiter
	config  Config
}

// NewClient wraps an existing ethclient connection.
func NewClient(eth *ethclient.Client, config Config) (*Client, error) {
	if eth == nil {
		return nil, errors.New("eth client is required")
	}

	var limiter *rate.Limiter
	if config.RateLimitPerSec > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimitPerSec), burst)
	}

	return &Client{
		eth:     eth,
		limiter: limiter,
		config:  config,
	}, nil
}

// Dial connects to an HTTP or WebSocket JSON-RPC endpoint.
func Dial(ctx context.Context, url string, config Config) (*Client, error) {
	if url == "" {
		return nil, errors.New("url is required")
	}
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return NewClient(ethclient.NewClient(rpcClient), config)
}

// CodeExists reports whether addr held contract code at the given height.
func (c *Client) CodeExists(ctx context.Context, addr common.Address, height uint64) (bool, error) {
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	code, err := c.eth.CodeAt(ctx, addr, heightArg(height))
	if err != nil {
		return false, fmt.Errorf("eth_getCode at height %d: %w", height, err)
	}
	return len(code) > 0, nil
}

// CallView executes a read-only call against historical state.
func (c *Client) CallView(ctx context.Context, addr common.Address, calldata []byte, height uint64) ([]byte, error) {
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	msg := ethereum.CallMsg{To: &addr, Data: calldata}
	ret, err := c.eth.CallContract(ctx, msg, heightArg(height))
	if err != nil {
		return nil, fmt.Errorf("eth_call at height %d: %w", height, err)
	}
	return ret, nil
}

// StorageWordAt reads one storage word at the given height.
func (c *Client) StorageWordAt(ctx context.Context, addr common.Address, slot common.Hash, height uint64) (common.Hash, error) {
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	defer cancel()

	word, err := c.eth.StorageAt(ctx, addr, slot, heightArg(height))
	if err != nil {
		return common.Hash{}, fmt.Errorf("eth_getStorageAt at height %d: %w", height, err)
	}
	return common.BytesToHash(word), nil
}

// FilterLogs fetches log records for the query, classifying provider span
// rejections as ErrRangeTooLarge.
func (c *Client) FilterLogs(ctx context.Context, query outbound.LogQuery) ([]outbound.LogRecord, error) {
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: heightArg(query.FromHeight),
		ToBlock:   heightArg(query.ToHeight),
		Addresses: []common.Address{query.Address},
		Topics:    query.Topics,
	})
	if err != nil {
		if isRangeTooLarge(err) {
			return nil, fmt.Errorf("%w: [%d, %d]: %v",
				outbound.ErrRangeTooLarge, query.FromHeight, query.ToHeight, err)
		}
		return nil, fmt.Errorf("eth_getLogs [%d, %d]: %w", query.FromHeight, query.ToHeight, err)
	}

	records := make([]outbound.LogRecord, len(logs))
	for i, l := range logs {
		records[i] = toLogRecord(l)
	}
	return records, nil
}

// CurrentHeight returns the head height.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	ctx, cancel, err := c.prepare(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	height, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return height, nil
}

// prepare applies the rate limit and per-call timeout.
func (c *Client) prepare(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}
	if c.config.CallTimeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

func toLogRecord(l types.Log) outbound.LogRecord {
	return outbound.LogRecord{
		Height:  l.BlockNumber,
		TxHash:  l.TxHash,
		Address: l.Address,
		Topics:  l.Topics,
		Data:    l.Data,
		Index:   l.Index,
	}
}

func heightArg(height uint64) *big.Int {
	return new(big.Int).SetUint64(height)
}

// rangeTooLargeMarkers are substrings providers use when rejecting a log
// query whose span or result size exceeds their cap. There is no standard
// error code for this, so classification is by message.
var rangeTooLargeMarkers = []string{
	"query returned more than",  // infura / geth result cap
	"log response size exceeded", // alchemy
	"block range is too wide",    // quicknode
	"block range too large",
	"exceed maximum block range",
	"query timeout exceeded",
}

func isRangeTooLarge(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range rangeTooLargeMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
