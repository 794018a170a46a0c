package ethereum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/jojomensah89/agentkit/internal/web3"
)

// DefaultPollInterval is how often a pending receipt is re-queried.
const DefaultPollInterval = time.Second

// ReceiptReader mirrors the single ethclient method needed to await receipts.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error)
}

// ReceiptClient polls a node until a transaction receipt is available.
type ReceiptClient struct {
	reader   ReceiptReader
	interval time.Duration
	closer   func()
}

var _ web3.ReceiptClient = (*ReceiptClient)(nil)

// NewReceiptClient wraps an existing reader.
func NewReceiptClient(reader ReceiptReader, interval time.Duration) *ReceiptClient {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &ReceiptClient{reader: reader, interval: interval}
}

// DialReceiptClient connects to the chain's RPC endpoint over plain HTTP and
// polls at DefaultPollInterval.
func DialReceiptClient(ctx context.Context, chain web3.Chain) (web3.ReceiptClient, error) {
	return NewReceiptClientFactory(DefaultPollInterval, nil)(ctx, chain)
}

// NewReceiptClientFactory returns a web3.ReceiptClientFactory that dials a
// fresh HTTP client per call. A nil httpClient uses http.DefaultClient.
func NewReceiptClientFactory(interval time.Duration, httpClient *http.Client) web3.ReceiptClientFactory {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return func(ctx context.Context, chain web3.Chain) (web3.ReceiptClient, error) {
		endpoint := strings.TrimSpace(chain.RPCURL)
		if endpoint == "" {
			return nil, fmt.Errorf("chain %s has no rpc url", chainLabel(chain))
		}
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse rpc url: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return nil, fmt.Errorf("receipt client requires an http rpc url, got %q", parsed.Scheme)
		}

		rpcClient, err := gethrpc.DialOptions(ctx, endpoint, gethrpc.WithHTTPClient(httpClient))
		if err != nil {
			return nil, fmt.Errorf("dial receipt endpoint: %w", err)
		}
		eth := ethclient.NewClient(rpcClient)
		client := NewReceiptClient(eth, interval)
		client.closer = eth.Close
		return client, nil
	}
}

// WaitForTransactionReceipt blocks until the receipt for hash is available or
// ctx is done. Errors other than "not found" are returned unchanged.
func (c *ReceiptClient) WaitForTransactionReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		receipt, err := c.reader.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, gethcore.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases the connection opened by the factory.
func (c *ReceiptClient) Close() {
	if c == nil || c.closer == nil {
		return
	}
	c.closer()
	c.closer = nil
}

func chainLabel(chain web3.Chain) string {
	if chain.Name != "" {
		return chain.Name
	}
	if chain.ID != nil {
		return chain.ID.String()
	}
	return "<unnamed>"
}
