package walletapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Callers waiting on receipts for longer should supply their own client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the agentkit wallet REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Network identifies the network a wallet is connected to.
type Network struct {
	ProtocolFamily string `json:"protocolFamily"`
	ChainID        string `json:"chainId"`
}

// Wallet describes the wallet bound to one chain.
type Wallet struct {
	Chain   string   `json:"chain"`
	Name    string   `json:"name"`
	Address string   `json:"address,omitempty"`
	Network *Network `json:"network,omitempty"`
}

// Chains lists the configured chains.
type Chains struct {
	Default string   `json:"default"`
	Chains  []string `json:"chains"`
}

// Transaction is an unsent transaction. ChainID is ignored by the server,
// which always uses the chain of the selected wallet.
type Transaction struct {
	To      *common.Address
	Value   *big.Int
	Data    []byte
	ChainID *big.Int
}

// TypedData is an EIP-712 payload.
type TypedData struct {
	Domain      apitypes.TypedDataDomain  `json:"domain"`
	Types       apitypes.Types            `json:"types"`
	PrimaryType string                    `json:"primaryType"`
	Message     apitypes.TypedDataMessage `json:"message"`
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	Status  string             `json:"status"`
	Receipt *coretypes.Receipt `json:"receipt"`
}

// JournalEntry is a recorded wallet operation.
type JournalEntry struct {
	ID          string `json:"id"`
	Operation   string `json:"operation"`
	Provider    string `json:"provider"`
	Chain       string `json:"chain"`
	Address     string `json:"address,omitempty"`
	ChainID     string `json:"chain_id,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Attempts    int    `json:"attempts"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// JournalQuery filters ListJournal. Zero values mean no filter.
type JournalQuery struct {
	Limit      int
	Statuses   []string
	Operations []string
	Chain      string
	Address    string
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("walletapi error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("walletapi error (%d): %s", e.StatusCode, e.Message)
}

type transactionBody struct {
	To      *common.Address `json:"to,omitempty"`
	Value   *hexutil.Big    `json:"value,omitempty"`
	Data    hexutil.Bytes   `json:"data,omitempty"`
	ChainID *hexutil.Big    `json:"chainId,omitempty"`
}

// NewClient creates a client for the wallet API rooted at rawURL. When
// httpClient is nil a client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// AccessToken returns the stored bearer token.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken sets the bearer token sent with every request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// Chains lists the chains the server has wallets for.
func (c *Client) Chains(ctx context.Context) (Chains, error) {
	var out Chains
	if err := c.get(ctx, "/api/v1/chains", nil, &out); err != nil {
		return Chains{}, err
	}
	return out, nil
}

// Wallet describes the wallet on chain, or on the default chain when chain is empty.
func (c *Client) Wallet(ctx context.Context, chain string) (Wallet, error) {
	var out Wallet
	if err := c.get(ctx, "/api/v1/wallet", chainQuery(chain), &out); err != nil {
		return Wallet{}, err
	}
	return out, nil
}

// SignMessage signs an EIP-191 personal message.
func (c *Client) SignMessage(ctx context.Context, chain, message string) (hexutil.Bytes, error) {
	var out struct {
		Signature hexutil.Bytes `json:"signature"`
	}
	body := map[string]string{"message": message}
	if err := c.post(ctx, "/api/v1/wallet/sign-message", chainQuery(chain), body, &out); err != nil {
		return nil, err
	}
	return out.Signature, nil
}

// SignTypedData signs an EIP-712 payload.
func (c *Client) SignTypedData(ctx context.Context, chain string, data TypedData) (hexutil.Bytes, error) {
	var out struct {
		Signature hexutil.Bytes `json:"signature"`
	}
	if err := c.post(ctx, "/api/v1/wallet/sign-typed-data", chainQuery(chain), data, &out); err != nil {
		return nil, err
	}
	return out.Signature, nil
}

// SignTransaction signs tx without broadcasting it.
func (c *Client) SignTransaction(ctx context.Context, chain string, tx Transaction) (hexutil.Bytes, error) {
	var out struct {
		SignedTransaction hexutil.Bytes `json:"signedTransaction"`
	}
	if err := c.post(ctx, "/api/v1/wallet/sign-transaction", chainQuery(chain), tx.body(), &out); err != nil {
		return nil, err
	}
	return out.SignedTransaction, nil
}

// SendTransaction signs and broadcasts tx.
func (c *Client) SendTransaction(ctx context.Context, chain string, tx Transaction) (common.Hash, error) {
	var out struct {
		TransactionHash common.Hash `json:"transactionHash"`
	}
	if err := c.post(ctx, "/api/v1/wallet/send-transaction", chainQuery(chain), tx.body(), &out); err != nil {
		return common.Hash{}, err
	}
	return out.TransactionHash, nil
}

// WaitForReceipt asks the server to wait up to timeout for hash to be mined.
// A zero timeout uses the server limit.
func (c *Client) WaitForReceipt(ctx context.Context, chain string, hash common.Hash, timeout time.Duration) (Receipt, error) {
	query := chainQuery(chain)
	if timeout > 0 {
		if query == nil {
			query = url.Values{}
		}
		query.Set("timeout", timeout.String())
	}
	var out Receipt
	if err := c.get(ctx, "/api/v1/wallet/receipts/"+hash.Hex(), query, &out); err != nil {
		return Receipt{}, err
	}
	return out, nil
}

// ListJournal returns recorded operations, newest first.
func (c *Client) ListJournal(ctx context.Context, q JournalQuery) ([]JournalEntry, error) {
	query := url.Values{}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if len(q.Statuses) > 0 {
		query.Set("status", strings.Join(q.Statuses, ","))
	}
	if len(q.Operations) > 0 {
		query.Set("operation", strings.Join(q.Operations, ","))
	}
	if q.Chain != "" {
		query.Set("chain", q.Chain)
	}
	if q.Address != "" {
		query.Set("address", q.Address)
	}
	var out []JournalEntry
	if err := c.get(ctx, "/api/v1/journal", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetJournalEntry fetches one recorded operation.
func (c *Client) GetJournalEntry(ctx context.Context, id string) (JournalEntry, error) {
	var out JournalEntry
	if err := c.get(ctx, "/api/v1/journal/"+id, nil, &out); err != nil {
		return JournalEntry{}, err
	}
	return out, nil
}

func (tx Transaction) body() transactionBody {
	return transactionBody{
		To:      tx.To,
		Value:   (*hexutil.Big)(tx.Value),
		Data:    tx.Data,
		ChainID: (*hexutil.Big)(tx.ChainID),
	}
}

func chainQuery(chain string) url.Values {
	if chain == "" {
		return nil
	}
	return url.Values{"chain": []string{chain}}
}

func (c *Client) post(ctx context.Context, endpoint string, query url.Values, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, query, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
