package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	coretypes "github.com/ethereum/go-ethereum/core/types"

	xerrors "github.com/jojomensah89/agentkit/internal/errors"
	"github.com/jojomensah89/agentkit/internal/journal"
	"github.com/jojomensah89/agentkit/internal/web3"
)

const maxBodyBytes = 1 << 20

// CodeUpstreamFailure 标记来自节点或签名器的未分类错误。
const CodeUpstreamFailure xerrors.Code = "UPSTREAM_FAILURE"

// WalletInfo 是 GET /api/v1/wallet 的响应。
type WalletInfo struct {
	Chain   string        `json:"chain"`
	Name    string        `json:"name"`
	Address string        `json:"address,omitempty"`
	Network *web3.Network `json:"network,omitempty"`
}

// ChainsResponse 列出已配置的链。
type ChainsResponse struct {
	Default string   `json:"default"`
	Chains  []string `json:"chains"`
}

// SignMessageRequest 是消息签名请求体。
type SignMessageRequest struct {
	Message string `json:"message"`
}

// TransactionRequest 是交易签名与发送的请求体，数值字段支持十进制或 0x 十六进制字符串。
type TransactionRequest struct {
	To      *common.Address       `json:"to,omitempty"`
	Value   *math.HexOrDecimal256 `json:"value,omitempty"`
	Data    hexutil.Bytes         `json:"data,omitempty"`
	ChainID *math.HexOrDecimal256 `json:"chainId,omitempty"`
}

// SignatureResponse 返回签名结果。
type SignatureResponse struct {
	Signature hexutil.Bytes `json:"signature"`
}

// SignedTransactionResponse 返回已签名的原始交易。
type SignedTransactionResponse struct {
	SignedTransaction hexutil.Bytes `json:"signedTransaction"`
}

// SendTransactionResponse 返回已广播交易的哈希。
type SendTransactionResponse struct {
	TransactionHash common.Hash `json:"transactionHash"`
}

// ReceiptResponse 返回交易回执。
type ReceiptResponse struct {
	Status  journal.Status     `json:"status"`
	Receipt *coretypes.Receipt `json:"receipt"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r TransactionRequest) toWeb3() web3.TransactionRequest {
	tx := web3.TransactionRequest{To: r.To, Data: r.Data}
	if r.Value != nil {
		tx.Value = (*big.Int)(r.Value)
	}
	if r.ChainID != nil {
		tx.ChainID = (*big.Int)(r.ChainID)
	}
	return tx
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChains(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ChainsResponse{
		Default: s.wallets.DefaultChain(),
		Chains:  s.wallets.Chains(),
	})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	chain, p, err := s.provider(r)
	if err != nil {
		writeError(w, err)
		return
	}
	info := WalletInfo{Chain: chain, Name: p.GetName(), Address: p.GetAddress()}
	if network, err := p.GetNetwork(); err == nil {
		info.Network = &network
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSignMessage(w http.ResponseWriter, r *http.Request) {
	_, p, err := s.provider(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req SignMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sig, err := p.SignMessage(r.Context(), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SignatureResponse{Signature: sig})
}

func (s *Server) handleSignTypedData(w http.ResponseWriter, r *http.Request) {
	_, p, err := s.provider(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var payload web3.TypedDataPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(payload.PrimaryType) == "" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "primaryType is required"))
		return
	}
	sig, err := p.SignTypedData(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SignatureResponse{Signature: sig})
}

func (s *Server) handleSignTransaction(w http.ResponseWriter, r *http.Request) {
	_, p, err := s.provider(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req TransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	raw, err := p.SignTransaction(r.Context(), req.toWeb3())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SignedTransactionResponse{SignedTransaction: raw})
}

func (s *Server) handleSendTransaction(w http.ResponseWriter, r *http.Request) {
	_, p, err := s.provider(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req TransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	hash, err := p.SendTransaction(r.Context(), req.toWeb3())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SendTransactionResponse{TransactionHash: hash})
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	_, p, err := s.provider(r)
	if err != nil {
		writeError(w, err)
		return
	}
	raw := r.PathValue("hash")
	decoded, err := hexutil.Decode(raw)
	if err != nil || len(decoded) != common.HashLength {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "invalid transaction hash"))
		return
	}
	wait, err := s.receiptWait(r.URL.Query().Get("timeout"))
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	receipt, err := p.WaitForTransactionReceipt(ctx, common.BytesToHash(decoded))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReceiptResponse{Status: journal.ReceiptStatus(receipt), Receipt: receipt})
}

func (s *Server) handleJournalList(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "journal is not enabled"))
		return
	}
	query := r.URL.Query()
	opts := []journal.ListOption{
		journal.WithChain(query.Get("chain")),
		journal.WithAddress(query.Get("address")),
	}
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts = append(opts, journal.WithLimit(parsed))
		}
	}
	for _, status := range splitList(query["status"]) {
		opts = append(opts, journal.WithStatuses(journal.Status(status)))
	}
	for _, op := range splitList(query["operation"]) {
		opts = append(opts, journal.WithOperations(journal.Operation(op)))
	}

	entries, err := s.journal.List(r.Context(), journal.BuildListOptions(opts...))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleJournalDetail(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "journal is not enabled"))
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "missing journal entry id"))
		return
	}
	entry, err := s.journal.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// provider 根据 ?chain= 参数选择钱包，未指定时使用默认链。
func (s *Server) provider(r *http.Request) (string, web3.EvmWalletProvider, error) {
	if s.wallets == nil {
		return "", nil, xerrors.New(xerrors.CodeInitializationFailure, "wallet providers are not initialised")
	}
	chain := strings.TrimSpace(r.URL.Query().Get("chain"))
	if chain == "" {
		p, err := s.wallets.Default()
		if err != nil {
			return "", nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "default wallet unavailable")
		}
		return s.wallets.DefaultChain(), p, nil
	}
	p, ok := s.wallets.Provider(chain)
	if !ok {
		return "", nil, xerrors.New(xerrors.CodeNotFound, "unknown chain "+chain)
	}
	return chain, p, nil
}

// receiptWait 解析 timeout 参数，接受 Go 时长格式或整数秒，并以 maxReceiptWait 为上限。
func (s *Server) receiptWait(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.maxReceiptWait, nil
	}
	wait, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, xerrors.New(xerrors.CodeInvalidArgument, "invalid timeout "+raw)
		}
		wait = time.Duration(secs) * time.Second
	}
	if wait <= 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "timeout must be positive")
	}
	if wait > s.maxReceiptWait {
		wait = s.maxReceiptWait
	}
	return wait, nil
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}

func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError 将错误映射为 HTTP 状态码，未分类的下游错误视为 502。
func writeError(w http.ResponseWriter, err error) {
	status := xerrors.HTTPStatusOf(err, http.StatusBadGateway)
	code := xerrors.CodeOf(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, xerrors.CodeTimeout
	case errors.Is(err, context.Canceled):
		status, code = http.StatusServiceUnavailable, xerrors.CodeTimeout
	case code == xerrors.CodeUnknown:
		code = CodeUpstreamFailure
	}
	message := err.Error()
	if e, ok := xerrors.From(err); ok && e.Message() != "" {
		message = e.Message()
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: string(code), Message: message}})
}
