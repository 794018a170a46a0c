package journal

import (
	"net/http"

	xerrors "github.com/jojomensah89/agentkit/internal/errors"
)

// Operation 表示被记录的钱包操作类型。
type Operation string

const (
	OpSignMessage     Operation = "sign_message"
	OpSignTypedData   Operation = "sign_typed_data"
	OpSignTransaction Operation = "sign_transaction"
	OpSendTransaction Operation = "send_transaction"
	OpWaitForReceipt  Operation = "wait_for_receipt"
)

// Status 表示操作记录的状态。
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	// StatusPending 表示交易已广播但尚未确认。
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
)

// Entry 描述一次钱包操作的记录。
type Entry struct {
	ID          string    `json:"id"`
	Operation   Operation `json:"operation"`
	Provider    string    `json:"provider"`
	Chain       string    `json:"chain"`
	Address     string    `json:"address,omitempty"`
	ChainID     string    `json:"chain_id,omitempty"`
	TxHash      string    `json:"tx_hash,omitempty"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	Attempts    int       `json:"attempts"`
	CreatedAt   int64     `json:"created_at"`
	UpdatedAt   int64     `json:"updated_at"`
}

// StatusUpdate 描述对已有记录的状态变更。
type StatusUpdate struct {
	Status      Status
	Error       string
	BlockNumber uint64
	Attempts    int
}

const (
	CodeEntryNotFound xerrors.Code = "JOURNAL_ENTRY_NOT_FOUND"
	CodeEntryConflict xerrors.Code = "JOURNAL_ENTRY_CONFLICT"
)

var (
	// ErrEntryNotFound 表示指定的记录不存在。
	ErrEntryNotFound = xerrors.New(CodeEntryNotFound, "journal entry not found")
	// ErrEntryConflict 表示记录 ID 已存在。
	ErrEntryConflict = xerrors.New(CodeEntryConflict, "journal entry already exists", xerrors.WithSeverity(xerrors.SeverityWarning))
)

func init() {
	xerrors.Register(CodeEntryNotFound, xerrors.Attributes{
		Message:    "journal entry not found",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusNotFound,
	})
	xerrors.Register(CodeEntryConflict, xerrors.Attributes{
		Message:    "journal entry already exists",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusConflict,
	})
}

// IsValidStatus 检查状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusPending, StatusConfirmed, StatusReverted:
		return true
	default:
		return false
	}
}

// IsValidOperation 检查操作类型是否受支持。
func IsValidOperation(op Operation) bool {
	switch op {
	case OpSignMessage, OpSignTypedData, OpSignTransaction, OpSendTransaction, OpWaitForReceipt:
		return true
	default:
		return false
	}
}

// Terminal 表示状态不会再发生变化。
func (s Status) Terminal() bool {
	return s != StatusPending
}

func cloneEntry(entry *Entry) *Entry {
	clone := *entry
	return &clone
}
