package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	driver "github.com/go-sql-driver/mysql"

	xerrors "github.com/jojomensah89/agentkit/internal/errors"
	"github.com/jojomensah89/agentkit/internal/journal"
)

const journalColumns = `id, operation, provider, chain, address, chain_id, tx_hash, status, error, block_number, attempts, created_at, updated_at`

// mysqlDuplicateEntry 是 MySQL 唯一键冲突的错误号。
const mysqlDuplicateEntry = 1062

// JournalRepository 使用 MySQL 实现 journal.Store。
type JournalRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ journal.Store = (*JournalRepository)(nil)

// NewJournalRepository 创建连接池并执行迁移。
func NewJournalRepository(ctx context.Context, cfg Config) (*JournalRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开操作日志数据库失败")
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "迁移操作日志数据库失败")
	}
	return newJournalRepository(db), nil
}

func newJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db, now: time.Now}
}

// Append 写入一条新记录。
func (r *JournalRepository) Append(ctx context.Context, entry *journal.Entry) error {
	if entry == nil || entry.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "记录 ID 不能为空")
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = r.now().Unix()
	}
	if entry.UpdatedAt == 0 {
		entry.UpdatedAt = entry.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO wallet_journal (`+journalColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		string(entry.Operation),
		entry.Provider,
		entry.Chain,
		entry.Address,
		entry.ChainID,
		strings.ToLower(entry.TxHash),
		string(entry.Status),
		entry.Error,
		entry.BlockNumber,
		entry.Attempts,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *driver.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return journal.ErrEntryConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入操作记录失败")
	}
	return nil
}

// Get 返回指定记录。
func (r *JournalRepository) Get(ctx context.Context, id string) (*journal.Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+journalColumns+` FROM wallet_journal WHERE id = ?`, id)
	return scanEntry(row)
}

// FindByTxHash 返回广播该交易的 send_transaction 记录。
func (r *JournalRepository) FindByTxHash(ctx context.Context, hash string) (*journal.Entry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+journalColumns+` FROM wallet_journal
        WHERE operation = ? AND tx_hash = ? ORDER BY seq DESC LIMIT 1`,
		string(journal.OpSendTransaction), strings.ToLower(hash))
	return scanEntry(row)
}

// UpdateStatus 更新记录状态。区块号与尝试次数只增不减。
func (r *JournalRepository) UpdateStatus(ctx context.Context, id string, update journal.StatusUpdate) error {
	if !journal.IsValidStatus(update.Status) {
		return xerrors.New(xerrors.CodeInvalidArgument, "非法的记录状态: "+string(update.Status))
	}
	result, err := r.db.ExecContext(ctx, `UPDATE wallet_journal
        SET status = ?, error = ?, block_number = GREATEST(block_number, ?), attempts = GREATEST(attempts, ?), updated_at = ?
        WHERE id = ?`,
		string(update.Status), update.Error, update.BlockNumber, update.Attempts, r.now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新操作记录失败")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取影响行数失败")
	}
	if affected > 0 {
		return nil
	}

	// 值未变化时 MySQL 也会返回 0 行，需要区分记录不存在的情况。
	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM wallet_journal WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return journal.ErrEntryNotFound
	}
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询操作记录失败")
	}
	return nil
}

// List 按写入顺序倒序返回满足条件的记录。
func (r *JournalRepository) List(ctx context.Context, opts journal.ListOptions) ([]*journal.Entry, error) {
	opts.Normalize()

	var (
		clauses []string
		args    []any
	)
	if len(opts.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(opts.Statuses))+")")
		for _, status := range opts.Statuses {
			args = append(args, string(status))
		}
	}
	if len(opts.Operations) > 0 {
		clauses = append(clauses, "operation IN ("+placeholders(len(opts.Operations))+")")
		for _, op := range opts.Operations {
			args = append(args, string(op))
		}
	}
	if opts.Chain != "" {
		clauses = append(clauses, "chain = ?")
		args = append(args, opts.Chain)
	}
	if opts.Address != "" {
		clauses = append(clauses, "LOWER(address) = ?")
		args = append(args, strings.ToLower(opts.Address))
	}

	query := `SELECT ` + journalColumns + ` FROM wallet_journal`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, opts.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询操作记录失败")
	}
	defer rows.Close()

	entries := make([]*journal.Entry, 0, opts.Limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历操作记录失败")
	}
	return entries, nil
}

// Close 关闭底层数据库连接。
func (r *JournalRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*journal.Entry, error) {
	var (
		entry     journal.Entry
		operation string
		status    string
	)
	err := row.Scan(
		&entry.ID,
		&operation,
		&entry.Provider,
		&entry.Chain,
		&entry.Address,
		&entry.ChainID,
		&entry.TxHash,
		&status,
		&entry.Error,
		&entry.BlockNumber,
		&entry.Attempts,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, journal.ErrEntryNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析操作记录失败")
	}
	entry.Operation = journal.Operation(operation)
	entry.Status = journal.Status(status)
	return &entry, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

