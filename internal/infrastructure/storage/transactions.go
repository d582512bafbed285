package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbirkedal/vendorledger/internal/domain/category"
	"github.com/mbirkedal/vendorledger/internal/domain/model"
)

const transactionColumns = `id, date, posting_date, text, message,
	transaction_type, card_info, amount, currency, sender, receiver, note,
	balance, raw_line, category, category_confidence, vendor_id,
	vendor_confidence, vendor_match_source, batch_id, created_at`

// SaveTransactions inserts all transactions in one database transaction and
// sets their IDs. If any insert fails, nothing is persisted.
func (s *Storage) SaveTransactions(ctx context.Context, txns []*model.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO transactions
	(date, posting_date, text, message, transaction_type, card_info,
	 amount, currency, sender, receiver, note, balance, raw_line,
	 category, category_confidence, vendor_id, vendor_confidence,
	 vendor_match_source, batch_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing transaction insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, txn := range txns {
		var postingDate any
		if !txn.PostingDate.IsZero() {
			postingDate = txn.PostingDate.UTC()
		}

		result, err := stmt.ExecContext(ctx,
			txn.Date.UTC(),
			postingDate,
			txn.Text,
			txn.Message,
			txn.TransactionType,
			txn.CardInfo,
			txn.Amount.String(),
			txn.Currency,
			txn.Sender,
			txn.Receiver,
			txn.Note,
			txn.Balance.String(),
			txn.RawLine,
			txn.Category,
			txn.CategoryConfidence,
			txn.VendorID,
			txn.VendorConfidence,
			string(txn.VendorMatchSource),
			txn.BatchID,
			now,
		)
		if err != nil {
			return fmt.Errorf("inserting transaction %q: %w", txn.Text, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading transaction insert id: %w", err)
		}
		txn.ID = id
		txn.CreatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transactions: %w", err)
	}
	return nil
}

// ListTransactionsSince returns transactions dated at or after since, oldest
// first. The duplicate detector's lookback window runs on this.
func (s *Storage) ListTransactionsSince(ctx context.Context, since time.Time) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE date >= ? ORDER BY date ASC`,
		since.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing transactions since %s: %w", since.Format(time.DateOnly), err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}

	return txns, rows.Err()
}

// ListTransactions returns transactions matching the filters, newest first,
// with the vendor name joined in.
func (s *Storage) ListTransactions(ctx context.Context, filters TransactionFilters) (*TransactionListResult, error) {
	where := []string{"1=1"}
	var args []any

	if filters.Category != "" {
		where = append(where, "t.category = ?")
		args = append(args, filters.Category)
	}
	if filters.VendorID > 0 {
		where = append(where, "t.vendor_id = ?")
		args = append(args, filters.VendorID)
	}
	if filters.BatchID != "" {
		where = append(where, "t.batch_id = ?")
		args = append(args, filters.BatchID)
	}
	if filters.DaysBack > 0 {
		where = append(where, "t.date >= ?")
		args = append(args, time.Now().UTC().AddDate(0, 0, -filters.DaysBack))
	}
	whereClause := strings.Join(where, " AND ")

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions t WHERE `+whereClause, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("counting transactions: %w", err)
	}

	query := `
	SELECT ` + prefixColumns("t", transactionColumns) + `, COALESCE(v.name, '')
	FROM transactions t
	LEFT JOIN vendors v ON v.id = t.vendor_id
	WHERE ` + whereClause + `
	ORDER BY t.date DESC, t.id DESC
	LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, filters.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := &TransactionListResult{
		Transactions: []TransactionRecord{},
		TotalCount:   total,
		Limit:        limit,
		Offset:       filters.Offset,
	}
	for rows.Next() {
		record, err := scanTransactionRecord(rows)
		if err != nil {
			return nil, err
		}
		result.Transactions = append(result.Transactions, *record)
	}

	return result, rows.Err()
}

// DeleteTransactions removes the given transactions.
func (s *Storage) DeleteTransactions(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting transactions: %w", err)
	}

	return result.RowsAffected()
}

// GetStats returns aggregate statistics over all stored data.
func (s *Storage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		VendorMatchSources: make(map[string]int),
	}

	query := `
	SELECT
		COUNT(*) as total,
		COUNT(CASE WHEN category != ? THEN 1 END) as categorized,
		COALESCE(AVG(category_confidence), 0) as avg_category,
		COALESCE(AVG(CASE WHEN vendor_id IS NOT NULL THEN vendor_confidence END), 0) as avg_vendor
	FROM transactions
	`
	err := s.db.QueryRowContext(ctx, query, category.NotCategorized).Scan(
		&stats.TotalTransactions,
		&stats.CategorizedCount,
		&stats.AvgCategoryConfidence,
		&stats.AvgVendorConfidence,
	)
	if err != nil {
		return nil, fmt.Errorf("reading transaction stats: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vendors`).Scan(&stats.TotalVendors)
	if err != nil {
		return nil, fmt.Errorf("counting vendors: %w", err)
	}

	catQuery := `
	SELECT
		category,
		COUNT(*) as count,
		COALESCE(SUM(CAST(amount AS REAL)), 0) as total,
		COALESCE(AVG(category_confidence), 0) as avg_confidence
	FROM transactions
	GROUP BY category
	ORDER BY count DESC
	`
	rows, err := s.db.QueryContext(ctx, catQuery)
	if err != nil {
		return nil, fmt.Errorf("reading category breakdown: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count, &cc.TotalAmount, &cc.AvgConfidence); err != nil {
			return nil, fmt.Errorf("scanning category breakdown: %w", err)
		}
		stats.Categories = append(stats.Categories, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	srcRows, err := s.db.QueryContext(ctx,
		`SELECT vendor_match_source, COUNT(*) FROM transactions GROUP BY vendor_match_source`)
	if err != nil {
		return nil, fmt.Errorf("reading match source breakdown: %w", err)
	}
	defer func() { _ = srcRows.Close() }()

	for srcRows.Next() {
		var source string
		var count int
		if err := srcRows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scanning match source breakdown: %w", err)
		}
		stats.VendorMatchSources[source] = count
	}

	return stats, srcRows.Err()
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	txn, _, err := scanTransactionInto(row, false)
	return txn, err
}

func scanTransactionRecord(row scanner) (*TransactionRecord, error) {
	txn, vendorName, err := scanTransactionInto(row, true)
	if err != nil {
		return nil, err
	}
	return &TransactionRecord{Transaction: *txn, VendorName: vendorName}, nil
}

func scanTransactionInto(row scanner, withVendorName bool) (*model.Transaction, string, error) {
	var (
		txn         model.Transaction
		postingDate sql.NullTime
		amount      string
		balance     string
		vendorID    sql.NullInt64
		matchSource string
		vendorName  string
	)

	dest := []any{
		&txn.ID,
		&txn.Date,
		&postingDate,
		&txn.Text,
		&txn.Message,
		&txn.TransactionType,
		&txn.CardInfo,
		&amount,
		&txn.Currency,
		&txn.Sender,
		&txn.Receiver,
		&txn.Note,
		&balance,
		&txn.RawLine,
		&txn.Category,
		&txn.CategoryConfidence,
		&vendorID,
		&txn.VendorConfidence,
		&matchSource,
		&txn.BatchID,
		&txn.CreatedAt,
	}
	if withVendorName {
		dest = append(dest, &vendorName)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, "", fmt.Errorf("scanning transaction: %w", err)
	}

	var err error
	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, "", fmt.Errorf("parsing stored amount %q: %w", amount, err)
	}
	if txn.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, "", fmt.Errorf("parsing stored balance %q: %w", balance, err)
	}
	if postingDate.Valid {
		txn.PostingDate = postingDate.Time
	}
	if vendorID.Valid {
		txn.VendorID = &vendorID.Int64
	}
	txn.VendorMatchSource = model.MatchSource(matchSource)

	return &txn, vendorName, nil
}

// prefixColumns qualifies each column in a comma-separated list with a table
// alias for use in joins.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
