package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is a handle on ledger tables. Inside DB.InTx it is bound to one SQL
// transaction; from DB.View it reads committed state.
type Tx struct {
	ctx context.Context
	q   querier
}

// NextTokenID advances the registry counter and returns the new value.
func (tx *Tx) NextTokenID() (uint64, error) {
	var id uint64
	err := tx.q.QueryRowContext(tx.ctx,
		`UPDATE registry_state SET last_token_id = last_token_id + 1 WHERE id = 1 RETURNING last_token_id`,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to advance token counter: %w", err)
	}
	return id, nil
}

// LastTokenID returns the most recently allocated token id, 0 before the first mint.
func (tx *Tx) LastTokenID() (uint64, error) {
	var id uint64
	err := tx.q.QueryRowContext(tx.ctx, `SELECT last_token_id FROM registry_state WHERE id = 1`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read token counter: %w", err)
	}
	return id, nil
}

// InsertToken stores a freshly minted token.
func (tx *Tx) InsertToken(m *TokenModel) error {
	_, err := tx.q.ExecContext(tx.ctx,
		`INSERT INTO tokens (id, name, description, image_uri, creator, royalty_percent, owner, minted_at_block, updated_at_block)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Description, m.ImageURI, m.Creator, m.RoyaltyPercent, m.Owner, m.MintedAtBlock, m.UpdatedAtBlock,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// GetToken returns ErrNotFound if id was never minted.
func (tx *Tx) GetToken(id uint64) (*TokenModel, error) {
	row := tx.q.QueryRowContext(tx.ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = ?`, id)
	m, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return m, nil
}

// UpdateTokenOwner reassigns a token.
func (tx *Tx) UpdateTokenOwner(id uint64, owner string, block uint64) error {
	res, err := tx.q.ExecContext(tx.ctx,
		`UPDATE tokens SET owner = ?, updated_at_block = ? WHERE id = ?`, owner, block, id)
	if err != nil {
		return fmt.Errorf("failed to update token owner: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update token owner: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TokensByOwner lists the ids held by owner in ascending order.
func (tx *Tx) TokensByOwner(owner string) ([]uint64, error) {
	rows, err := tx.q.QueryContext(tx.ctx, `SELECT id FROM tokens WHERE owner = ? ORDER BY id`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens by owner: %w", err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan token id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetListing returns ErrNotFound if the token is not for sale.
func (tx *Tx) GetListing(tokenID uint64) (*ListingModel, error) {
	row := tx.q.QueryRowContext(tx.ctx, `SELECT `+listingColumns+` FROM listings WHERE token_id = ?`, tokenID)
	m, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return m, nil
}

// InsertListing fails on the primary key if the token already has a listing.
func (tx *Tx) InsertListing(m *ListingModel) error {
	_, err := tx.q.ExecContext(tx.ctx,
		`INSERT INTO listings (token_id, price, seller, listed_at_block) VALUES (?, ?, ?, ?)`,
		m.TokenID, m.Price, m.Seller, m.ListedAtBlock,
	)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

// DeleteListing removes the listing for tokenID and reports whether one existed.
func (tx *Tx) DeleteListing(tokenID uint64) (bool, error) {
	res, err := tx.q.ExecContext(tx.ctx, `DELETE FROM listings WHERE token_id = ?`, tokenID)
	if err != nil {
		return false, fmt.Errorf("failed to delete listing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete listing: %w", err)
	}
	return n > 0, nil
}

// Listings pages through active listings by token id.
func (tx *Tx) Listings(limit, offset int) ([]*ListingModel, error) {
	rows, err := tx.q.QueryContext(tx.ctx,
		`SELECT `+listingColumns+` FROM listings ORDER BY token_id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var out []*ListingModel
	for rows.Next() {
		m, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetBalance returns the decimal balance of address, "" if it has never held value.
func (tx *Tx) GetBalance(address string) (string, error) {
	var balance string
	err := tx.q.QueryRowContext(tx.ctx, `SELECT balance FROM accounts WHERE address = ?`, address).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// SetBalance writes the decimal balance of address.
func (tx *Tx) SetBalance(address, balance string) error {
	_, err := tx.q.ExecContext(tx.ctx,
		`INSERT INTO accounts (address, balance) VALUES (?, ?)
		ON CONFLICT (address) DO UPDATE SET balance = excluded.balance`,
		address, balance,
	)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

// CountAccounts returns the number of accounts that ever held value.
func (tx *Tx) CountAccounts() (int, error) {
	var n int
	if err := tx.q.QueryRowContext(tx.ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}

// InsertSale appends to the sale history.
func (tx *Tx) InsertSale(m *SaleModel) error {
	res, err := tx.q.ExecContext(tx.ctx,
		`INSERT INTO sales (token_id, seller, buyer, creator, platform, price, royalty, fee, seller_amount, block_number)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TokenID, m.Seller, m.Buyer, m.Creator, m.Platform, m.Price, m.Royalty, m.Fee, m.SellerAmount, m.BlockNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	m.ID = id
	return nil
}

// SalesByToken returns the sale history of tokenID, oldest first.
func (tx *Tx) SalesByToken(tokenID uint64) ([]*SaleModel, error) {
	rows, err := tx.q.QueryContext(tx.ctx,
		`SELECT `+saleColumns+` FROM sales WHERE token_id = ? ORDER BY id`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var out []*SaleModel
	for rows.Next() {
		m, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertReceipt records the outcome of an executed operation.
func (tx *Tx) InsertReceipt(m *ReceiptModel) error {
	_, err := tx.q.ExecContext(tx.ctx,
		`INSERT INTO receipts (id, block_number, tx_index, operation, caller, params, status, result, error_code, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.BlockNumber, m.TxIndex, m.Operation, m.Caller, m.Params, m.Status,
		m.Result, m.ErrorCode, m.ErrorMessage, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

// GetReceipt returns ErrNotFound for unknown ids.
func (tx *Tx) GetReceipt(id string) (*ReceiptModel, error) {
	row := tx.q.QueryRowContext(tx.ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, id)
	m, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return m, nil
}

// ReceiptsInBlock returns the receipts of one block in execution order.
func (tx *Tx) ReceiptsInBlock(block uint64) ([]*ReceiptModel, error) {
	rows, err := tx.q.QueryContext(tx.ctx,
		`SELECT `+receiptColumns+` FROM receipts WHERE block_number = ? ORDER BY tx_index`, block)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var out []*ReceiptModel
	for rows.Next() {
		m, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Blocks returns every block number that has receipts, ascending.
func (tx *Tx) Blocks() ([]uint64, error) {
	rows, err := tx.q.QueryContext(tx.ctx, `SELECT DISTINCT block_number FROM receipts ORDER BY block_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []uint64
	for rows.Next() {
		var b uint64
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// LatestBlock returns the highest block with receipts, 0 on an empty chain.
func (tx *Tx) LatestBlock() (uint64, error) {
	var b uint64
	err := tx.q.QueryRowContext(tx.ctx, `SELECT COALESCE(MAX(block_number), 0) FROM receipts`).Scan(&b)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return b, nil
}

// Owners returns every token id with its current owner, ordered by id.
func (tx *Tx) Owners() ([]OwnerRow, error) {
	rows, err := tx.q.QueryContext(tx.ctx, `SELECT id, owner FROM tokens ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	defer rows.Close()

	var out []OwnerRow
	for rows.Next() {
		var r OwnerRow
		if err := rows.Scan(&r.TokenID, &r.Owner); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
