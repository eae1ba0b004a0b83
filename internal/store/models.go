package store

// TokenModel is a row of the tokens table. Addresses are stored as
// checksummed hex.
type TokenModel struct {
	ID             uint64
	Name           string
	Description    string
	ImageURI       string
	Creator        string
	RoyaltyPercent uint8
	Owner          string
	MintedAtBlock  uint64
	UpdatedAtBlock uint64
}

// ListingModel is a row of the listings table. Price is a decimal string.
type ListingModel struct {
	TokenID       uint64
	Price         string
	Seller        string
	ListedAtBlock uint64
}

// SaleModel is a row of the sales table. Amounts are decimal strings.
type SaleModel struct {
	ID           int64
	TokenID      uint64
	Seller       string
	Buyer        string
	Creator      string
	Platform     string
	Price        string
	Royalty      string
	Fee          string
	SellerAmount string
	BlockNumber  uint64
}

// ReceiptModel is a row of the receipts table.
type ReceiptModel struct {
	ID           string
	BlockNumber  uint64
	TxIndex      uint32
	Operation    string
	Caller       string
	Params       string  // JSON
	Status       string  // "ok" or "err"
	Result       *string // JSON, nullable
	ErrorCode    *string // nullable
	ErrorMessage *string // nullable
	CreatedAt    int64   // Unix milliseconds
}

// OwnerRow pairs a token with its current owner.
type OwnerRow struct {
	TokenID uint64
	Owner   string
}

type scanner interface{ Scan(...any) error }

const tokenColumns = `id, name, description, image_uri, creator, royalty_percent, owner, minted_at_block, updated_at_block`

func scanToken(s scanner) (*TokenModel, error) {
	var m TokenModel
	err := s.Scan(&m.ID, &m.Name, &m.Description, &m.ImageURI, &m.Creator,
		&m.RoyaltyPercent, &m.Owner, &m.MintedAtBlock, &m.UpdatedAtBlock)
	return &m, err
}

const listingColumns = `token_id, price, seller, listed_at_block`

func scanListing(s scanner) (*ListingModel, error) {
	var m ListingModel
	err := s.Scan(&m.TokenID, &m.Price, &m.Seller, &m.ListedAtBlock)
	return &m, err
}

const saleColumns = `id, token_id, seller, buyer, creator, platform, price, royalty, fee, seller_amount, block_number`

func scanSale(s scanner) (*SaleModel, error) {
	var m SaleModel
	err := s.Scan(&m.ID, &m.TokenID, &m.Seller, &m.Buyer, &m.Creator, &m.Platform,
		&m.Price, &m.Royalty, &m.Fee, &m.SellerAmount, &m.BlockNumber)
	return &m, err
}

const receiptColumns = `id, block_number, tx_index, operation, caller, params, status, result, error_code, error_message, created_at`

func scanReceipt(s scanner) (*ReceiptModel, error) {
	var m ReceiptModel
	err := s.Scan(&m.ID, &m.BlockNumber, &m.TxIndex, &m.Operation, &m.Caller, &m.Params,
		&m.Status, &m.Result, &m.ErrorCode, &m.ErrorMessage, &m.CreatedAt)
	return &m, err
}
