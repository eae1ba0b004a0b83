package main

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/chain"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
)

// CallerHeader carries the identity of the account submitting an operation.
const CallerHeader = "X-Caller"

// MintRequest is the body of POST /nfts. RoyaltyPercent defaults to 0.
type MintRequest struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	ImageURI       string  `json:"imageUri"`
	RoyaltyPercent *uint64 `json:"royaltyPercent,omitempty"`
}

// TransferRequest is the body of POST /nfts/{id}/transfer.
type TransferRequest struct {
	Recipient string `json:"recipient"`
}

// ListRequest is the body of POST /nfts/{id}/listing.
type ListRequest struct {
	Price *uint256.Int `json:"price"`
}

// FundRequest is the body of POST /accounts/{address}/fund.
type FundRequest struct {
	Amount *uint256.Int `json:"amount"`
}

// ErrorBody is the err arm of a result.
type ErrorBody struct {
	Code    ledger.Code `json:"code"`
	Message string      `json:"message"`
}

// Result is the tagged ok/err envelope every endpoint returns, as seen by
// clients. Exactly one of OK and Err is set; OK is JSON null for an absent
// optional value.
type Result struct {
	OK      json.RawMessage `json:"ok,omitempty"`
	Err     *ErrorBody      `json:"err,omitempty"`
	Receipt *chain.Receipt  `json:"receipt,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	QueueSize    int    `json:"queueSize"`
	CurrentBlock uint64 `json:"currentBlock"`
	LatestBlock  uint64 `json:"latestBlock"`
}

// BalanceResponse is the ok value of GET /accounts/{address}/balance.
type BalanceResponse struct {
	Address common.Address `json:"address"`
	Balance *uint256.Int   `json:"balance"`
}

// NFTResponse is the ok value of GET /nfts/{id}.
type NFTResponse struct {
	TokenID        uint64         `json:"tokenId"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	ImageURI       string         `json:"imageUri"`
	Creator        common.Address `json:"creator"`
	RoyaltyPercent uint8          `json:"royaltyPercent"`
	Owner          common.Address `json:"owner"`
	MintedAtBlock  uint64         `json:"mintedAtBlock"`
}
