package chain

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Operation names as they appear in receipts and on the wire.
const (
	OpMintNFT     = "mint-nft"
	OpTransferNFT = "transfer-nft"
	OpListNFT     = "list-nft"
	OpUnlistNFT   = "unlist-nft"
	OpPurchaseNFT = "purchase-nft"
	OpFundAccount = "fund-account"
)

// Operation is a state-changing request executed by the App.
type Operation interface {
	Type() string
}

// MintNFT creates a token owned by the caller. RoyaltyPercent defaults to 0.
type MintNFT struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	ImageURI       string `json:"imageUri"`
	RoyaltyPercent uint64 `json:"royaltyPercent"`
}

// TransferNFT moves a caller-owned token to Recipient.
type TransferNFT struct {
	TokenID   uint64         `json:"tokenId"`
	Recipient common.Address `json:"recipient"`
}

// ListNFT offers a caller-owned token for sale.
type ListNFT struct {
	TokenID uint64       `json:"tokenId"`
	Price   *uint256.Int `json:"price"`
}

// UnlistNFT withdraws the caller's listing.
type UnlistNFT struct {
	TokenID uint64 `json:"tokenId"`
}

// PurchaseNFT buys a listed token for the caller.
type PurchaseNFT struct {
	TokenID uint64 `json:"tokenId"`
}

// FundAccount credits Address from the development faucet.
type FundAccount struct {
	Address common.Address `json:"address"`
	Amount  *uint256.Int   `json:"amount"`
}

func (MintNFT) Type() string     { return OpMintNFT }
func (TransferNFT) Type() string { return OpTransferNFT }
func (ListNFT) Type() string     { return OpListNFT }
func (UnlistNFT) Type() string   { return OpUnlistNFT }
func (PurchaseNFT) Type() string { return OpPurchaseNFT }
func (FundAccount) Type() string { return OpFundAccount }

// DecodeOperation rebuilds an operation from its name and JSON params, as
// stored in a receipt.
func DecodeOperation(name string, params []byte) (Operation, error) {
	var op Operation
	switch name {
	case OpMintNFT:
		op = &MintNFT{}
	case OpTransferNFT:
		op = &TransferNFT{}
	case OpListNFT:
		op = &ListNFT{}
	case OpUnlistNFT:
		op = &UnlistNFT{}
	case OpPurchaseNFT:
		op = &PurchaseNFT{}
	case OpFundAccount:
		op = &FundAccount{}
	default:
		return nil, fmt.Errorf("unknown operation %q", name)
	}
	if err := json.Unmarshal(params, op); err != nil {
		return nil, fmt.Errorf("failed to decode %s params: %w", name, err)
	}
	return op, nil
}
