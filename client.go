package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/chain"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/marketplace"
)

// Client talks to a running ledger server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// call performs a request and decodes the ok arm into out. A rejected
// operation is returned as a *ledger.Error together with its receipt.
func (c *Client) call(ctx context.Context, method, path string, caller *common.Address, body, out any) (*chain.Receipt, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != nil {
		req.Header.Set(CallerHeader, caller.Hex())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if result.Err != nil {
		return result.Receipt, &ledger.Error{Code: result.Err.Code, Message: result.Err.Message}
	}
	if out != nil && len(result.OK) > 0 {
		if err := json.Unmarshal(result.OK, out); err != nil {
			return result.Receipt, fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return result.Receipt, nil
}

// Health returns the server status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health: %w", err)
	}
	return &health, nil
}

// Mint mints a token for caller and returns its id.
func (c *Client) Mint(ctx context.Context, caller common.Address, req MintRequest) (uint64, *chain.Receipt, error) {
	var id uint64
	r, err := c.call(ctx, http.MethodPost, "/nfts", &caller, req, &id)
	return id, r, err
}

// Transfer moves a token to recipient.
func (c *Client) Transfer(ctx context.Context, caller common.Address, tokenID uint64, recipient common.Address) (*chain.Receipt, error) {
	return c.call(ctx, http.MethodPost, tokenPath(tokenID, "transfer"), &caller,
		TransferRequest{Recipient: recipient.Hex()}, nil)
}

// List offers a token for sale at price.
func (c *Client) List(ctx context.Context, caller common.Address, tokenID uint64, price *uint256.Int) (*chain.Receipt, error) {
	return c.call(ctx, http.MethodPost, tokenPath(tokenID, "listing"), &caller, ListRequest{Price: price}, nil)
}

// Unlist withdraws a listing.
func (c *Client) Unlist(ctx context.Context, caller common.Address, tokenID uint64) (*chain.Receipt, error) {
	return c.call(ctx, http.MethodDelete, tokenPath(tokenID, "listing"), &caller, nil, nil)
}

// Purchase buys a listed token.
func (c *Client) Purchase(ctx context.Context, caller common.Address, tokenID uint64) (*chain.Receipt, error) {
	return c.call(ctx, http.MethodPost, tokenPath(tokenID, "purchase"), &caller, nil, nil)
}

// Fund credits addr from the faucet and returns its new balance.
func (c *Client) Fund(ctx context.Context, caller, addr common.Address, amount *uint256.Int) (*uint256.Int, error) {
	bal := new(uint256.Int)
	_, err := c.call(ctx, http.MethodPost, "/accounts/"+addr.Hex()+"/fund", &caller, FundRequest{Amount: amount}, bal)
	return bal, err
}

// Owner returns nil for a token that was never minted.
func (c *Client) Owner(ctx context.Context, tokenID uint64) (*common.Address, error) {
	var owner *common.Address
	_, err := c.call(ctx, http.MethodGet, tokenPath(tokenID, "owner"), nil, nil, &owner)
	return owner, err
}

// NFT returns nil for a token that was never minted.
func (c *Client) NFT(ctx context.Context, tokenID uint64) (*NFTResponse, error) {
	var nft *NFTResponse
	_, err := c.call(ctx, http.MethodGet, tokenPath(tokenID, ""), nil, nil, &nft)
	return nft, err
}

// Listing returns nil for a token that is not for sale.
func (c *Client) Listing(ctx context.Context, tokenID uint64) (*marketplace.Listing, error) {
	var l *marketplace.Listing
	_, err := c.call(ctx, http.MethodGet, tokenPath(tokenID, "listing"), nil, nil, &l)
	return l, err
}

// Listings pages through active listings.
func (c *Client) Listings(ctx context.Context, limit, offset int) ([]*marketplace.Listing, error) {
	var ls []*marketplace.Listing
	path := fmt.Sprintf("/listings?limit=%d&offset=%d", limit, offset)
	_, err := c.call(ctx, http.MethodGet, path, nil, nil, &ls)
	return ls, err
}

// Sales returns the sale history of a token.
func (c *Client) Sales(ctx context.Context, tokenID uint64) ([]*marketplace.Sale, error) {
	var sales []*marketplace.Sale
	_, err := c.call(ctx, http.MethodGet, tokenPath(tokenID, "sales"), nil, nil, &sales)
	return sales, err
}

// TokensOf returns the tokens owned by addr.
func (c *Client) TokensOf(ctx context.Context, addr common.Address) ([]uint64, error) {
	var ids []uint64
	_, err := c.call(ctx, http.MethodGet, "/accounts/"+addr.Hex()+"/nfts", nil, nil, &ids)
	return ids, err
}

// Balance returns the balance of addr.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	var resp BalanceResponse
	_, err := c.call(ctx, http.MethodGet, "/accounts/"+addr.Hex()+"/balance", nil, nil, &resp)
	return resp.Balance, err
}

// Receipt fetches a receipt by id.
func (c *Client) Receipt(ctx context.Context, id string) (*chain.Receipt, error) {
	var r chain.Receipt
	if _, err := c.call(ctx, http.MethodGet, "/receipts/"+id, nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func tokenPath(tokenID uint64, sub string) string {
	p := "/nfts/" + strconv.FormatUint(tokenID, 10)
	if sub != "" {
		p += "/" + sub
	}
	return p
}
