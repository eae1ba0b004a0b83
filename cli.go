package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/chain"
)

var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Talk to a running ledger server",
	Long: `Client commands for a running ledger server. The server is taken from
--server-url, SERVER_URL or server_url in the config file.`,
}

func init() {
	cliCmd.PersistentFlags().String("server-url", "", "ledger server URL (default http://localhost:3000)")
	cliCmd.PersistentFlags().String("from", "", "caller address sent as "+CallerHeader)
	_ = viper.BindPFlag("server_url", cliCmd.PersistentFlags().Lookup("server-url"))

	mintCmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a token owned by --from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			caller, err := callerFlag(cmd)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			description, _ := cmd.Flags().GetString("description")
			imageURI, _ := cmd.Flags().GetString("image-uri")
			royalty, _ := cmd.Flags().GetUint64("royalty")

			id, r, err := newCLIClient().Mint(cmd.Context(), caller, MintRequest{
				Name:           name,
				Description:    description,
				ImageURI:       imageURI,
				RoyaltyPercent: &royalty,
			})
			if err != nil {
				return reportRejected(r, err)
			}
			fmt.Printf("✓ Minted token %d in block %d\n", id, r.Block)
			return nil
		},
	}
	mintCmd.Flags().String("name", "", "token name")
	mintCmd.Flags().String("description", "", "token description")
	mintCmd.Flags().String("image-uri", "", "image URI")
	mintCmd.Flags().Uint64("royalty", 0, "creator royalty percent (0-100)")

	transferCmd := &cobra.Command{
		Use:   "transfer <token-id> <recipient>",
		Short: "Transfer a token owned by --from",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := callerFlag(cmd)
			if err != nil {
				return err
			}
			tokenID, err := parseTokenID(args[0])
			if err != nil {
				return err
			}
			recipient, err := parseHexAddress(args[1])
			if err != nil {
				return err
			}
			r, err := newCLIClient().Transfer(cmd.Context(), caller, tokenID, recipient)
			if err != nil {
				return reportRejected(r, err)
			}
			fmt.Printf("✓ Transferred token %d to %s in block %d\n", tokenID, recipient.Hex(), r.Block)
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list <token-id> <price>",
		Short: "List a token owned by --from for sale",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := callerFlag(cmd)
			if err != nil {
				return err
			}
			tokenID, err := parseTokenID(args[0])
			if err != nil {
				return err
			}
			price, err := uint256.FromDecimal(args[1])
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", args[1], err)
			}
			r, err := newCLIClient().List(cmd.Context(), caller, tokenID, price)
			if err != nil {
				return reportRejected(r, err)
			}
			fmt.Printf("✓ Listed token %d for %s in block %d\n", tokenID, price.Dec(), r.Block)
			return nil
		},
	}

	unlistCmd := &cobra.Command{
		Use:   "unlist <token-id>",
		Short: "Withdraw a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := callerFlag(cmd)
			if err != nil {
				return err
			}
			tokenID, err := parseTokenID(args[0])
			if err != nil {
				return err
			}
			r, err := newCLIClient().Unlist(cmd.Context(), caller, tokenID)
			if err != nil {
				return reportRejected(r, err)
			}
			fmt.Printf("✓ Unlisted token %d in block %d\n", tokenID, r.Block)
			return nil
		},
	}

	buyCmd := &cobra.Command{
		Use:   "buy <token-id>",
		Short: "Purchase a listed token for --from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := callerFlag(cmd)
			if err != nil {
				return err
			}
			tokenID, err := parseTokenID(args[0])
			if err != nil {
				return err
			}
			r, err := newCLIClient().Purchase(cmd.Context(), caller, tokenID)
			if err != nil {
				return reportRejected(r, err)
			}
			fmt.Printf("✓ Purchased token %d in block %d\n", tokenID, r.Block)
			return nil
		},
	}

	fundCmd := &cobra.Command{
		Use:   "fund <address> <amount>",
		Short: "Credit an account from the faucet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseHexAddress(args[0])
			if err != nil {
				return err
			}
			amount, err := uint256.FromDecimal(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			caller := addr
			if from, _ := cmd.Flags().GetString("from"); from != "" {
				if caller, err = parseHexAddress(from); err != nil {
					return err
				}
			}
			bal, err := newCLIClient().Fund(cmd.Context(), caller, addr, amount)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Funded %s, balance is now %s\n", addr.Hex(), bal.Dec())
			return nil
		},
	}

	ownerCmd := &cobra.Command{
		Use:   "owner <token-id>",
		Short: "Show the owner of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, err := parseTokenID(args[0])
			if err != nil {
				return err
			}
			owner, err := newCLIClient().Owner(cmd.Context(), tokenID)
			if err != nil {
				return err
			}
			if owner == nil {
				fmt.Printf("✗ Token not found: %d\n", tokenID)
				return nil
			}
			fmt.Printf("✓ Token %d is owned by %s\n", tokenID, owner.Hex())
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <token-id>",
		Short: "Show a token with its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, err := parseTokenID(args[0])
			if err != nil {
				return err
			}
			nft, err := newCLIClient().NFT(cmd.Context(), tokenID)
			if err != nil {
				return err
			}
			if nft == nil {
				fmt.Printf("✗ Token not found: %d\n", tokenID)
				return nil
			}
			fmt.Printf("\n✓ Token found:\n\n")
			fmt.Printf("  ID: %d\n", nft.TokenID)
			fmt.Printf("  Name: %s\n", nft.Name)
			fmt.Printf("  Description: %s\n", nft.Description)
			fmt.Printf("  Image: %s\n", nft.ImageURI)
			fmt.Printf("  Creator: %s\n", nft.Creator.Hex())
			fmt.Printf("  Royalty: %d%%\n", nft.RoyaltyPercent)
			fmt.Printf("  Owner: %s\n", nft.Owner.Hex())
			fmt.Printf("  Minted in block: %d\n", nft.MintedAtBlock)
			return nil
		},
	}

	listingsCmd := &cobra.Command{
		Use:   "listings",
		Short: "Show active listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			listings, err := newCLIClient().Listings(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ Found %d listings:\n\n", len(listings))
			for _, l := range listings {
				fmt.Printf("  Token %d: %s by %s (block %d)\n", l.TokenID, l.Price.Dec(), l.Seller.Hex(), l.ListedAtBlock)
			}
			return nil
		},
	}
	listingsCmd.Flags().Int("limit", defaultListingsLimit, "maximum number of listings")
	listingsCmd.Flags().Int("offset", 0, "listings to skip")

	salesCmd := &cobra.Command{
		Use:   "sales <token-id>",
		Short: "Show the sale history of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenID, err := parseTokenID(args[0])
			if err != nil {
				return err
			}
			sales, err := newCLIClient().Sales(cmd.Context(), tokenID)
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ Token %d was sold %d times:\n\n", tokenID, len(sales))
			for _, s := range sales {
				fmt.Printf("  Block %d: %s -> %s for %s (royalty %s, fee %s, seller %s)\n",
					s.Block, s.Seller.Hex(), s.Buyer.Hex(), s.Price.Dec(), s.Royalty.Dec(), s.Fee.Dec(), s.SellerAmount.Dec())
			}
			return nil
		},
	}

	tokensCmd := &cobra.Command{
		Use:   "tokens <address>",
		Short: "Show the tokens owned by an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseHexAddress(args[0])
			if err != nil {
				return err
			}
			ids, err := newCLIClient().TokensOf(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Printf("✓ %s owns %d tokens: %v\n", addr.Hex(), len(ids), ids)
			return nil
		},
	}

	balanceCmd := &cobra.Command{
		Use:   "balance <address>",
		Short: "Show the balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseHexAddress(args[0])
			if err != nil {
				return err
			}
			bal, err := newCLIClient().Balance(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Balance of %s: %s\n", addr.Hex(), bal.Dec())
			return nil
		},
	}

	receiptCmd := &cobra.Command{
		Use:   "receipt <id>",
		Short: "Show the receipt of an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newCLIClient().Receipt(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(r)
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Show server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			health, err := newCLIClient().Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("server is not available: %w", err)
			}
			fmt.Printf("✓ Server %s: queue size %d, current block %d, latest block %d\n",
				health.Status, health.QueueSize, health.CurrentBlock, health.LatestBlock)
			return nil
		},
	}

	cliCmd.AddCommand(mintCmd, transferCmd, listCmd, unlistCmd, buyCmd, fundCmd,
		ownerCmd, getCmd, listingsCmd, salesCmd, tokensCmd, balanceCmd, receiptCmd, healthCmd)
}

func newCLIClient() *Client {
	return NewClient(viper.GetString("server_url"))
}

func callerFlag(cmd *cobra.Command) (common.Address, error) {
	from, _ := cmd.Flags().GetString("from")
	if from == "" {
		return common.Address{}, fmt.Errorf("--from is required")
	}
	return parseHexAddress(from)
}

func parseHexAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseTokenID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token id %q", s)
	}
	return id, nil
}

// reportRejected prints where a rejected operation was recorded.
func reportRejected(r *chain.Receipt, err error) error {
	if r != nil {
		fmt.Printf("✗ Operation %s rejected in block %d\n", r.ID, r.Block)
	}
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// checkServerHealth checks if the server is running
func checkServerHealth(ctx context.Context, c *Client) error {
	_, err := c.Health(ctx)
	return err
}
