package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tracelot/tracelot/client"
	"github.com/urfave/cli/v2"
)

func getClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

func tokenInfoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show a share token with live chain state",
		ArgsUsage: "<share-token-mint>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: share token mint")
			}

			cl := getClient(c)
			info, err := cl.GetShareToken(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get token info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(info)
			}

			fmt.Printf("Name:              %s (%s)\n", info.Token.TokenName, info.Token.TokenSymbol)
			fmt.Printf("Share Token Mint:  %s\n", info.Token.ShareTokenMint)
			fmt.Printf("NFT Mint:          %s\n", info.Token.NFTMintAddress)
			fmt.Printf("Total Shares:      %d\n", info.Token.TotalShares)
			fmt.Printf("On-Chain Supply:   %s\n", info.OnChainSupply)
			fmt.Printf("Authority Balance: %s\n", info.AuthorityBalance)
			fmt.Printf("Creator:           %s\n", info.Token.CreatorName)
			fmt.Printf("Explorer:          %s\n", info.Token.ExplorerLink)
			fmt.Printf("Created:           %s\n", info.Token.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func tokenListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List share tokens",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "creator",
				Usage: "Filter by creator address",
			},
		},
		Action: func(c *cli.Context) error {
			cl := getClient(c)
			tokens, err := cl.ListShareTokens(context.Background(), c.String("creator"))
			if err != nil {
				return fmt.Errorf("failed to list tokens: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(tokens)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tNAME\tSHARE TOKEN MINT\tSHARES\tACTIVE\tCREATED")
			for _, t := range tokens {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%s\n",
					t.TokenSymbol,
					t.TokenName,
					t.ShareTokenMint,
					t.TotalShares,
					t.IsActive,
					t.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d tokens\n", len(tokens))
			return nil
		},
	}
}

func fractionalizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "fractionalize",
		Usage:     "Mint a fungible share token against an NFT",
		ArgsUsage: "<nft-mint-address>",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "shares",
				Usage:    "Total number of shares to mint",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "name",
				Usage:    "Token name (truncated to 32 characters)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "symbol",
				Usage:    "Token symbol (truncated to 10 characters)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "creator",
				Usage:    "Creator name recorded in metadata",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "description",
				Usage: "Token description (defaults to a generated one)",
			},
			&cli.StringFlag{
				Name:  "image",
				Usage: "Image URL for the token metadata",
			},
			&cli.IntFlag{
				Name:  "decimals",
				Usage: "Share token decimals (0 mints whole shares only)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: NFT mint address")
			}

			cl := getClient(c)
			result, err := cl.Fractionalize(context.Background(), client.FractionalizeRequest{
				NFTMintAddress: c.Args().First(),
				TotalShares:    c.Int64("shares"),
				TokenName:      c.String("name"),
				TokenSymbol:    c.String("symbol"),
				CreatorName:    c.String("creator"),
				Description:    c.String("description"),
				ImageURL:       c.String("image"),
				ShareDecimals:  int32(c.Int("decimals")),
			})
			if err != nil {
				return fmt.Errorf("failed to fractionalize: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(result)
			}

			fmt.Printf("Share Token Mint: %s\n", result.Token.ShareTokenMint)
			fmt.Printf("Total Shares:     %d\n", result.Token.TotalShares)
			fmt.Printf("Signature:        %s\n", result.Signature)
			fmt.Printf("Explorer:         %s\n", result.ExplorerLink)
			fmt.Printf("Transaction:      %s\n", result.TxLink)
			return nil
		},
	}
}

func distributeCommand() *cli.Command {
	return &cli.Command{
		Name:      "distribute",
		Usage:     "Transfer shares to recipient wallets",
		ArgsUsage: "<share-token-mint>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "to",
				Usage:    "Recipient as ADDRESS:AMOUNT (repeatable)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note recorded on-chain in a memo, applied to every recipient",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: share token mint")
			}

			recipients, err := parseRecipients(c.StringSlice("to"))
			if err != nil {
				return err
			}
			if note := c.String("note"); note != "" {
				for i := range recipients {
					recipients[i].Note = note
				}
			}

			cl := getClient(c)
			result, err := cl.Distribute(context.Background(), client.DistributeRequest{
				ShareTokenMint: c.Args().First(),
				Recipients:     recipients,
			})
			if err != nil {
				return fmt.Errorf("failed to distribute: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(result)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RECIPIENT\tAMOUNT\tSTATUS\tSIGNATURE")
			for _, e := range result.Entries {
				status := "ok"
				sig := e.Signature
				if !e.Success {
					status = "failed"
					sig = e.Error
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.WalletAddress, e.Amount, status, sig)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nDistributed %d of %d shares (%d transfers, sender balance %d -> %d)\n",
				result.TotalDistributed, result.TotalRequested,
				result.SuccessCount, result.SenderBalance.Before, result.SenderBalance.After)
			return nil
		},
	}
}

// parseRecipients parses repeated ADDRESS:AMOUNT flags.
func parseRecipients(raw []string) ([]client.DistributeRecipient, error) {
	recipients := make([]client.DistributeRecipient, len(raw))
	for i, entry := range raw {
		addr, amountStr, found := strings.Cut(entry, ":")
		if !found || addr == "" {
			return nil, fmt.Errorf("invalid recipient %q (expected ADDRESS:AMOUNT)", entry)
		}
		amount, err := strconv.ParseInt(amountStr, 10, 64)
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("invalid amount in recipient %q", entry)
		}
		recipients[i] = client.DistributeRecipient{
			WalletAddress: addr,
			Amount:        amount,
		}
	}
	return recipients, nil
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Action: func(c *cli.Context) error {
			cl := getClient(c)
			if err := cl.Health(context.Background()); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
}
