package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/itchyny/gojq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tracelot/tracelot/service/db"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}

			fmt.Fprintln(os.Stderr, "schema applied")
			return nil
		},
	}
}

func listProductsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-products",
		Usage:   "List registered products",
		Aliases: []string{"products"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "company",
				Usage: "Filter by company",
			},
			&cli.StringFlag{
				Name:  "category",
				Usage: "Filter by category",
			},
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to each record (JSON output only)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of products",
				Value:   100,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			products, err := store.ListProducts(context.Background(), db.ListProductsParams{
				Company:  c.String("company"),
				Category: c.String("category"),
				Limit:    int32(c.Int("limit")),
			})
			if err != nil {
				return fmt.Errorf("failed to list products: %w", err)
			}

			if c.Bool("json") || c.String("filter") != "" {
				return outputJSONFiltered(products, c.String("filter"))
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "GTIN\tNAME\tCOMPANY\tCATEGORY\tACTIVE\tCREATED")
			for _, p := range products {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
					p.GTIN,
					p.ProductName,
					p.Company,
					p.Category,
					p.IsActive,
					p.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d products\n", len(products))
			return nil
		},
	}
}

func listItemsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-items",
		Usage:   "List manufactured items",
		Aliases: []string{"items"},
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:    "batch",
				Aliases: []string{"b"},
				Usage:   "Filter by batch id",
			},
			&cli.StringFlag{
				Name:  "quality",
				Usage: "Filter by quality status (PENDING, PASSED, FAILED, REWORK)",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by item status",
			},
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to each record (JSON output only)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of items",
				Value:   100,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			items, err := store.ListItems(context.Background(), db.ListItemsParams{
				BatchID:       c.Int64("batch"),
				QualityStatus: c.String("quality"),
				Status:        c.String("status"),
				Limit:         int32(c.Int("limit")),
			})
			if err != nil {
				return fmt.Errorf("failed to list items: %w", err)
			}

			if c.Bool("json") || c.String("filter") != "" {
				return outputJSONFiltered(items, c.String("filter"))
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SERIAL\tBATCH\tQUALITY\tSTATUS\tNFT MINT\tMANUFACTURED")
			for _, i := range items {
				mint := "(none)"
				if i.NFTMintAddress != nil {
					mint = *i.NFTMintAddress
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
					i.SerialNumber,
					i.BatchID,
					i.QualityStatus,
					i.Status,
					mint,
					i.ManufacturingDate.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d items\n", len(items))
			return nil
		},
	}
}

func listTransfersCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transfers",
		Usage:   "List persisted share transfers",
		Aliases: []string{"transfers"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mint",
				Aliases: []string{"m"},
				Usage:   "Filter by share token mint",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "Filter by recipient address",
			},
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to each record (JSON output only)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transfers",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			transfers, err := store.ListShareTransfers(context.Background(), db.ListShareTransfersParams{
				ShareTokenMint: c.String("mint"),
				ToAddress:      c.String("to"),
				Limit:          int32(c.Int("limit")),
			})
			if err != nil {
				return fmt.Errorf("failed to list transfers: %w", err)
			}

			if c.Bool("json") || c.String("filter") != "" {
				return outputJSONFiltered(transfers, c.String("filter"))
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SIGNATURE\tTOKEN\tTO\tAMOUNT\tTRANSFERRED")
			for _, t := range transfers {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					t.Signature,
					t.TokenSymbol,
					t.ToAddress,
					t.Amount,
					t.TransferredAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transfers\n", len(transfers))
			return nil
		},
	}
}

// getStore connects to the database using the global flag or env var.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// outputJSONFiltered writes records as indented JSON, optionally piping each
// record through a jq expression first. Records the expression drops (no
// output, false, or null) are skipped.
func outputJSONFiltered(v interface{}, filter string) error {
	if filter == "" {
		return outputJSON(v)
	}

	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	// Round-trip through JSON so gojq sees plain maps and slices.
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	var records []interface{}
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("failed to unmarshal records: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, record := range records {
		iter := code.Run(record)
		for {
			out, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := out.(error); isErr {
				return fmt.Errorf("jq filter error: %w", err)
			}
			if out == nil || out == false {
				continue
			}
			if err := enc.Encode(out); err != nil {
				return err
			}
		}
	}
	return nil
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
