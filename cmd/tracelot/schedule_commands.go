package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tracelot/tracelot/service/temporal"
	"github.com/urfave/cli/v2"
)

func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		logger,
	)
}

func createScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create the transfer reconciliation schedule",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "How often to run reconciliation",
				Value: time.Hour,
			},
			&cli.IntFlag{
				Name:  "lookback-hours",
				Usage: "How far back each run scans",
				Value: 24,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Max transfers checked per run",
				Value: 500,
			},
		},
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return fmt.Errorf("failed to connect to temporal: %w", err)
			}
			defer tc.Close()

			input := temporal.ReconcileTransfersInput{
				LookbackHours: c.Int("lookback-hours"),
				Limit:         int32(c.Int("limit")),
			}
			if err := tc.CreateReconcileSchedule(context.Background(), c.Duration("interval"), input); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "reconcile schedule created (every %v)\n", c.Duration("interval"))
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete the transfer reconciliation schedule",
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return fmt.Errorf("failed to connect to temporal: %w", err)
			}
			defer tc.Close()

			if err := tc.DeleteReconcileSchedule(context.Background()); err != nil {
				return err
			}

			fmt.Fprintln(os.Stderr, "reconcile schedule deleted")
			return nil
		},
	}
}
