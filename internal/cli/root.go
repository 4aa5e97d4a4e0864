// Package cli implements leadgenctl, the operator command for inspecting
// and repairing leads that fell out of the automated pipeline: routed leads
// whose delivery never succeeded.
package cli

import (
	"context"
	"fmt"

	"leadgen/config"
	"leadgen/internal/queue"
	"leadgen/internal/redisclient"
	"leadgen/internal/store"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by every subcommand.
type RootOptions struct {
	Limit int
}

// NewRootCommand builds the leadgenctl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "leadgenctl",
		Short: "leadgenctl inspects and repairs leads stuck outside the automated pipeline",
	}

	cmd.PersistentFlags().IntVar(&opts.Limit, "limit", 100, "maximum leads to inspect or replay")

	cmd.AddCommand(newVerifyCommand(opts))
	cmd.AddCommand(newReplayCommand(opts))

	return cmd
}

// deps holds the store/queue connections a subcommand needs, opened lazily
// so `--help` never touches the network.
type deps struct {
	store *store.Store
	queue *queue.Queue
}

func openDeps(ctx context.Context, needQueue bool) (*deps, func(), error) {
	cfg := config.Load()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	d := &deps{store: db}
	closers := []func(){func() { db.Close() }}

	if needQueue {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		closers = append(closers, func() { redisClient.Close() })

		q, err := queue.New(ctx, redisClient.GetClient(), cfg.Queue.Stream, cfg.Queue.ConsumerGroup)
		if err != nil {
			redisClient.Close()
			db.Close()
			return nil, nil, fmt.Errorf("open delivery queue: %w", err)
		}
		d.queue = q
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return d, closeAll, nil
}
