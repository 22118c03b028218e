package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vladislavdragonenkov/coffeeshop/internal/messaging/kafka"
)

func dlqCmd(g *globals) *cobra.Command {
	cfg := kafka.ReplayConfig{}

	replay := &cobra.Command{
		Use:   "replay",
		Short: "Re-publish dead-lettered order events (dry-run unless --execute)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			brokers := g.cfg.Brokers()
			if len(brokers) == 0 {
				return fmt.Errorf("STOREFRONT_KAFKA_BROKERS is required")
			}
			if cfg.SourceTopic == "" {
				cfg.SourceTopic = g.cfg.KafkaDLQTopic
			}
			if cfg.TargetTopic == "" {
				cfg.TargetTopic = g.cfg.KafkaTopic
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			replayer, err := kafka.DialReplayer(brokers, cfg.Execute)
			if err != nil {
				return err
			}
			defer replayer.Close()

			stats, err := replayer.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			mode := "dry-run"
			if cfg.Execute {
				mode = "execute"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dlq replay (%s): processed=%d replayed=%d skipped=%d\n",
				mode, stats.Processed, stats.Replayed, stats.Skipped)
			return nil
		},
	}
	replay.Flags().StringVar(&cfg.SourceTopic, "source", "", "DLQ topic (default: STOREFRONT_KAFKA_DLQ_TOPIC)")
	replay.Flags().StringVar(&cfg.TargetTopic, "target", "", "fallback target topic (default: STOREFRONT_KAFKA_TOPIC)")
	replay.Flags().IntVar(&cfg.Limit, "limit", kafka.DefaultReplayLimit, "max messages to read")
	replay.Flags().BoolVar(&cfg.Execute, "execute", false, "publish messages instead of logging them")
	replay.Flags().BoolVar(&cfg.FromNewest, "from-newest", false, "read only the newest messages")
	replay.Flags().DurationVar(&cfg.IdleTimeout, "idle-timeout", kafka.DefaultReplayIdleTimeout, "stop a partition after this idle time")

	cmd := &cobra.Command{Use: "dlq", Short: "Dead letter queue tools"}
	cmd.AddCommand(replay)
	return cmd
}
