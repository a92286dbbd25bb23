package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"medvault/internal/audit"
	"medvault/internal/platform/kafka/consumer"
	"medvault/internal/platform/logger"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read audit events",
	}
	cmd.AddCommand(newAuditMeCmd(opts), newAuditTailCmd())
	return cmd
}

func newAuditMeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Events where the caller is actor or data subject",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := opts.client().do(cmd.Context(), http.MethodGet, "/audit/me", nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newAuditTailCmd() *cobra.Command {
	var brokers, topic, group, action string
	var fromStart bool
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the audit topic on Kafka",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			c, err := consumer.New(consumer.Config{
				Brokers:   brokers,
				GroupID:   group,
				Topics:    []string{topic},
				FromStart: fromStart,
			}, tailHandler(cmd.OutOrStdout(), action), logger.NewWithWriter(cmd.ErrOrStderr(), slog.LevelWarn))
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&brokers, "brokers", os.Getenv("KAFKA_BROKERS"), "comma separated Kafka brokers")
	cmd.Flags().StringVar(&topic, "topic", envOr("AUDIT_TOPIC", "medvault.audit"), "audit topic")
	cmd.Flags().StringVar(&group, "group", "medctl-tail", "consumer group")
	cmd.Flags().StringVar(&action, "action", "", "only print events with this action")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "read from the earliest offset")
	return cmd
}

// tailHandler prints one line per event. Undecodable messages are reported
// and skipped so a bad message cannot wedge the group.
func tailHandler(w io.Writer, action string) consumer.Handler {
	return consumer.HandlerFunc(func(_ context.Context, msg *consumer.Message) error {
		var event audit.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			_, _ = fmt.Fprintf(w, "partition=%d offset=%d undecodable event: %v\n", msg.Partition, msg.Offset, err)
			return nil
		}
		if action != "" && event.Action != action {
			return nil
		}
		_, err := fmt.Fprintf(w, "%s %-16s actor=%s subject=%s record=%s request=%s %s\n",
			event.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			event.Action, event.ActorID, event.SubjectID, event.RecordID, event.AccessRequest, event.Decision)
		return err
	})
}
