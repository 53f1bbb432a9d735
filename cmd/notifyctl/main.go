package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/SARVESHVARADKAR123/notifier/internal/config"
	"github.com/SARVESHVARADKAR123/notifier/internal/dispatcher"
	"github.com/SARVESHVARADKAR123/notifier/internal/kafka"
	"github.com/SARVESHVARADKAR123/notifier/internal/notify"
	"github.com/spf13/cobra"
)

// publisher is the part of *kafka.Producer the commands need.
type publisher interface {
	Publish(ctx context.Context, topic, user string, value []byte) error
	Close() error
}

type options struct {
	brokers []string
	topic   string
	timeout time.Duration
}

func main() {
	cmd := newRootCmd(func(brokers []string) publisher { return kafka.NewProducer(brokers) })
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(newPublisher func(brokers []string) publisher) *cobra.Command {
	cfg := config.Load()
	opts := &options{}

	root := &cobra.Command{
		Use:           "notifyctl",
		Short:         "Publish notification events for the notifier service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&opts.brokers, "brokers", cfg.KafkaBrokers, "kafka seed brokers")
	root.PersistentFlags().StringVar(&opts.topic, "topic", firstOr(cfg.KafkaTopics, "notification-events"), "event topic")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "publish timeout")

	publish := func(cmd *cobra.Command, ev dispatcher.Event) error {
		value, err := json.Marshal(ev)
		if err != nil {
			return err
		}

		p := newPublisher(opts.brokers)
		defer p.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
		defer cancel()
		if err := p.Publish(ctx, opts.topic, notify.NormalizeKey(ev.User), value); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "published %s for %s to %s\n", ev.Type, notify.NormalizeKey(ev.User), opts.topic)
		return nil
	}

	root.AddCommand(newNotificationCmd(publish), newUnreadCmd(publish))
	return root
}

func newNotificationCmd(publish func(*cobra.Command, dispatcher.Event) error) *cobra.Command {
	var user, payload string
	cmd := &cobra.Command{
		Use:   "notification",
		Short: "Push a notification payload to every open connection of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !json.Valid([]byte(payload)) {
				return errors.New("--payload must be valid JSON")
			}
			return publish(cmd, dispatcher.Event{
				Type: notify.KindNotification,
				User: user,
				Data: json.RawMessage(payload),
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "recipient user key (email)")
	cmd.Flags().StringVar(&payload, "payload", "", "notification JSON")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

func newUnreadCmd(publish func(*cobra.Command, dispatcher.Event) error) *cobra.Command {
	var user string
	var count int
	cmd := &cobra.Command{
		Use:   "unread",
		Short: "Push a new unread count to a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 0 {
				return errors.New("--count must not be negative")
			}
			return publish(cmd, dispatcher.Event{
				Type:  notify.KindUnreadCount,
				User:  user,
				Count: &count,
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "recipient user key (email)")
	cmd.Flags().IntVar(&count, "count", 0, "unread notification count")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func firstOr(list []string, fallback string) string {
	if len(list) == 0 {
		return fallback
	}
	return list[0]
}
