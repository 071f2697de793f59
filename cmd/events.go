/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/messageapi/apiserver/config"
	"github.com/messageapi/apiserver/internal/logging"
	"github.com/messageapi/apiserver/internal/mq"
	"github.com/messageapi/apiserver/types"
	"github.com/spf13/cobra"
)

// eventsCmd groups commands that work with the message events broker.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect message events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log message-sent events as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log, os.Stdout)

		broker, err := mq.Open(cmd.Context(), cfg.Events)
		if errors.Is(err, mq.ErrDisabled) {
			return errors.New("EVENTS_BACKEND is not set")
		}
		if err != nil {
			return err
		}
		defer broker.Close()

		logger.Info(cmd.Context(), "tailing events", "backend", cfg.Events.Backend, "topic", cfg.Events.Topic)
		err = broker.Subscribe(cmd.Context(), cfg.Events.Topic, func(ctx context.Context, msg mq.Message) error {
			var event types.MessageSentEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				// Malformed payloads would be redelivered forever; drop them.
				logger.Warn(ctx, "skipping malformed event", "broker_id", msg.ID, "error", err)
				return nil
			}
			logger.Info(ctx, "message sent",
				"id", event.ID,
				"sender", event.Sender,
				"recipient", event.Recipient,
				"has_file", event.HasFile,
				"timestamp", event.Timestamp,
			)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
