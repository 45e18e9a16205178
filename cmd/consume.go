/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tenantcart/apiserver/config"
	"github.com/tenantcart/apiserver/internal/mq"
	"github.com/tenantcart/apiserver/types"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Order event tools",
}

var ordersConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Log order.placed events from the configured broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		if broker == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer func() { _ = broker.Close() }()

		log.Printf("consuming %s", cfg.OrderEvents)
		err = broker.Subscribe(ctx, cfg.OrderEvents, logOrderPlaced)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// logOrderPlaced acks malformed payloads after logging them; redelivery
// would not fix them.
func logOrderPlaced(_ context.Context, msg mq.Message) error {
	var event types.OrderPlacedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Printf("drop message %s: %v", msg.ID, err)
		return nil
	}
	log.Printf("order placed tenant=%s user=%s product=%s price=%d orders=%d",
		event.TenantID, event.UserID, event.Order.ID, event.Order.Price, event.OrderCount)
	return nil
}

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.AddCommand(ordersConsumeCmd)
}
