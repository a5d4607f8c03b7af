package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/printdeck/fulfillment/internal/kv"
	"github.com/printdeck/fulfillment/internal/printorder"
)

// stageCmd represents the stage command
var stageCmd = &cobra.Command{
	Use:   "stage [payment-ref] [order-json-file]",
	Short: "Stage order details in the KV store",
	Long: `Stage a print order's details under a payment reference so the order
fulfillment handler can pick them up. The file must contain the staged order
JSON (items, shipping address, total).

Example:
  deckctl stage pi_3MqXb2 order.json --ttl 24h`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paymentRef := args[0]
		path := args[1]

		ttl, _ := cmd.Flags().GetDuration("ttl")

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read order file: %w", err)
		}
		var order printorder.StagedOrder
		if err := json.Unmarshal(raw, &order); err != nil {
			return fmt.Errorf("invalid staged order JSON: %w", err)
		}
		if len(order.Items) == 0 {
			return fmt.Errorf("staged order has no items")
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		store, err := openStore(ctx)
		if err != nil {
			return fmt.Errorf("connect KV store: %w", err)
		}
		defer store.Close()

		key := kv.StagedOrderKey(paymentRef)
		if err := store.Put(ctx, key, raw, ttl); err != nil {
			return fmt.Errorf("stage order: %w", err)
		}

		if outputJSON {
			out, _ := json.MarshalIndent(map[string]any{
				"key":   key,
				"items": len(order.Items),
				"ttl":   ttl.String(),
			}, "", "  ")
			fmt.Println(string(out))
		} else {
			fmt.Printf("Staged order: %s\n", key)
			fmt.Printf("  Items: %d\n", len(order.Items))
			fmt.Printf("  TTL: %s\n", ttl)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stageCmd)

	stageCmd.Flags().Duration("ttl", 24*time.Hour, "staged order lifetime")
}
