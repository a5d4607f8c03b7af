package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/printdeck/fulfillment/internal/kv"
	"github.com/printdeck/fulfillment/internal/ledger"
)

// balanceCmd represents the balance command
var balanceCmd = &cobra.Command{
	Use:   "balance [grant-id]",
	Short: "Show a token ledger balance",
	Long: `Read the ledger entry for a grant id and print the remaining token
balance.

Example:
  deckctl balance g_9f2c`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		grantID := args[0]

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		store, err := openStore(ctx)
		if err != nil {
			return fmt.Errorf("connect KV store: %w", err)
		}
		defer store.Close()

		raw, err := store.Get(ctx, kv.LedgerKey(grantID))
		if errors.Is(err, kv.ErrNotFound) {
			return fmt.Errorf("no ledger entry for grant %s", grantID)
		}
		if err != nil {
			return fmt.Errorf("read ledger entry: %w", err)
		}

		var entry ledger.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode ledger entry: %w", err)
		}

		if outputJSON {
			out, _ := json.MarshalIndent(entry, "", "  ")
			fmt.Println(string(out))
		} else {
			fmt.Printf("Grant: %s\n", grantID)
			fmt.Printf("  Tokens remaining: %d\n", entry.TokensRemaining)
			fmt.Printf("  Email: %s\n", entry.Email)
			fmt.Printf("  Last bundle: %s\n", entry.LastBundlePurchased)
			fmt.Printf("  Last updated: %s\n", entry.LastUpdated)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
