package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
	"github.com/spf13/cobra"

	"github.com/printdeck/fulfillment/internal/queue"
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish fulfillment messages",
	Long:  `Publish token and print order fulfillment messages to the pipeline.`,
}

// publishTokensCmd represents the publish tokens command
var publishTokensCmd = &cobra.Command{
	Use:   "tokens [bundle-id] [email]",
	Short: "Publish a token fulfillment message",
	Long: `Publish a token bundle purchase to the token fulfillment topic.

Example:
  deckctl publish tokens tokens_25 buyer@example.com --grant-id g_9f2c`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bundleID := args[0]
		email := args[1]

		grantID, _ := cmd.Flags().GetString("grant-id")
		if grantID == "" {
			grantID = uuid.NewString()
		}
		customerRef, _ := cmd.Flags().GetString("customer-ref")

		msg := queue.TokenFulfillment{
			GrantID:  grantID,
			BundleID: bundleID,
			Email:    email,
		}
		if customerRef != "" {
			msg.PaymentCustomerRef = &customerRef
		}

		topic := queue.TokenTopicPrefix + envSuffix
		if err := publishMessage(topic, msg); err != nil {
			return err
		}

		if outputJSON {
			out, _ := json.MarshalIndent(map[string]string{
				"topic":    topic,
				"grant_id": grantID,
				"bundle":   bundleID,
			}, "", "  ")
			fmt.Println(string(out))
		} else {
			fmt.Printf("Published token fulfillment: %s\n", grantID)
			fmt.Printf("  Topic: %s\n", topic)
			fmt.Printf("  Bundle: %s\n", bundleID)
		}
		return nil
	},
}

// publishOrderCmd represents the publish order command
var publishOrderCmd = &cobra.Command{
	Use:   "order [payment-ref] [email]",
	Short: "Publish an order fulfillment message",
	Long: `Publish a completed print order payment to the order fulfillment topic.
The order details must already be staged under the payment reference
(see deckctl stage).

Example:
  deckctl publish order pi_3MqXb2 buyer@example.com`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paymentRef := args[0]
		email := args[1]

		msg := queue.OrderFulfillment{PaymentRef: paymentRef, Email: email}
		topic := queue.OrderTopicPrefix + envSuffix
		if err := publishMessage(topic, msg); err != nil {
			return err
		}

		if outputJSON {
			out, _ := json.MarshalIndent(map[string]string{
				"topic":       topic,
				"payment_ref": paymentRef,
			}, "", "  ")
			fmt.Println(string(out))
		} else {
			fmt.Printf("Published order fulfillment: %s\n", paymentRef)
			fmt.Printf("  Topic: %s\n", topic)
		}
		return nil
	},
}

func publishMessage(topic string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	producer, err := nsq.NewProducer(nsqdAddr, nsq.NewConfig())
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	defer producer.Stop()

	if err := producer.Publish(topic, body); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.AddCommand(publishTokensCmd)
	publishCmd.AddCommand(publishOrderCmd)

	publishTokensCmd.Flags().String("grant-id", "", "grant id to credit (generated when empty)")
	publishTokensCmd.Flags().String("customer-ref", "", "payment provider customer reference")
}
