package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage deckctl configuration",
	Long:  `Manage deckctl configuration settings.`,
}

// configViewCmd represents the config view command
var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View current configuration",
	Long:  `Display the current configuration settings.`,
	Run: func(cmd *cobra.Command, args []string) {
		if outputJSON {
			out := map[string]any{
				"nsqd":       nsqdAddr,
				"timeout":    timeout.String(),
				"env-suffix": envSuffix,
				"json":       outputJSON,
			}
			b, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(b))
		} else {
			fmt.Println("Current configuration:")
			fmt.Printf("  nsqd: %s\n", nsqdAddr)
			fmt.Printf("  Timeout: %s\n", timeout)
			fmt.Printf("  Env suffix: %q\n", envSuffix)
			fmt.Printf("  JSON output: %v\n", outputJSON)

			if viper.ConfigFileUsed() != "" {
				fmt.Printf("  Config file: %s\n", viper.ConfigFileUsed())
			} else {
				fmt.Println("  Config file: none (using defaults)")
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configViewCmd)
}
