package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/printdeck/fulfillment/internal/config"
	"github.com/printdeck/fulfillment/internal/kv"
)

var (
	cfgFile    string
	nsqdAddr   string
	timeout    time.Duration
	outputJSON bool
	envSuffix  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deckctl",
	Short: "Printdeck CLI - Drive the purchase fulfillment pipeline",
	Long: `Printdeck CLI (deckctl) is a command line tool for operating the
purchase fulfillment pipeline.

You can use it to publish fulfillment messages, stage order details in the
KV store, and inspect token ledger balances.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.deckctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&nsqdAddr, "nsqd", "localhost:4150", "nsqd TCP address (host:port)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&envSuffix, "env-suffix", "", "environment suffix appended to topic names (e.g. -production)")

	// Bind flags to viper
	viper.BindPFlag("nsqd", rootCmd.PersistentFlags().Lookup("nsqd"))
	viper.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("env-suffix", rootCmd.PersistentFlags().Lookup("env-suffix"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".deckctl")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Override global variables with config values if flags weren't explicitly set
	if !rootCmd.PersistentFlags().Changed("nsqd") {
		if s := viper.GetString("nsqd"); s != "" {
			nsqdAddr = s
		}
	}
	if !rootCmd.PersistentFlags().Changed("timeout") {
		if d := viper.GetDuration("timeout"); d > 0 {
			timeout = d
		}
	}
	if !rootCmd.PersistentFlags().Changed("json") {
		outputJSON = viper.GetBool("json")
	}
	if !rootCmd.PersistentFlags().Changed("env-suffix") {
		if s := viper.GetString("env-suffix"); s != "" {
			envSuffix = s
		}
	}
}

// openStore connects the KV backend configured through the same env vars the
// consumer reads, so deckctl sees the pipeline's live state.
func openStore(ctx context.Context) (kv.Store, error) {
	cfg := config.FromEnv()
	switch cfg.KV.Backend {
	case "postgres":
		return kv.NewPostgres(ctx, cfg.PGDSN())
	case "redis":
		return kv.NewRedis(ctx, cfg.KV.RedisAddr, cfg.KV.RedisDB)
	default:
		return nil, fmt.Errorf("unknown KV backend %q", cfg.KV.Backend)
	}
}
