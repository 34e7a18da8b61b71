package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fandresen/arbitrage-bot/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "arbbot",
	Short: "A flash-loan arbitrage evaluator for DEX pairs",
	Long: `A bot that watches the same token pair on two DEX venues, screens the
price spread, sizes a flash loan over a stepped scan, and dispatches
profitable round trips through a private relay.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initLogging() {
	utils.InitLogger(debug)
}
