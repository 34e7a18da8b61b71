package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fandresen/arbitrage-bot/cmd"
	"github.com/fandresen/arbitrage-bot/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		utils.CleanupLogger()
		os.Exit(1)
	}
	utils.CleanupLogger()
}
