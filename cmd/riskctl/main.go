// Command riskctl runs recalculations and risk queries directly against the database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jengzang/riskzone-engine/internal/config"
	"github.com/jengzang/riskzone-engine/internal/logger"
	"github.com/joho/godotenv"
)

const usage = `Usage: riskctl <command> [flags]

Commands:
  recalc [-actor name] <cell>...   recalculate the given cells
  refresh                          recalculate every known cell
  score <cell>                     show a cell score and its recent history
  route -from lat,lng -to lat,lng  analyze a route against the corridor catalog
  corridors                        list the corridor catalog
  posture [-org id]                show the security posture summary
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	zl, err := logger.New(cfg.LogLevel, "console", "riskctl")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &CLI{cfg: cfg, logger: zl, out: os.Stdout}
	if err := cli.Run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, colorRed("error:"), err)
		if err == errUsage {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}
