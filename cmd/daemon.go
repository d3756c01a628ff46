package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"swapsage-bridge/pkg/bridge"
)

var sweepInterval int

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background watcher",
	Long: `Run the watcher that drives in-flight swaps to completion: it resumes
interrupted settlements after a restart and refunds escrowed legs once their
timelocks expire. Runs until interrupted.

Examples:
  swapsage daemon
  swapsage daemon --sweep-interval 30`,
	Args: cobra.NoArgs,
	Run:  runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().IntVar(&sweepInterval, "sweep-interval", 15, "Seconds between reconciliation sweeps")
}

func runDaemon(cmd *cobra.Command, args []string) {
	log := newLogger(cmd)
	if log.GetLevel() < logrus.InfoLevel {
		log.SetLevel(logrus.InfoLevel)
	}

	coord, reg, err := newCoordinatorWithLogger(cmd, log)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer reg.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("interval", sweepInterval).Info("watcher starting")
	watcher := bridge.NewWatcher(coord, time.Duration(sweepInterval)*time.Second, log)
	watcher.Run(ctx)
}
