package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lucas-martinati/OneUp-sub000/internal/daemon"
)

var daemonForeground bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Keep local progress reconciled with the remote: a periodic full
sync, a live feed of changes from other devices, and a watch on the
exercise config so edits apply without a restart.

Runs until interrupted. Logs rotate at log.file (--foreground logs to
stderr instead).`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		var logger *log.Logger
		if daemonForeground {
			logger = log.New(os.Stderr, "[oneup] ", log.LstdFlags)
		} else {
			logger = log.New(&lumberjack.Logger{
				Filename:   cfg.Log.File,
				MaxSize:    cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
			}, "[oneup] ", log.LstdFlags)
		}

		engine := newEngine(cfg, logger)
		if engine == nil {
			fmt.Fprintf(os.Stderr, "Error: no remote configured (set remote.url and user.uid)\n")
			os.Exit(1)
		}

		st, db := openStore(context.Background(), cfg, logger)
		defer db.Close()

		d := daemon.New(st, engine, daemon.Config{
			SyncInterval:  cfg.Sync.Interval,
			ExercisesPath: cfg.ExercisesPath,
			Logger:        logger,
		})
		if err := d.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting daemon: %v\n", err)
			os.Exit(1)
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		d.Stop()
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonForeground, "foreground", false, "log to stderr instead of the log file")
	rootCmd.AddCommand(daemonCmd)
}
