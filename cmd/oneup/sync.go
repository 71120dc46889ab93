package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucas-martinati/OneUp-sub000/internal/ui"
)

var syncLeaderboard bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile local progress with the remote",
	Long: `Merge local progress with the remote copy and push the result. For
each exercise on each day the most recently changed side wins.

Requires remote.url and user.uid in the config (or --remote/--uid).`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cfg := loadConfig()
		engine := newEngine(cfg, quietLogger())
		if engine == nil {
			fmt.Fprintf(os.Stderr, "Error: no remote configured (set remote.url and user.uid)\n")
			os.Exit(1)
		}

		st, db := openStore(ctx, cfg, quietLogger())
		defer db.Close()

		merged, err := engine.Sync(ctx, st.State())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error syncing: %v\n", err)
			os.Exit(1)
		}
		if err := st.Adopt(ctx, merged); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving merged state: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.Success("Synced"))

		if syncLeaderboard {
			if err := engine.PublishLeaderboard(ctx, st.State(), st.Exercises()); err != nil {
				fmt.Fprintf(os.Stderr, "Error publishing leaderboard entry: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(ui.Success("Leaderboard entry published"))
		}
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncLeaderboard, "leaderboard", false, "also publish totals to the leaderboard")
	rootCmd.AddCommand(syncCmd)
}
