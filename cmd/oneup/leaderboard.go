package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucas-martinati/OneUp-sub000/internal/remote"
)

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the shared leaderboard",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		cfg := loadConfig()
		if cfg.Remote.URL == "" {
			fmt.Fprintf(os.Stderr, "Error: no remote configured (set remote.url)\n")
			os.Exit(1)
		}

		client := remote.NewClient(cfg.Remote.URL, quietLogger())
		board, err := client.Leaderboard(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading leaderboard: %v\n", err)
			os.Exit(1)
		}
		if len(board) == 0 {
			fmt.Println("Nobody on the leaderboard yet.")
			return
		}

		entries := make([]*remote.LeaderboardEntry, 0, len(board))
		for _, entry := range board {
			entries = append(entries, entry)
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].TotalReps > entries[j].TotalReps
		})

		for i, entry := range entries {
			name := entry.Pseudo
			if name == "" {
				name = "anonymous"
			}
			fmt.Printf("%2d. %-20s %d reps\n", i+1, name, entry.TotalReps)
		}
	},
}

func init() {
	rootCmd.AddCommand(leaderboardCmd)
}
