package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucas-martinati/OneUp-sub000/internal/ui"
)

var statusDate string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's goals, progress, and streaks",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		st, db := openStore(ctx, cfg, quietLogger())
		defer db.Close()

		dateStr, err := parseDate(statusDate, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		state := st.State()
		if !state.IsSetup {
			fmt.Println(ui.Warn("No challenge in progress. Run 'oneup start' first."))
			return
		}

		day := st.DayNumber(dateStr)
		record := state.Completions[dateStr]

		var lines []ui.ExerciseLine
		for _, def := range st.Exercises() {
			c := record[def.ID]
			name := def.Name
			if name == "" {
				name = def.ID
			}
			lines = append(lines, ui.ExerciseLine{
				Name:   name,
				Goal:   st.GoalFor(dateStr, def.ID),
				Count:  c.Count,
				Done:   c.IsCompleted,
				Streak: st.ExerciseStreak(def.ID),
			})
		}

		fmt.Print(ui.StatusBoard("OneUp", day, lines, st.Streak()))

		for _, def := range st.Exercises() {
			name := def.Name
			if name == "" {
				name = def.ID
			}
			fmt.Printf("%s total: %d reps\n", name, st.TotalReps(def.ID))
		}
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusDate, "date", "", `day to show (default "today")`)
	rootCmd.AddCommand(statusCmd)
}
