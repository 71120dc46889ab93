package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucas-martinati/OneUp-sub000/internal/exercise"
	"github.com/lucas-martinati/OneUp-sub000/internal/ui"
)

var logDate string

var logCmd = &cobra.Command{
	Use:   "log <exercise> <count>",
	Short: "Record reps for an exercise",
	Long: `Record how many reps you have done for one exercise today (or on
--date). Reaching the day's goal marks the exercise complete; dropping
back below it un-completes it.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		st, db := openStore(ctx, cfg, quietLogger())
		defer db.Close()

		exerciseID := args[0]
		count, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: count must be a number, got %q\n", args[1])
			os.Exit(1)
		}

		def, ok := exercise.Find(st.Exercises(), exerciseID)
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown exercise %q\n", exerciseID)
			os.Exit(1)
		}

		dateStr, err := parseDate(logDate, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		goal := st.GoalFor(dateStr, def.ID)
		if err := st.SetExerciseCount(ctx, dateStr, def.ID, count, goal); err != nil {
			fmt.Fprintf(os.Stderr, "Error recording reps: %v\n", err)
			os.Exit(1)
		}

		if count >= goal {
			fmt.Println(ui.Success(fmt.Sprintf("%s done for %s (%d/%d)", def.Name, dateStr, goal, goal)))
		} else {
			fmt.Println(ui.Warn(fmt.Sprintf("%s at %d/%d for %s", def.Name, count, goal, dateStr)))
		}

		pushBestEffort(ctx, newEngine(cfg, quietLogger()), st)
	},
}

func init() {
	logCmd.Flags().StringVar(&logDate, "date", "", `day to record against (default "today")`)
	rootCmd.AddCommand(logCmd)
}
