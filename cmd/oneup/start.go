package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/lucas-martinati/OneUp-sub000/internal/ui"
)

var startCmd = &cobra.Command{
	Use:   "start [date]",
	Short: "Start (or restart) the challenge",
	Long: `Start the challenge from a given date. Days before it, back to
January 1, are marked complete so the goal line picks up at today's
day number instead of day one.

With no date argument an interactive prompt asks for one; natural
language like "last monday" works.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		st, db := openStore(ctx, cfg, quietLogger())
		defer db.Close()

		text := ""
		if len(args) == 1 {
			text = args[0]
		} else {
			var confirmed bool
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("When did you start?").
						Description(`A date like 2025-03-01, or "last monday", or "today".`).
						Value(&text),
					huh.NewConfirm().
						Title("Mark all earlier days this year as done?").
						Value(&confirmed),
				),
			)
			if err := form.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !confirmed {
				fmt.Println("Aborted.")
				return
			}
		}

		dateStr, err := parseDate(text, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := st.StartChallenge(ctx, dateStr); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting challenge: %v\n", err)
			os.Exit(1)
		}

		day := st.DayNumber(dateStr)
		fmt.Println(ui.Success(fmt.Sprintf("Challenge started from %s (day %d)", dateStr, day)))

		pushBestEffort(ctx, newEngine(cfg, quietLogger()), st)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
