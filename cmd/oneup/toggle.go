package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucas-martinati/OneUp-sub000/internal/ui"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle [date]",
	Short: "Toggle a whole day done or not done",
	Long: `Mark every exercise for a day complete in one go, or undo that if
any of them already is.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		st, db := openStore(ctx, cfg, quietLogger())
		defer db.Close()

		text := ""
		if len(args) == 1 {
			text = args[0]
		}
		dateStr, err := parseDate(text, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := st.ToggleDay(ctx, dateStr); err != nil {
			fmt.Fprintf(os.Stderr, "Error toggling day: %v\n", err)
			os.Exit(1)
		}

		if st.IsDayDone(dateStr) {
			fmt.Println(ui.Success(fmt.Sprintf("%s marked done", dateStr)))
		} else {
			fmt.Println(ui.Warn(fmt.Sprintf("%s marked not done", dateStr)))
		}

		pushBestEffort(ctx, newEngine(cfg, quietLogger()), st)
	},
}

func init() {
	rootCmd.AddCommand(toggleCmd)
}
