package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucas-martinati/OneUp-sub000/internal/ui"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or replace remote app settings",
	Long: `App settings (theme, reminders, etc) live on the remote so every
client sees the same ones. The tracker stores them opaquely; get
prints the raw JSON and set replaces it.`,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the remote settings JSON",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		engine := newEngine(loadConfig(), quietLogger())
		if engine == nil {
			fmt.Fprintf(os.Stderr, "Error: no remote configured (set remote.url and user.uid)\n")
			os.Exit(1)
		}

		blob, err := engine.LoadSettings(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading settings: %v\n", err)
			os.Exit(1)
		}
		if blob == nil {
			fmt.Println("{}")
			return
		}
		fmt.Println(string(blob))
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <json>",
	Short: "Replace the remote settings JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if !json.Valid([]byte(args[0])) {
			fmt.Fprintf(os.Stderr, "Error: settings must be valid JSON\n")
			os.Exit(1)
		}

		engine := newEngine(loadConfig(), quietLogger())
		if engine == nil {
			fmt.Fprintf(os.Stderr, "Error: no remote configured (set remote.url and user.uid)\n")
			os.Exit(1)
		}

		if err := engine.SaveSettings(ctx, json.RawMessage(args[0])); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving settings: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ui.Success("Settings saved"))
	},
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
