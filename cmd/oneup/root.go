package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/lucas-martinati/OneUp-sub000/internal/config"
	"github.com/lucas-martinati/OneUp-sub000/internal/exercise"
	"github.com/lucas-martinati/OneUp-sub000/internal/progress"
	"github.com/lucas-martinati/OneUp-sub000/internal/remote"
	"github.com/lucas-martinati/OneUp-sub000/internal/store"
	"github.com/lucas-martinati/OneUp-sub000/internal/syncengine"
)

var (
	flagConfig string
	flagDB     string
	flagRemote string
	flagUID    string
)

var rootCmd = &cobra.Command{
	Use:   "oneup",
	Short: "Year-long escalating exercise challenge tracker",
	Long: `oneup tracks a year-long escalating exercise challenge: on day n of
the year, each exercise's goal is n scaled by its multiplier.

Progress is stored locally and survives offline use. With a remote
configured, every device converges on the same history: the newest
change to each exercise on each day wins.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default $HOME/.oneup/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "progress database path")
	rootCmd.PersistentFlags().StringVar(&flagRemote, "remote", "", "replica server URL")
	rootCmd.PersistentFlags().StringVar(&flagUID, "uid", "", "user id for sync")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	if flagRemote != "" {
		cfg.Remote.URL = flagRemote
	}
	if flagUID != "" {
		cfg.User.UID = flagUID
	}
	return cfg
}

// openStore opens the local database and returns an initialized store.
// The exercise config is optional; without one the built-in catalogue
// applies.
func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (*store.Store, *store.DB) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}

	defs := exercise.Default()
	if _, err := os.Stat(cfg.ExercisesPath); err == nil {
		defs, err = exercise.Load(cfg.ExercisesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading exercise config: %v\n", err)
			os.Exit(1)
		}
	}

	st := store.New(db, defs, logger)
	if err := st.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing store: %v\n", err)
		os.Exit(1)
	}
	return st, db
}

// newEngine wires a sync engine from config, nil when sync is not
// configured.
func newEngine(cfg *config.Config, logger *log.Logger) *syncengine.Engine {
	if cfg.Remote.URL == "" || cfg.User.UID == "" {
		return nil
	}
	identity := &remote.StaticIdentity{
		UserID: cfg.User.UID,
		Name:   cfg.User.Name,
		Mail:   cfg.User.Email,
		Photo:  cfg.User.PhotoURL,
	}
	client := remote.NewClient(cfg.Remote.URL, logger)
	return syncengine.New(client, identity, logger)
}

// pushBestEffort syncs after a mutation when a remote is configured.
// Failures are reported but never fail the local mutation.
func pushBestEffort(ctx context.Context, engine *syncengine.Engine, st *store.Store) {
	if engine == nil {
		return
	}
	syncCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	merged, err := engine.Sync(syncCtx, st.State())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: sync failed, change saved locally: %v\n", err)
		return
	}
	if err := st.Adopt(syncCtx, merged); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to adopt sync result: %v\n", err)
	}
}

// parseDate accepts "today", "yesterday", YYYY-MM-DD, or natural
// language like "last monday", normalized to a day key.
func parseDate(text string, now time.Time) (string, error) {
	switch text {
	case "", "today":
		return progress.DayKey(now), nil
	case "yesterday":
		return progress.DayKey(now.AddDate(0, 0, -1)), nil
	}

	if t, err := progress.ParseDay(text); err == nil {
		return progress.DayKey(t), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, now)
	if err == nil && r != nil {
		return progress.DayKey(r.Time), nil
	}
	return "", fmt.Errorf("could not understand date %q", text)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
