package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucas-martinati/OneUp-sub000/internal/remote"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a replica server",
	Long: `Run the replica server the trackers sync against. State is held in
memory; this is meant for self-hosting on a box that stays up, and
for development.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := log.New(os.Stderr, "[serve] ", log.LstdFlags)

		srv := remote.NewServer(&remote.ServerConfig{
			Port:   servePort,
			Logger: logger,
		})
		if err := srv.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Replica server listening on %s\n", srv.URL())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		if err := srv.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}
