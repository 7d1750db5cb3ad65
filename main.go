// Starts an http server to receive ActivityPub deliveries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tkrehbiel/inboxlace/server"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "inboxlace",
		Short: "ActivityPub inbox server",
		Long: `inboxlace receives ActivityPub deliveries for its local accounts,
checks who signed them, and stores the posts, reactions and follows they carry.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.json", "config file, json or yaml")

	rootCmd.AddCommand(serveCmd(), migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var (
		host     string
		pubCert  string
		privCert string
		port     int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for deliveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.HostName = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if pubCert != "" {
				cfg.Server.Certificate = pubCert
			}
			if privCert != "" {
				cfg.Server.PrivateKey = privCert
			}

			telemetry.Log("starting inboxlace")
			svc, err := server.NewService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			svc.Start(context.Background())

			// Wait for ^C
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			<-c
			telemetry.Log("stopping inboxlace")

			ctx, cancel := context.WithTimeout(context.Background(), time.Second*60)
			defer cancel()
			svc.Stop(ctx)
			telemetry.Log("stopped inboxlace cleanly")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "this hostname")
	cmd.Flags().StringVar(&pubCert, "cert", "", "public certificate")
	cmd.Flags().StringVar(&privCert, "key", "", "private key")
	cmd.Flags().IntVar(&port, "port", 0, "listen port")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables and local accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if err := server.Migrate(cmd.Context(), cfg); err != nil {
				return err
			}
			telemetry.Log("database is up to date")
			return nil
		},
	}
}
