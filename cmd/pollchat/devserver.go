package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gopota/pollchat/internal/fakestore"
)

var flagDevAddr string

func init() {
	devserverCmd.Flags().StringVar(&flagDevAddr, "addr", "127.0.0.1:8080", "listen address")
	rootCmd.AddCommand(devserverCmd)
}

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory chat service for local development",
	Long: "Serve an in-memory implementation of the chat service protocol.\n" +
		"Point the client at it with: pollchat init http://127.0.0.1:8080/exec",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store := fakestore.New(fakestore.WithLogger(log.Logger.With().Str("component", "devserver").Logger()))
		srv := &http.Server{
			Addr:              flagDevAddr,
			Handler:           store.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
		}()
		fmt.Printf("Serving at http://%s/exec\n", flagDevAddr)

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		shutdown(srv)
		log.Info().Msg("[devserver] shutdown complete")
		return nil
	},
}
