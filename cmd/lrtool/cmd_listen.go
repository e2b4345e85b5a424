// Local webhook listener command.
package main

import (
	"os/signal"
	"syscall"

	"github.com/livereview/lrtool/internal/listener"
	"github.com/spf13/cobra"
)

var (
	listenAddr   string
	listenSecret string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the local webhook listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		addr := cfg.Listener.ListenAddr
		if listenAddr != "" {
			addr = listenAddr
		}
		secret := cfg.Listener.Secret
		if listenSecret != "" {
			secret = listenSecret
		}

		server, err := listener.New(listener.Config{
			Addr:        addr,
			Secret:      secret,
			GitlabToken: cfg.Listener.GitlabToken,
			DedupTTL:    cfg.Listener.DedupTTL,
		}, logger, st)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return server.Run(ctx)
	},
}

func init() {
	listenCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address, overrides listener.listen_addr")
	listenCmd.Flags().StringVar(&listenSecret, "secret", "", "webhook secret, overrides listener.secret")
}
