package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/rdtctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	listenAddr    string
	listenMaxSize int
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Accept one peer and print its messages until it closes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := fileCfg.Listen
		if cmd.Flags().Changed("addr") {
			addr = listenAddr
		}
		sc, err := fileCfg.SessionConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stopMetrics, err := startMetrics(fileCfg.Metrics.Addr)
		if err != nil {
			return err
		}
		defer stopMetrics()

		ch, err := openChannel(addr, fileCfg.ChannelImpairment())
		if err != nil {
			return err
		}
		log.Info().Str("addr", ch.LocalAddr().String()).Msg("waiting for peer")
		conn, peer, err := session.Accept(ctx, ch, sc)
		if err != nil {
			_ = ch.Close()
			return err
		}
		defer conn.Close()
		log.Info().Str("peer", peer.String()).Msg("peer connected")

		start := time.Now()
		n, err := receiveAll(ctx, conn, listenMaxSize, cmd.OutOrStdout())
		if sumErr := renderSummary(cmd.ErrOrStderr(), conn, n, time.Since(start)); sumErr != nil {
			log.Warn().Err(sumErr).Msg("summary render failed")
		}
		return err
	},
}

func init() {
	listenCmd.Flags().StringVar(&listenAddr, "addr", ":9999", "UDP address to bind")
	listenCmd.Flags().IntVar(&listenMaxSize, "max-size", 1024, "largest accepted message payload in bytes")
	rootCmd.AddCommand(listenCmd)
}
