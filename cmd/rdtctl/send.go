package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/rdtctl/internal/channel"
	"github.com/danmuck/rdtctl/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	sendPeer string
	sendBind string
)

var sendCmd = &cobra.Command{
	Use:   "send [message...]",
	Short: "Connect to a peer and send each message, or each stdin line when none are given",
	RunE: func(cmd *cobra.Command, args []string) error {
		peerAddr := fileCfg.Peer
		if cmd.Flags().Changed("peer") {
			peerAddr = sendPeer
		}
		sc, err := fileCfg.SessionConfig()
		if err != nil {
			return err
		}
		peer, err := channel.ResolveUDP(peerAddr)
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

		ch, err := openChannel(sendBind, fileCfg.ChannelImpairment())
		if err != nil {
			return err
		}
		conn, err := session.Connect(ctx, ch, peer, sc)
		if err != nil {
			_ = ch.Close()
			return err
		}
		log.Info().Str("peer", peer.String()).Msg("connected")

		start := time.Now()
		var n int
		if len(args) > 0 {
			n, err = sendMessages(ctx, conn, args)
		} else {
			n, err = sendLines(ctx, conn, cmd.InOrStdin())
		}
		elapsed := time.Since(start)
		closeErr := conn.Close()
		if sumErr := renderSummary(cmd.ErrOrStderr(), conn, n, elapsed); sumErr != nil {
			log.Warn().Err(sumErr).Msg("summary render failed")
		}
		return errors.Join(err, closeErr)
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendPeer, "peer", "127.0.0.1:9999", "UDP address of the listening peer")
	sendCmd.Flags().StringVar(&sendBind, "bind", ":0", "local UDP address to send from")
	rootCmd.AddCommand(sendCmd)
}
