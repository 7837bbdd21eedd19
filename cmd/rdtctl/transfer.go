package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/rdtctl/internal/channel"
	"github.com/danmuck/rdtctl/internal/protocol/frame"
	"github.com/danmuck/rdtctl/internal/protocol/session"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
)

// openChannel binds addr over UDP, wrapped in the configured impairment.
func openChannel(addr string, imp channel.Impairment) (channel.Conn, error) {
	udp, err := channel.ListenUDP(addr)
	if err != nil {
		return nil, err
	}
	if !imp.Enabled() {
		return udp, nil
	}
	log.Warn().
		Float64("drop_rate", imp.DropRate).
		Float64("corrupt_rate", imp.CorruptRate).
		Float64("duplicate_rate", imp.DuplicateRate).
		Int("rate_bytes_per_sec", imp.RateBytesPerSec).
		Msg("channel impairment enabled")
	return channel.Unreliable(udp, imp), nil
}

// receiveAll writes each message on its own line until the peer closes.
func receiveAll(ctx context.Context, conn *session.Conn, maxSize int, out io.Writer) (int, error) {
	count := 0
	for {
		msg, err := conn.Receive(ctx, maxSize)
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}
		count++
		if _, err := fmt.Fprintln(out, string(msg)); err != nil {
			return count, err
		}
	}
}

func sendMessages(ctx context.Context, conn *session.Conn, msgs []string) (int, error) {
	for i, msg := range msgs {
		if err := conn.Send(ctx, []byte(msg)); err != nil {
			return i, fmt.Errorf("message %d: %w", i+1, err)
		}
	}
	return len(msgs), nil
}

// sendLines sends each line of r as one message.
func sendLines(ctx context.Context, conn *session.Conn, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), frame.MaxPayload+1)
	count := 0
	for scanner.Scan() {
		if err := conn.Send(ctx, scanner.Bytes()); err != nil {
			return count, fmt.Errorf("line %d: %w", count+1, err)
		}
		count++
	}
	return count, scanner.Err()
}

func renderSummary(out io.Writer, conn *session.Conn, messages int, elapsed time.Duration) error {
	st := conn.Stats()
	peer := "-"
	if addr := conn.RemoteAddr(); addr != nil {
		peer = addr.String()
	}
	data := pterm.TableData{
		{"connection", conn.ID()},
		{"role", conn.Role().String()},
		{"peer", peer},
		{"state", conn.State().String()},
		{"messages", fmt.Sprint(messages)},
		{"frames sent", fmt.Sprint(st.FramesSent)},
		{"frames received", fmt.Sprint(st.FramesReceived)},
		{"bytes sent", fmt.Sprint(st.BytesSent)},
		{"bytes received", fmt.Sprint(st.BytesReceived)},
		{"retransmissions", fmt.Sprint(st.Retransmissions)},
		{"dropped", fmt.Sprint(st.Dropped)},
		{"duplicates", fmt.Sprint(st.Duplicates)},
		{"elapsed", elapsed.Round(time.Millisecond).String()},
	}
	return pterm.DefaultTable.WithData(data).WithWriter(out).Render()
}
