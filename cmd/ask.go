package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/libra-app/libra-cli/internal/stream"
)

var askSync bool

var askCmd = &cobra.Command{
	Use:   "ask <ticket-id> <question>",
	Short: "Ask the assistant within a ticket and stream the answer",
	Args:  cobra.MinimumNArgs(2),
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		ticketID, err := parseID(args[0], "ticket")
		if err != nil {
			return err
		}
		content := strings.Join(args[1:], " ")

		if askSync {
			reply, err := a.client.AIReply(cmd.Context(), ticketID, content)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, reply.Content)
			return nil
		}
		return a.streamReply(cmd.Context(), ticketID, content)
	}),
}

func (a *app) streamReply(parent context.Context, ticketID int64, content string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The stream never refreshes tokens itself.
	if _, err := a.client.Me(ctx); err != nil {
		return err
	}

	reader, err := stream.NewReader(stream.Config{
		BaseURL:       a.cfg.StreamBase(),
		Store:         a.store,
		Logger:        &a.log,
		IdleTimeout:   a.cfg.IdleTimeout(),
		MaxBufferSize: a.cfg.Stream.MaxBufferBytes,
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	var wrote bool
	err = reader.Start(ctx, ticketID, content, stream.Handlers{
		OnOpen: func() {
			dimColor.Fprintln(a.out, "assistant:")
		},
		OnDelta: func(payload string) {
			wrote = true
			fmt.Fprint(a.out, payload)
		},
		OnDone: func() {
			if wrote {
				fmt.Fprintln(a.out)
			}
		},
	})
	if err != nil {
		return err
	}

	if err := reader.Wait(); err != nil {
		var statusErr *stream.StatusError
		if errors.As(err, &statusErr) && statusErr.Unauthorized() {
			return fmt.Errorf("%w (run 'libra login' and try again)", err)
		}
		return err
	}
	if reader.State() == stream.StateCancelled {
		warnColor.Fprintln(a.out, "\n(cancelled)")
	}
	return nil
}

func init() {
	askCmd.Flags().BoolVar(&askSync, "sync", false, "wait for the complete answer instead of streaming")
}
