package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/libra-app/libra-cli/internal/api"
	"github.com/libra-app/libra-cli/internal/config"
	"github.com/libra-app/libra-cli/internal/inbox"
)

var (
	notificationsUnreadOnly bool
	notificationsPage       int
	notificationsInterval   time.Duration
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"inbox"},
	Short:   "Read your notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications",
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		q := api.NotificationQuery{Page: notificationsPage}
		if notificationsUnreadOnly {
			unread := false
			q.IsRead = &unread
		}
		page, err := a.client.ListNotifications(cmd.Context(), q)
		if err != nil {
			return err
		}
		if len(page.Results) == 0 {
			fmt.Fprintln(a.out, "Nothing here.")
			return nil
		}

		tw := a.table()
		fmt.Fprintln(tw, "ID\t\tTITLE\tMESSAGE\tWHEN\t")
		for _, n := range page.Results {
			marker := " "
			if !n.IsRead {
				marker = "•"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\n", n.ID, marker, n.Title, n.Text(), when(n.CreatedAt))
		}
		return tw.Flush()
	}),
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <notification-id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0], "notification")
		if err != nil {
			return err
		}
		if err := a.client.MarkNotificationRead(cmd.Context(), id); err != nil {
			return err
		}
		okColor.Fprintf(a.out, "Notification %d marked as read.\n", id)
		return nil
	}),
}

var notificationsReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		n, err := a.client.MarkAllNotificationsRead(cmd.Context())
		if err != nil {
			return err
		}
		okColor.Fprintf(a.out, "%d notifications marked as read.\n", n)
		return nil
	}),
}

var notificationsUnreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Print the unread count",
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		n, err := a.client.UnreadCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, n)
		return nil
	}),
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the unread count until interrupted",
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var mu sync.Mutex
		last := -1
		counter := inbox.NewCounter(func(ctx context.Context) (int, error) {
			n, err := a.client.UnreadCount(ctx)
			if err != nil {
				warnColor.Fprintf(a.out, "%s  could not refresh: %v\n", time.Now().Format(time.Kitchen), err)
				return 0, err
			}
			mu.Lock()
			changed := n != last
			last = n
			mu.Unlock()
			if changed {
				fmt.Fprintf(a.out, "%s  unread: %d\n", time.Now().Format(time.Kitchen), n)
			}
			return n, nil
		}, &a.log)

		interval := notificationsInterval
		if interval <= 0 {
			interval = a.cfg.PollInterval()
		}
		dimColor.Fprintf(a.out, "Polling every %s. Press Ctrl+C to stop.\n", interval)
		counter.EnsurePolling(ctx, interval)
		defer counter.StopPolling()

		if notificationsInterval <= 0 {
			err := config.Watch(ctx, configFile, flagOverrides(), func(cfg *config.Config, err error) {
				if err != nil {
					a.log.Warn().Err(err).Msg("ignoring invalid config change")
					return
				}
				if next := cfg.PollInterval(); next != counter.Interval() {
					dimColor.Fprintf(a.out, "Poll interval changed to %s.\n", next)
					counter.StopPolling()
					counter.EnsurePolling(ctx, next)
				}
			})
			if err != nil {
				a.log.Warn().Err(err).Msg("config reload disabled")
			}
		}

		<-ctx.Done()
		fmt.Fprintln(a.out, "\nStopping.")
		return nil
	}),
}

func when(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

func init() {
	notificationsListCmd.Flags().BoolVar(&notificationsUnreadOnly, "unread", false, "only unread notifications")
	notificationsListCmd.Flags().IntVar(&notificationsPage, "page", 0, "page number")
	notificationsWatchCmd.Flags().DurationVar(&notificationsInterval, "interval", 0, "poll interval (default from config)")

	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)
	notificationsCmd.AddCommand(notificationsReadAllCmd)
	notificationsCmd.AddCommand(notificationsUnreadCmd)
	notificationsCmd.AddCommand(notificationsWatchCmd)
}
