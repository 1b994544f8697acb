package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/libra-app/libra-cli/internal/api"
)

var (
	ticketsQuery     api.TicketQuery
	ticketsMine      bool
	ticketContent    string
	messagesPage     int
	messagesPageSize int
)

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Support tickets and their messages",
}

var ticketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List support tickets",
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		q := ticketsQuery
		if cmd.Flags().Changed("mine") {
			q.Mine = &ticketsMine
		}
		page, err := a.client.ListTickets(cmd.Context(), q)
		if err != nil {
			return err
		}

		tw := a.table()
		fmt.Fprintln(tw, "ID\tSUBJECT\tSTATUS\tUPDATED\t")
		for _, t := range page.Results {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", t.ID, t.Subject, t.Status, when(t.UpdatedAt))
		}
		tw.Flush()
		dimColor.Fprintf(a.out, "%d of %d tickets\n", len(page.Results), page.Count)
		return nil
	}),
}

var ticketsCreateCmd = &cobra.Command{
	Use:   "create <subject>",
	Short: "Open a support ticket",
	Args:  cobra.MinimumNArgs(1),
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := a.client.CreateTicket(cmd.Context(), api.CreateTicketRequest{
			Subject: strings.Join(args, " "),
			Content: ticketContent,
		})
		if err != nil {
			return err
		}
		okColor.Fprintf(a.out, "Ticket %d opened.\n", id)
		dimColor.Fprintf(a.out, "Ask the assistant with: libra ask %d \"your question\"\n", id)
		return nil
	}),
}

var ticketsMessagesCmd = &cobra.Command{
	Use:   "messages <ticket-id>",
	Short: "Show the messages of a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0], "ticket")
		if err != nil {
			return err
		}
		page, err := a.client.ListMessages(cmd.Context(), id, messagesPage, messagesPageSize)
		if err != nil {
			return err
		}
		for _, m := range page.Results {
			author := headColor.Sprint("you")
			if m.IsAI {
				author = okColor.Sprint("assistant")
			}
			fmt.Fprintf(a.out, "%s %s\n%s\n\n", author, dimColor.Sprint(when(m.CreatedAt)), m.Content)
		}
		return nil
	}),
}

var ticketsPostCmd = &cobra.Command{
	Use:   "post <ticket-id> <message>",
	Short: "Post a message to a ticket",
	Args:  cobra.MinimumNArgs(2),
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0], "ticket")
		if err != nil {
			return err
		}
		msg, err := a.client.PostMessage(cmd.Context(), id, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		okColor.Fprintf(a.out, "Message %d posted.\n", msg.ID)
		return nil
	}),
}

func init() {
	ticketsListCmd.Flags().BoolVar(&ticketsMine, "mine", false, "only tickets you opened")
	ticketsListCmd.Flags().StringVar(&ticketsQuery.Status, "status", "", "filter by status (open, closed)")
	ticketsListCmd.Flags().IntVar(&ticketsQuery.Page, "page", 1, "page number")
	ticketsListCmd.Flags().IntVar(&ticketsQuery.PageSize, "page-size", 10, "results per page")
	ticketsCreateCmd.Flags().StringVar(&ticketContent, "message", "", "first message")
	ticketsMessagesCmd.Flags().IntVar(&messagesPage, "page", 1, "page number")
	ticketsMessagesCmd.Flags().IntVar(&messagesPageSize, "page-size", 100, "results per page")

	ticketsCmd.AddCommand(ticketsListCmd)
	ticketsCmd.AddCommand(ticketsCreateCmd)
	ticketsCmd.AddCommand(ticketsMessagesCmd)
	ticketsCmd.AddCommand(ticketsPostCmd)
}
