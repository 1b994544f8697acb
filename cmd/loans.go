package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/libra-app/libra-cli/internal/api"
)

var loansPage api.PageParams

var loansCmd = &cobra.Command{
	Use:   "loans",
	Short: "Manage your loans",
}

var loansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your loans",
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		page, err := a.client.ListLoans(cmd.Context(), loansPage)
		if err != nil {
			return err
		}

		tw := a.table()
		fmt.Fprintln(tw, "ID\tBOOK\tSTATUS\tDUE\tRENEWED\t")
		for _, l := range page.Results {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t\n", l.ID, l.Title(), l.Status, l.DueAt, l.RenewCount)
		}
		tw.Flush()
		dimColor.Fprintf(a.out, "%d of %d loans\n", len(page.Results), page.Count)
		return nil
	}),
}

var loansBorrowCmd = &cobra.Command{
	Use:   "borrow <book-id>",
	Short: "Borrow a book",
	Args:  cobra.ExactArgs(1),
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		bookID, err := parseID(args[0], "book")
		if err != nil {
			return err
		}
		loan, err := a.client.BorrowBook(cmd.Context(), bookID)
		if err != nil {
			if api.StatusCode(err) == http.StatusConflict {
				warnColor.Fprintf(a.out, "No copy available. Run 'libra reserve %d' to join the queue.\n", bookID)
			}
			return err
		}
		okColor.Fprintf(a.out, "Borrowed %s (loan %d), due %s\n", loan.Title(), loan.ID, loan.DueAt)
		return nil
	}),
}

var loansReturnCmd = &cobra.Command{
	Use:   "return <loan-id>",
	Short: "Return a borrowed book",
	Args:  cobra.ExactArgs(1),
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0], "loan")
		if err != nil {
			return err
		}
		if _, err := a.client.ReturnLoan(cmd.Context(), id); err != nil {
			return err
		}
		okColor.Fprintf(a.out, "Loan %d returned.\n", id)
		return nil
	}),
}

var loansRenewCmd = &cobra.Command{
	Use:   "renew <loan-id>",
	Short: "Extend a loan",
	Args:  cobra.ExactArgs(1),
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0], "loan")
		if err != nil {
			return err
		}
		loan, err := a.client.RenewLoan(cmd.Context(), id)
		if err != nil {
			return err
		}
		okColor.Fprintf(a.out, "Loan %d renewed, now due %s.\n", id, loan.DueAt)
		return nil
	}),
}

var reserveCmd = &cobra.Command{
	Use:   "reserve <book-id>",
	Short: "Join the wait queue for a book",
	Args:  cobra.ExactArgs(1),
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		bookID, err := parseID(args[0], "book")
		if err != nil {
			return err
		}
		res, err := a.client.ReserveBook(cmd.Context(), bookID)
		if err != nil {
			return err
		}
		okColor.Fprintf(a.out, "Reservation %d is %s.\n", res.ID, res.Status)
		return nil
	}),
}

func init() {
	loansListCmd.Flags().IntVar(&loansPage.Page, "page", 1, "page number")
	loansListCmd.Flags().IntVar(&loansPage.PageSize, "page-size", 20, "results per page")

	loansCmd.AddCommand(loansListCmd)
	loansCmd.AddCommand(loansBorrowCmd)
	loansCmd.AddCommand(loansReturnCmd)
	loansCmd.AddCommand(loansRenewCmd)
}
