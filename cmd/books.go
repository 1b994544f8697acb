package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/libra-app/libra-cli/internal/api"
)

var booksParams api.ListBooksParams

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Browse the catalog",
}

var booksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books",
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		page, err := a.client.ListBooks(cmd.Context(), booksParams)
		if err != nil {
			return err
		}

		favs := api.NewFavorites(a.client)
		if err := favs.Load(cmd.Context()); err != nil {
			a.log.Debug().Err(err).Msg("favorites unavailable")
		}

		tw := a.table()
		fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tAVAILABLE\t")
		for _, b := range page.Results {
			title := b.Title
			if ok, _ := favs.IsFavorite(cmd.Context(), b.ID); ok {
				title = "★ " + title
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", b.ID, title, b.Author, availability(b))
		}
		tw.Flush()
		dimColor.Fprintf(a.out, "%d of %d books\n", len(page.Results), page.Count)
		return nil
	}),
}

var booksShowCmd = &cobra.Command{
	Use:   "show <book-id>",
	Short: "Show a book",
	Args:  cobra.ExactArgs(1),
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0], "book")
		if err != nil {
			return err
		}
		b, err := a.client.GetBook(cmd.Context(), id)
		if err != nil {
			return err
		}

		headColor.Fprintln(a.out, b.Title)
		fmt.Fprintf(a.out, "  Author:    %s\n", b.Author)
		if b.Category != nil {
			fmt.Fprintf(a.out, "  Category:  %s\n", b.Category.Name)
		}
		fmt.Fprintf(a.out, "  Copies:    %d of %d available\n", b.AvailableCopies, b.TotalCopies)
		if b.Available() {
			okColor.Fprintf(a.out, "  Run 'libra loans borrow %d' to borrow it.\n", b.ID)
		} else {
			warnColor.Fprintf(a.out, "  No copy available. Run 'libra reserve %d' to join the queue.\n", b.ID)
		}
		return nil
	}),
}

func availability(b api.Book) string {
	if b.Available() {
		return fmt.Sprintf("%d", b.AvailableCopies)
	}
	return "no"
}

func init() {
	booksListCmd.Flags().IntVar(&booksParams.Page, "page", 1, "page number")
	booksListCmd.Flags().IntVar(&booksParams.PageSize, "page-size", 20, "results per page")
	booksListCmd.Flags().StringVarP(&booksParams.Query, "query", "q", "", "match title, author or category")
	booksListCmd.Flags().StringVar(&booksParams.Category, "category", "", "category id")

	booksCmd.AddCommand(booksListCmd)
	booksCmd.AddCommand(booksShowCmd)
}
