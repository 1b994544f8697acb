package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "Manage favorite books",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorite books",
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		favs, err := a.client.ListFavorites(cmd.Context())
		if err != nil {
			return err
		}
		if len(favs) == 0 {
			fmt.Fprintln(a.out, "No favorites yet.")
			return nil
		}
		tw := a.table()
		fmt.Fprintln(tw, "BOOK\tTITLE\tAUTHOR\t")
		for _, f := range favs {
			fmt.Fprintf(tw, "%d\t%s\t%s\t\n", f.Book.ID, f.Book.Title, f.Book.Author)
		}
		return tw.Flush()
	}),
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add <book-id>",
	Short: "Add a book to favorites",
	Args:  cobra.ExactArgs(1),
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0], "book")
		if err != nil {
			return err
		}
		if err := a.client.AddFavorite(cmd.Context(), id); err != nil {
			return err
		}
		okColor.Fprintf(a.out, "Book %d added to favorites.\n", id)
		return nil
	}),
}

var favoritesRemoveCmd = &cobra.Command{
	Use:     "remove <book-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a book from favorites",
	Args:    cobra.ExactArgs(1),
	RunE: withLogin(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0], "book")
		if err != nil {
			return err
		}
		if err := a.client.RemoveFavorite(cmd.Context(), id); err != nil {
			return err
		}
		okColor.Fprintf(a.out, "Book %d removed from favorites.\n", id)
		return nil
	}),
}

func init() {
	favoritesCmd.AddCommand(favoritesListCmd)
	favoritesCmd.AddCommand(favoritesAddCmd)
	favoritesCmd.AddCommand(favoritesRemoveCmd)
}
