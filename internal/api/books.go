package api

import (
	"context"
	"fmt"
	"strconv"
)

// ListBooksParams filters the catalog. Zero values are omitted.
type ListBooksParams struct {
	Page     int
	PageSize int
	// Query matches title, author or category name.
	Query    string
	Category string
}

func (p ListBooksParams) options() []RequestOption {
	return []RequestOption{
		WithParam("page", itoa(p.Page)),
		WithParam("page_size", itoa(p.PageSize)),
		WithParam("query", p.Query),
		WithParam("category", p.Category),
	}
}

// ListBooks returns one page of the catalog.
func (c *Client) ListBooks(ctx context.Context, params ListBooksParams) (*Page[Book], error) {
	var page Page[Book]
	if err := c.Get(ctx, "/api/books/", &page, params.options()...); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetBook returns a single book.
func (c *Client) GetBook(ctx context.Context, id int64) (*Book, error) {
	var book Book
	if err := c.Get(ctx, fmt.Sprintf("/api/books/%d/", id), &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// itoa formats positive ints; zero and negatives become "" so WithParam
// drops them.
func itoa(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
