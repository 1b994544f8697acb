package api

import (
	"context"
	"fmt"
)

type bookRef struct {
	BookID int64 `json:"book_id"`
}

func (p PageParams) options() []RequestOption {
	return []RequestOption{
		WithParam("page", itoa(p.Page)),
		WithParam("page_size", itoa(p.PageSize)),
	}
}

// ListLoans returns the current user's loans, newest first.
func (c *Client) ListLoans(ctx context.Context, params PageParams) (*Page[Loan], error) {
	var page Page[Loan]
	if err := c.Get(ctx, "/api/loans/", &page, params.options()...); err != nil {
		return nil, err
	}
	return &page, nil
}

// BorrowBook creates a loan. The backend rejects it when no copy is
// available; ReserveBook queues instead.
func (c *Client) BorrowBook(ctx context.Context, bookID int64) (*Loan, error) {
	var loan Loan
	if err := c.Post(ctx, "/api/loans/", bookRef{BookID: bookID}, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (c *Client) ReturnLoan(ctx context.Context, loanID int64) (*Loan, error) {
	return c.loanAction(ctx, loanID, "return")
}

func (c *Client) RenewLoan(ctx context.Context, loanID int64) (*Loan, error) {
	return c.loanAction(ctx, loanID, "renew")
}

func (c *Client) loanAction(ctx context.Context, loanID int64, action string) (*Loan, error) {
	var loan Loan
	if err := c.Post(ctx, fmt.Sprintf("/api/loans/%d/%s/", loanID, action), nil, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

// ReserveBook places the user in the wait queue for a book.
func (c *Client) ReserveBook(ctx context.Context, bookID int64) (*Reservation, error) {
	var res Reservation
	if err := c.Post(ctx, "/api/reservations/", bookRef{BookID: bookID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
