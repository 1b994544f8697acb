package api

import (
	"context"
	"fmt"
	"strconv"
)

// TicketQuery filters the ticket list. Page and PageSize default to 1
// and 10.
type TicketQuery struct {
	Mine     *bool
	Status   string
	Page     int
	PageSize int
}

// CreateTicketRequest opens a ticket, optionally with a first message.
type CreateTicketRequest struct {
	Subject string         `json:"subject"`
	Content string         `json:"content,omitempty"`
	Config  map[string]any `json:"config,omitempty"`
}

type chatInput struct {
	TicketID int64  `json:"ticket_id"`
	Content  string `json:"content"`
}

func (c *Client) ListTickets(ctx context.Context, q TicketQuery) (*Page[Ticket], error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 10
	}
	opts := []RequestOption{
		WithParam("status", q.Status),
		WithParam("page", itoa(q.Page)),
		WithParam("page_size", itoa(q.PageSize)),
	}
	if q.Mine != nil {
		opts = append(opts, WithParam("mine", strconv.FormatBool(*q.Mine)))
	}

	var page Page[Ticket]
	if err := c.Get(ctx, "/chat/tickets/", &page, opts...); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateTicket opens a ticket and returns its id. The backend answers
// with either id or ticket_id.
func (c *Client) CreateTicket(ctx context.Context, req CreateTicketRequest) (int64, error) {
	var resp struct {
		ID       *int64 `json:"id"`
		TicketID *int64 `json:"ticket_id"`
	}
	if err := c.Post(ctx, "/chat/tickets/", req, &resp); err != nil {
		return 0, err
	}
	switch {
	case resp.ID != nil:
		return *resp.ID, nil
	case resp.TicketID != nil:
		return *resp.TicketID, nil
	}
	return 0, fmt.Errorf("create ticket: missing id/ticket_id: %w", ErrMalformedResponse)
}

// ListMessages returns a page of a ticket's messages. Page and pageSize
// default to 1 and 100.
func (c *Client) ListMessages(ctx context.Context, ticketID int64, page, pageSize int) (*Page[Message], error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	var out Page[Message]
	err := c.Get(ctx, "/chat/messages/", &out,
		WithParam("ticket_id", strconv.FormatInt(ticketID, 10)),
		WithParam("page", strconv.Itoa(page)),
		WithParam("page_size", strconv.Itoa(pageSize)),
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PostMessage(ctx context.Context, ticketID int64, content string) (*Message, error) {
	var msg Message
	if err := c.Post(ctx, "/chat/messages/", chatInput{TicketID: ticketID, Content: content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AIReply asks the assistant for a complete, non-streamed answer.
func (c *Client) AIReply(ctx context.Context, ticketID int64, content string) (*AIReply, error) {
	var reply AIReply
	if err := c.Post(ctx, "/chat/ai/reply/", chatInput{TicketID: ticketID, Content: content}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}
