package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Page is the backend's pagination envelope.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next,omitempty"`
	Previous *string `json:"previous,omitempty"`
	Results  []T     `json:"results"`
}

// PageParams selects a page of a list endpoint. Zero values are omitted.
type PageParams struct {
	Page     int
	PageSize int
}

// LoginResponse is returned from POST /auth/login/. Older deployments
// send access/refresh instead of access_token/refresh_token.
type LoginResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Access       string `json:"access,omitempty"`
	Refresh      string `json:"refresh,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// Tokens returns the credential pair, preferring the *_token fields.
func (r *LoginResponse) Tokens() (access, refresh string) {
	access = r.AccessToken
	if access == "" {
		access = r.Access
	}
	refresh = r.RefreshToken
	if refresh == "" {
		refresh = r.Refresh
	}
	return access, refresh
}

// RefreshResponse is returned from POST /auth/refresh/. Refresh is only
// set when the server rotates refresh tokens.
type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// RegisterRequest is the payload for POST /auth/register/.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// Me is returned from GET /auth/me/ and POST /auth/register/.
type Me struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

// Category is a book category.
type Category struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	BookCount int    `json:"book_count,omitempty"`
}

// Book is a catalog entry.
type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author,omitempty"`
	Category        *Category `json:"category,omitempty"`
	TotalCopies     int       `json:"total_copies,omitempty"`
	AvailableCopies int       `json:"available_copies"`
	Status          string    `json:"status,omitempty"`
}

// Available reports whether a copy can be borrowed right now.
func (b Book) Available() bool {
	if b.Status != "" {
		return b.Status == "available"
	}
	return b.AvailableCopies > 0
}

// LoanBook is the book reference embedded in a loan. The backend sends
// either a bare id or an object with id and title.
type LoanBook struct {
	ID     int64  `json:"id"`
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
}

func (b *LoanBook) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] != '{' {
		if err := json.Unmarshal(data, &b.ID); err != nil {
			return fmt.Errorf("decoding loan book id: %w", err)
		}
		return nil
	}
	type plain LoanBook
	return json.Unmarshal(data, (*plain)(b))
}

// Loan is a borrow or a reservation record.
type Loan struct {
	ID         int64    `json:"id"`
	Type       string   `json:"type,omitempty"`
	Status     string   `json:"status,omitempty"`
	Book       LoanBook `json:"book"`
	BookTitle  string   `json:"book_title,omitempty"`
	LoanedAt   string   `json:"loaned_at,omitempty"`
	DueAt      string   `json:"due_at,omitempty"`
	ReturnedAt *string  `json:"returned_at,omitempty"`
	RenewCount int      `json:"renew_count,omitempty"`
	Renewable  *bool    `json:"renewable,omitempty"`
	CreatedAt  string   `json:"created_at,omitempty"`
}

// Title returns the best available book title.
func (l Loan) Title() string {
	if l.Book.Title != "" {
		return l.Book.Title
	}
	return l.BookTitle
}

// Reservation is returned from POST /api/reservations/.
type Reservation struct {
	ID     int64  `json:"id"`
	BookID int64  `json:"book_id,omitempty"`
	Status string `json:"status"`
}

// Favorite is an entry of the user's favorites list.
type Favorite struct {
	ID        int64  `json:"id"`
	Book      Book   `json:"book"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Notification is an inbox entry. The body is named body or message
// depending on the backend version.
type Notification struct {
	ID        int64   `json:"id"`
	Type      string  `json:"type,omitempty"`
	Title     string  `json:"title,omitempty"`
	Body      *string `json:"body,omitempty"`
	Message   *string `json:"message,omitempty"`
	IsRead    bool    `json:"is_read"`
	CreatedAt string  `json:"created_at"`
	Loan      *int64  `json:"loan,omitempty"`
	LoanID    *int64  `json:"loan_id,omitempty"`
}

// Text returns the notification body, whichever field carries it.
func (n Notification) Text() string {
	if n.Body != nil && *n.Body != "" {
		return *n.Body
	}
	if n.Message != nil {
		return *n.Message
	}
	return ""
}

// Ticket statuses.
const (
	TicketOpen   = "open"
	TicketClosed = "closed"
)

// Ticket is a support conversation.
type Ticket struct {
	ID        int64          `json:"id"`
	Subject   string         `json:"subject"`
	Status    string         `json:"status"`
	Config    map[string]any `json:"config,omitempty"`
	Assignee  *int64         `json:"assignee,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// Message is a chat message within a ticket.
type Message struct {
	ID           int64          `json:"id"`
	Ticket       int64          `json:"ticket"`
	Content      string         `json:"content"`
	IsAI         bool           `json:"is_ai"`
	CreatedAt    string         `json:"created_at"`
	ResponseMeta map[string]any `json:"response_meta,omitempty"`
}

// AIReply is returned from the synchronous POST /chat/ai/reply/.
type AIReply struct {
	MessageID int64  `json:"message_id"`
	Content   string `json:"content"`
}
