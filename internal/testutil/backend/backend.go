// Package backend is an in-process fake of the library backend for tests.
// It issues and validates bearer tokens, serves the REST resources the
// client uses and streams AI replies over SSE.
package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// Default account accepted by /auth/login/.
const (
	Email    = "reader@example.com"
	Password = "correct horse"
)

// Server is the fake backend. Exported fields may be changed between
// requests; they are read under the server lock.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// RefreshDelay holds /auth/refresh/ before answering so concurrent
	// callers pile up behind it.
	RefreshDelay time.Duration
	// RejectRefresh makes /auth/refresh/ answer 401.
	RejectRefresh bool
	// RotateRefresh makes /auth/refresh/ return a new refresh token.
	RotateRefresh bool
	// LegacyLoginFields answers login with access/refresh keys.
	LegacyLoginFields bool
	// LoginOmitsRefresh answers login without a refresh token.
	LoginOmitsRefresh bool
	// FailLogout makes /auth/logout/ answer 500.
	FailLogout bool
	// PaginateNotifications wraps the notification list in an envelope.
	PaginateNotifications bool
	// TicketResponse replaces the body of POST /chat/tickets/ when set.
	TicketResponse map[string]any
	// UnreadStatus, when non-zero, is returned for unread-count queries.
	UnreadStatus int

	// StreamStatus, when non-zero, is returned instead of a stream.
	StreamStatus int
	// StreamChunks are written and flushed one by one.
	StreamChunks []string
	// StreamChunkDelay is slept between chunks.
	StreamChunkDelay time.Duration
	// StreamHold keeps the stream open after the chunks until the client
	// goes away.
	StreamHold bool

	seq           int
	validAccess   map[string]bool
	validRefresh  map[string]bool
	books         map[int64]map[string]any
	loans         []map[string]any
	favorites     map[int64]bool
	notifications []map[string]any
	tickets       []map[string]any
	messages      []map[string]any

	refreshCalls atomic.Int64
	hits         sync.Map // path -> *atomic.Int64
	lastStream   atomic.Pointer[http.Request]
}

// New starts a fake backend that is closed when the test finishes.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		validAccess:  make(map[string]bool),
		validRefresh: make(map[string]bool),
		favorites:    make(map[int64]bool),
		books: map[int64]map[string]any{
			1: {"id": 1, "title": "The Left Hand of Darkness", "author": "Ursula K. Le Guin", "total_copies": 2, "available_copies": 1, "status": "available"},
			2: {"id": 2, "title": "Solaris", "author": "Stanisław Lem", "total_copies": 1, "available_copies": 0, "status": "unavailable"},
			3: {"id": 3, "title": "Kindred", "author": "Octavia E. Butler", "total_copies": 3, "available_copies": 3, "status": "available"},
		},
		notifications: []map[string]any{
			{"id": 1, "type": "due_soon", "title": "Due soon", "body": "Solaris is due in 2 days", "is_read": false, "created_at": "2026-10-01T09:00:00Z"},
			{"id": 2, "type": "reservation_ready", "title": "Ready", "body": "Kindred is ready", "is_read": false, "created_at": "2026-10-02T09:00:00Z"},
			{"id": 3, "type": "system", "title": "Welcome", "body": "Welcome to the library", "is_read": true, "created_at": "2026-09-30T09:00:00Z"},
		},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.count)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login/", s.login)
		r.Post("/register/", s.register)
		r.Post("/refresh/", s.refresh)
		r.With(s.authenticated).Post("/logout/", s.logout)
		r.With(s.authenticated).Post("/logout-all/", s.logoutAll)
		r.With(s.authenticated).Get("/me/", s.me)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticated)
		r.Get("/books/", s.listBooks)
		r.Get("/books/{id}/", s.getBook)
		r.Get("/loans/", s.listLoans)
		r.Post("/loans/", s.borrow)
		r.Post("/loans/{id}/{action}/", s.loanAction)
		r.Post("/reservations/", s.reserve)
		r.Get("/me/favorites/", s.listFavorites)
		r.Post("/me/favorites/{id}/", s.addFavorite)
		r.Delete("/me/favorites/{id}/", s.removeFavorite)
		r.Get("/me/notifications/", s.listNotifications)
		r.Post("/me/notifications/read-all/", s.readAll)
		r.Post("/me/notifications/{id}/read/", s.readOne)
	})

	r.Route("/chat", func(r chi.Router) {
		r.Use(s.authenticated)
		r.Get("/tickets/", s.listTickets)
		r.Post("/tickets/", s.createTicket)
		r.Get("/messages/", s.listMessages)
		r.Post("/messages/", s.postMessage)
		r.Post("/ai/reply/", s.aiReply)
		r.Get("/ai/stream/", s.aiStream)
	})
	return r
}

// Issue creates a valid credential pair without going through login.
func (s *Server) Issue() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked()
}

func (s *Server) issueLocked() (access, refresh string) {
	s.seq++
	access = fmt.Sprintf("access-%d", s.seq)
	refresh = fmt.Sprintf("refresh-%d", s.seq)
	s.validAccess[access] = true
	s.validRefresh[refresh] = true
	return access, refresh
}

// ExpireAccess invalidates every access token issued so far.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	s.validAccess = make(map[string]bool)
	s.mu.Unlock()
}

// Set runs fn under the server lock to change its knobs safely.
func (s *Server) Set(fn func(s *Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// RefreshCalls is the number of requests /auth/refresh/ has received.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// Hits is the number of requests received for path (without query).
func (s *Server) Hits(path string) int64 {
	if v, ok := s.hits.Load(path); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

// LastStreamRequest returns the most recent /chat/ai/stream/ request.
func (s *Server) LastStreamRequest() *http.Request { return s.lastStream.Load() }

// Favorited reports whether bookID is in the server-side favorites.
func (s *Server) Favorited(bookID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favorites[bookID]
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := s.hits.LoadOrStore(r.URL.Path, new(atomic.Int64))
		v.(*atomic.Int64).Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		ok := s.validAccess[token]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decode(r *http.Request) map[string]any {
	body := map[string]any{}
	json.NewDecoder(r.Body).Decode(&body)
	return body
}

func idParam(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func paginate[T any](r *http.Request, items []T, defaultSize int) map[string]any {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = defaultSize
	}
	if items == nil {
		items = []T{}
	}
	start := (page - 1) * size
	end := start + size
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	return map[string]any{
		"count":    len(items),
		"next":     nil,
		"previous": nil,
		"results":  items[start:end],
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	body := decode(r)
	if body["email"] != Email || body["password"] != Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Invalid credentials"})
		return
	}
	s.mu.Lock()
	access, refresh := s.issueLocked()
	legacy, omit := s.LegacyLoginFields, s.LoginOmitsRefresh
	s.mu.Unlock()

	resp := map[string]any{"token_type": "Bearer"}
	accessKey, refreshKey := "access_token", "refresh_token"
	if legacy {
		accessKey, refreshKey = "access", "refresh"
	}
	resp[accessKey] = access
	if !omit {
		resp[refreshKey] = refresh
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	body := decode(r)
	email, _ := body["email"].(string)
	if email == "" || email == Email {
		writeJSON(w, http.StatusBadRequest, map[string]any{"email": []string{"user with this email already exists."}})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": 42, "email": email, "display_name": body["display_name"]})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	body := decode(r)

	s.mu.Lock()
	delay := s.RefreshDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	refresh, _ := body["refresh"].(string)
	if s.RejectRefresh || !s.validRefresh[refresh] {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}

	s.seq++
	access := fmt.Sprintf("access-%d", s.seq)
	s.validAccess[access] = true
	resp := map[string]any{"access": access}
	if s.RotateRefresh {
		delete(s.validRefresh, refresh)
		rotated := fmt.Sprintf("refresh-%d", s.seq)
		s.validRefresh[rotated] = true
		resp["refresh"] = rotated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	body := decode(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailLogout {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	refresh, _ := body["refresh"].(string)
	delete(s.validRefresh, refresh)
	w.WriteHeader(http.StatusResetContent)
}

func (s *Server) logoutAll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.validRefresh = make(map[string]bool)
	s.mu.Unlock()
	w.WriteHeader(http.StatusResetContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"id": 7, "email": Email, "display_name": "Reader", "is_active": true})
}

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(r.URL.Query().Get("query"))
	s.mu.Lock()
	var books []map[string]any
	for id := int64(1); id <= int64(len(s.books)); id++ {
		b, ok := s.books[id]
		if !ok {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(fmt.Sprint(b["title"], " ", b["author"])), query) {
			continue
		}
		books = append(books, b)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, paginate(r, books, 20))
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	b, ok := s.books[idParam(r)]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) listLoans(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	loans := append([]map[string]any(nil), s.loans...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, paginate(r, loans, 20))
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	body := decode(r)
	bookID := int64(toFloat(body["book_id"]))

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"book_id": []string{"Invalid pk."}})
		return
	}
	if toFloat(b["available_copies"]) < 1 {
		writeJSON(w, http.StatusConflict, map[string]any{"detail": "No copies available; reserve instead."})
		return
	}
	b["available_copies"] = int(toFloat(b["available_copies"])) - 1
	loan := map[string]any{
		"id":          len(s.loans) + 1,
		"type":        "loan",
		"status":      "active",
		"book":        map[string]any{"id": bookID, "title": b["title"]},
		"loaned_at":   "2026-10-15T10:00:00Z",
		"due_at":      "2026-10-29T10:00:00Z",
		"renew_count": 0,
	}
	s.loans = append(s.loans, loan)
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) loanAction(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	action := chi.URLParam(r, "action")

	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 1 || id > int64(len(s.loans)) {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
		return
	}
	loan := s.loans[id-1]
	switch action {
	case "return":
		loan["status"] = "returned"
		loan["returned_at"] = "2026-10-20T10:00:00Z"
	case "renew":
		loan["renew_count"] = int(toFloat(loan["renew_count"])) + 1
		loan["due_at"] = "2026-11-12T10:00:00Z"
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          loan["id"],
		"status":      loan["status"],
		"book":        bookIDOf(loan),
		"due_at":      loan["due_at"],
		"returned_at": loan["returned_at"],
		"renew_count": loan["renew_count"],
	})
}

func bookIDOf(loan map[string]any) any {
	if b, ok := loan["book"].(map[string]any); ok {
		return b["id"]
	}
	return loan["book"]
}

func (s *Server) reserve(w http.ResponseWriter, r *http.Request) {
	body := decode(r)
	writeJSON(w, http.StatusCreated, map[string]any{"id": 100, "book_id": body["book_id"], "status": "queued"})
}

func (s *Server) listFavorites(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	favs := []map[string]any{}
	for id := int64(1); id <= int64(len(s.books)); id++ {
		if s.favorites[id] {
			favs = append(favs, map[string]any{"id": id, "book": s.books[id], "created_at": "2026-10-01T00:00:00Z"})
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, favs)
}

func (s *Server) addFavorite(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	s.mu.Lock()
	_, exists := s.books[id]
	already := s.favorites[id]
	if exists {
		s.favorites[id] = true
	}
	s.mu.Unlock()
	switch {
	case !exists:
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
	case already:
		writeJSON(w, http.StatusOK, map[string]any{"detail": "Already favorited."})
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "book": id})
	}
}

func (s *Server) removeFavorite(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.favorites, idParam(r))
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	paginated, status := s.PaginateNotifications, s.UnreadStatus
	var items []map[string]any
	filter := r.URL.Query().Get("is_read")
	for _, n := range s.notifications {
		if filter != "" && fmt.Sprint(n["is_read"]) != filter {
			continue
		}
		items = append(items, n)
	}
	s.mu.Unlock()

	if status != 0 && filter == "false" {
		writeJSON(w, status, map[string]any{"detail": "unavailable"})
		return
	}
	if items == nil {
		items = []map[string]any{}
	}
	if paginated {
		writeJSON(w, http.StatusOK, paginate(r, items, 20))
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) readOne(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if toFloat(n["id"]) == float64(id) {
			n["is_read"] = true
			writeJSON(w, http.StatusOK, n)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not found."})
}

func (s *Server) readAll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	updated := 0
	for _, n := range s.notifications {
		if n["is_read"] == false {
			n["is_read"] = true
			updated++
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	s.mu.Lock()
	var tickets []map[string]any
	for i := len(s.tickets) - 1; i >= 0; i-- {
		if status == "" || s.tickets[i]["status"] == status {
			tickets = append(tickets, s.tickets[i])
		}
	}
	s.mu.Unlock()
	if tickets == nil {
		tickets = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, paginate(r, tickets, 20))
}

func (s *Server) createTicket(w http.ResponseWriter, r *http.Request) {
	body := decode(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TicketResponse != nil {
		writeJSON(w, http.StatusCreated, s.TicketResponse)
		return
	}
	id := len(s.tickets) + 1
	s.tickets = append(s.tickets, map[string]any{
		"id":         id,
		"subject":    body["subject"],
		"status":     "open",
		"config":     body["config"],
		"created_at": "2026-10-15T10:00:00Z",
		"updated_at": "2026-10-15T10:00:00Z",
	})
	if content, _ := body["content"].(string); content != "" {
		s.appendMessageLocked(int64(id), content, false)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ticket_id": id})
}

func (s *Server) appendMessageLocked(ticketID int64, content string, ai bool) map[string]any {
	msg := map[string]any{
		"id":         len(s.messages) + 1,
		"ticket":     ticketID,
		"content":    content,
		"is_ai":      ai,
		"created_at": "2026-10-15T10:00:00Z",
	}
	s.messages = append(s.messages, msg)
	return msg
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	ticketID, _ := strconv.ParseInt(r.URL.Query().Get("ticket_id"), 10, 64)
	s.mu.Lock()
	msgs := []map[string]any{}
	for _, m := range s.messages {
		if toFloat(m["ticket"]) == float64(ticketID) {
			msgs = append(msgs, m)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, paginate(r, msgs, 20))
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	body := decode(r)
	content, _ := body["content"].(string)
	if strings.TrimSpace(content) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"content": []string{"Content cannot be empty."}})
		return
	}
	s.mu.Lock()
	msg := s.appendMessageLocked(int64(toFloat(body["ticket_id"])), content, false)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) aiReply(w http.ResponseWriter, r *http.Request) {
	body := decode(r)
	s.mu.Lock()
	msg := s.appendMessageLocked(int64(toFloat(body["ticket_id"])), "You can renew a loan twice.", true)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"message_id": msg["id"], "content": msg["content"]})
}

func (s *Server) aiStream(w http.ResponseWriter, r *http.Request) {
	s.lastStream.Store(r)

	s.mu.Lock()
	status := s.StreamStatus
	chunks := append([]string(nil), s.StreamChunks...)
	delay := s.StreamChunkDelay
	hold := s.StreamHold
	s.mu.Unlock()

	if status != 0 {
		writeJSON(w, status, map[string]any{"detail": http.StatusText(status)})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	rc.Flush()

	for _, chunk := range chunks {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if _, err := fmt.Fprint(w, chunk); err != nil {
			return
		}
		rc.Flush()
	}
	if hold {
		<-r.Context().Done()
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
