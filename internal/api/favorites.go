package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ListFavorites returns the user's favorites. The endpoint is not paginated.
func (c *Client) ListFavorites(ctx context.Context) ([]Favorite, error) {
	var favs []Favorite
	if err := c.Get(ctx, "/api/me/favorites/", &favs); err != nil {
		return nil, err
	}
	return favs, nil
}

// AddFavorite marks a book as favorite. The backend treats repeats as no-ops.
func (c *Client) AddFavorite(ctx context.Context, bookID int64) error {
	return c.Post(ctx, favoritePath(bookID), nil, nil)
}

// RemoveFavorite removes a book from the favorites.
func (c *Client) RemoveFavorite(ctx context.Context, bookID int64) error {
	return c.Delete(ctx, favoritePath(bookID), nil)
}

func favoritePath(bookID int64) string {
	return fmt.Sprintf("/api/me/favorites/%d/", bookID)
}

// Favorites caches the set of favorite book ids so listings can mark
// favorites without a request per book.
type Favorites struct {
	client *Client

	mu     sync.Mutex
	loaded bool
	ids    map[int64]struct{}
}

// NewFavorites returns an empty, unloaded cache.
func NewFavorites(client *Client) *Favorites {
	return &Favorites{client: client, ids: make(map[int64]struct{})}
}

// Load fetches the favorites list the first time it is called. Later
// calls return immediately until Invalidate.
func (f *Favorites) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return nil
	}

	favs, err := f.client.ListFavorites(ctx)
	if err != nil {
		return fmt.Errorf("loading favorites: %w", err)
	}
	ids := make(map[int64]struct{}, len(favs))
	for _, fav := range favs {
		ids[fav.Book.ID] = struct{}{}
	}
	f.ids = ids
	f.loaded = true
	return nil
}

// IsFavorite loads the cache if needed and reports whether bookID is in it.
func (f *Favorites) IsFavorite(ctx context.Context, bookID int64) (bool, error) {
	if err := f.Load(ctx); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.ids[bookID]
	return ok, nil
}

// Add favorites bookID on the server and in the cache.
func (f *Favorites) Add(ctx context.Context, bookID int64) error {
	if err := f.client.AddFavorite(ctx, bookID); err != nil {
		return err
	}
	f.mu.Lock()
	f.ids[bookID] = struct{}{}
	f.mu.Unlock()
	return nil
}

// Remove unfavorites bookID on the server and in the cache.
func (f *Favorites) Remove(ctx context.Context, bookID int64) error {
	if err := f.client.RemoveFavorite(ctx, bookID); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.ids, bookID)
	f.mu.Unlock()
	return nil
}

// Invalidate drops the cache; the next Load refetches.
func (f *Favorites) Invalidate() {
	f.mu.Lock()
	f.loaded = false
	f.ids = make(map[int64]struct{})
	f.mu.Unlock()
}

// IDs returns the cached ids in ascending order.
func (f *Favorites) IDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.ids))
	for id := range f.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
