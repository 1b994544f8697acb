package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

const notificationsPath = "/api/me/notifications/"

// NotificationQuery filters the inbox. A nil IsRead lists everything.
type NotificationQuery struct {
	Page     int
	PageSize int
	IsRead   *bool
}

func (q NotificationQuery) options() []RequestOption {
	opts := []RequestOption{
		WithParam("page", itoa(q.Page)),
		WithParam("page_size", itoa(q.PageSize)),
	}
	if q.IsRead != nil {
		opts = append(opts, WithParam("is_read", strconv.FormatBool(*q.IsRead)))
	}
	return opts
}

// notificationList accepts both a bare array and a pagination envelope.
type notificationList Page[Notification]

func (l *notificationList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []Notification
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = notificationList{Count: len(items), Results: items}
		return nil
	}

	var env struct {
		Count    *int           `json:"count"`
		Next     *string        `json:"next"`
		Previous *string        `json:"previous"`
		Results  []Notification `json:"results"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	count := len(env.Results)
	if env.Count != nil {
		count = *env.Count
	}
	*l = notificationList{Count: count, Next: env.Next, Previous: env.Previous, Results: env.Results}
	return nil
}

// ListNotifications returns the inbox as a page, whichever shape the
// backend answers with.
func (c *Client) ListNotifications(ctx context.Context, q NotificationQuery) (*Page[Notification], error) {
	var list notificationList
	if err := c.Get(ctx, notificationsPath, &list, q.options()...); err != nil {
		return nil, err
	}
	page := Page[Notification](list)
	if page.Results == nil {
		page.Results = []Notification{}
	}
	return &page, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.Post(ctx, fmt.Sprintf("%s%d/read/", notificationsPath, id), nil, nil)
}

// MarkAllNotificationsRead returns how many notifications were updated.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int, error) {
	var resp struct {
		Updated int `json:"updated"`
	}
	if err := c.Post(ctx, notificationsPath+"read-all/", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// UnreadCount returns the number of unread notifications.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	unread := false
	page, err := c.ListNotifications(ctx, NotificationQuery{PageSize: 1, IsRead: &unread})
	if err != nil {
		return 0, err
	}
	return page.Count, nil
}
