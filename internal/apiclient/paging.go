package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
)

// PageFetcher returns one page of results. Pages are numbered from zero.
type PageFetcher[T any] func(ctx context.Context, page int) (Page[T], error)

// Drain fetches pages in order until the server reports the last page or
// returns an empty page, and returns every item seen. There is no upper
// bound on the number of pages. Any error aborts the drain and no partial
// result is returned.
func Drain[T any](ctx context.Context, fetch PageFetcher[T]) ([]T, error) {
	var all []T
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Content...)
		if p.Last || len(p.Content) == 0 {
			return all, nil
		}
	}
}

// ContactsByList returns every contact in a list, walking the paged
// endpoint with the configured page size. Caller params override userId and
// size; a caller page is ignored, since the drainer owns the page counter.
func (c *Client) ContactsByList(ctx context.Context, listID string, params Params) ([]Contact, error) {
	endpoint := c.URL(Contacts, "contacts", "list", listID, "contacts")
	return Drain(ctx, func(ctx context.Context, page int) (Page[Contact], error) {
		query := Params{
			"userId": c.defaultUserID,
			"page":   page,
			"size":   c.pageSize,
		}
		for k, v := range params {
			if k != "page" {
				query[k] = v
			}
		}
		var p Page[Contact]
		err := c.do(ctx, http.MethodGet, endpoint, &RequestOptions{Params: query}, &p)
		return p, err
	})
}

// List decodes either a bare JSON array or a page object into its items.
// Some list endpoints page their results and others do not.
type List[T any] []T

// UnmarshalJSON accepts [...] or {"content": [...]}.
func (l *List[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var p Page[T]
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = p.Content
	return nil
}
