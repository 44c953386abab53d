package backend

import (
	"context"
	"net/http"
	"strconv"
)

// ListAppeals pages through appeals
func (c *Client) ListAppeals(ctx context.Context, skip, limit int) ([]Appeal, error) {
	var out []Appeal
	resp, err := c.request(ctx).
		SetQueryParams(map[string]string{
			"skip":  strconv.Itoa(skip),
			"limit": strconv.Itoa(limit),
		}).
		SetResult(&out).
		Get("/appeals")
	if err := c.check("list appeals", resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAppeal fetches one appeal
func (c *Client) GetAppeal(ctx context.Context, id ID) (*Appeal, error) {
	var out Appeal
	if err := c.do(ctx, "get appeal", http.MethodGet, "/appeals/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAppeal files a new appeal
func (c *Client) CreateAppeal(ctx context.Context, in AppealInput) (*Appeal, error) {
	var out Appeal
	if err := c.do(ctx, "create appeal", http.MethodPost, "/appeals/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAppeal applies a partial update
func (c *Client) UpdateAppeal(ctx context.Context, id ID, patch AppealPatch) (*Appeal, error) {
	var out Appeal
	if err := c.do(ctx, "update appeal", http.MethodPatch, "/appeals/"+id.String(), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAppeal removes an appeal
func (c *Client) DeleteAppeal(ctx context.Context, id ID) error {
	return c.do(ctx, "delete appeal", http.MethodDelete, "/appeals/"+id.String(), nil, nil)
}

// AppealHistory lists the recorded changes of an appeal
func (c *Client) AppealHistory(ctx context.Context, id ID) ([]AppealHistoryEntry, error) {
	var out []AppealHistoryEntry
	if err := c.do(ctx, "get appeal history", http.MethodGet, "/appeals/"+id.String()+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AppealTypes lists appeal types
func (c *Client) AppealTypes(ctx context.Context) ([]Reference, error) {
	return c.reference(ctx, "appeal_types")
}

// SeverityLevels lists severity levels
func (c *Client) SeverityLevels(ctx context.Context) ([]Reference, error) {
	return c.reference(ctx, "severity_levels")
}

// AppealStatuses lists appeal statuses
func (c *Client) AppealStatuses(ctx context.Context) ([]Reference, error) {
	return c.reference(ctx, "appeal_statuses")
}

func (c *Client) reference(ctx context.Context, name string) ([]Reference, error) {
	var out []Reference
	if err := c.do(ctx, "get "+name, http.MethodGet, "/reference/"+name+"/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// References holds all appeal reference lists
type References struct {
	Types      []Reference `json:"types"`
	Severities []Reference `json:"severities"`
	Statuses   []Reference `json:"statuses"`
}

// LoadReferences fetches the three reference lists. The first failure
// aborts the load.
func (c *Client) LoadReferences(ctx context.Context) (*References, error) {
	var (
		refs References
		err  error
	)
	if refs.Types, err = c.AppealTypes(ctx); err != nil {
		return nil, err
	}
	if refs.Severities, err = c.SeverityLevels(ctx); err != nil {
		return nil, err
	}
	if refs.Statuses, err = c.AppealStatuses(ctx); err != nil {
		return nil, err
	}
	return &refs, nil
}
