package backend

import (
	"context"
	"net/http"
	"sort"
	"strings"
)

// ListConfigs returns every stored building config
func (c *Client) ListConfigs(ctx context.Context) ([]BuildingConfig, error) {
	var out []BuildingConfig
	if err := c.do(ctx, "list building configs", http.MethodGet, "/building-configs/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConfig fetches one building config
func (c *Client) GetConfig(ctx context.Context, id ID) (*BuildingConfig, error) {
	var out BuildingConfig
	if err := c.do(ctx, "get building config", http.MethodGet, "/building-configs/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateConfig stores a new building config and returns it with its id
func (c *Client) CreateConfig(ctx context.Context, cfg BuildingConfig) (*BuildingConfig, error) {
	var out BuildingConfig
	if err := c.do(ctx, "create building config", http.MethodPost, "/building-configs/", cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateConfig replaces a building config
func (c *Client) UpdateConfig(ctx context.Context, id ID, cfg BuildingConfig) (*BuildingConfig, error) {
	var out BuildingConfig
	if err := c.do(ctx, "update building config", http.MethodPut, "/building-configs/"+id.String(), cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConfig removes a building config
func (c *Client) DeleteConfig(ctx context.Context, id ID) error {
	return c.do(ctx, "delete building config", http.MethodDelete, "/building-configs/"+id.String(), nil, nil)
}

// SortByUpdated orders configs most recently updated first. Configs
// without a timestamp sort last.
func SortByUpdated(cfgs []BuildingConfig) {
	sort.SliceStable(cfgs, func(i, j int) bool {
		a, b := cfgs[i].UpdatedAt, cfgs[j].UpdatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
}

// FilterByName keeps configs whose name contains q, case-insensitively
func FilterByName(cfgs []BuildingConfig, q string) []BuildingConfig {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return cfgs
	}
	out := make([]BuildingConfig, 0, len(cfgs))
	for _, cfg := range cfgs {
		if strings.Contains(strings.ToLower(cfg.Name), q) {
			out = append(out, cfg)
		}
	}
	return out
}
