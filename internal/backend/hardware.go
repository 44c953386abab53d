package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ListHardware pages through registered hardware cameras
func (c *Client) ListHardware(ctx context.Context, skip, limit int) ([]HardwareCamera, error) {
	var out []HardwareCamera
	resp, err := c.request(ctx).
		SetQueryParams(map[string]string{
			"skip":  strconv.Itoa(skip),
			"limit": strconv.Itoa(limit),
		}).
		SetResult(&out).
		Get("/cameras/")
	if err := c.check("list hardware cameras", resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHardware fetches one hardware camera
func (c *Client) GetHardware(ctx context.Context, id ID) (*HardwareCamera, error) {
	var out HardwareCamera
	if err := c.do(ctx, "get hardware camera", http.MethodGet, "/cameras/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateHardware registers a hardware camera
func (c *Client) CreateHardware(ctx context.Context, cam HardwareCamera) (*HardwareCamera, error) {
	var out HardwareCamera
	if err := c.do(ctx, "create hardware camera", http.MethodPost, "/cameras/", cam, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteHardware removes a hardware camera
func (c *Client) DeleteHardware(ctx context.Context, id ID) error {
	return c.do(ctx, "delete hardware camera", http.MethodDelete, "/cameras/"+id.String(), nil, nil)
}

// UploadImage sends a floor plan as multipart form data and returns the
// stored filename
func (c *Client) UploadImage(ctx context.Context, name string, r io.Reader) (string, error) {
	var out struct {
		Filename string `json:"filename"`
	}
	resp, err := c.request(ctx).
		SetFileReader("file", name, r).
		SetResult(&out).
		Post("/images/upload/")
	if err := c.check("upload image", resp, err); err != nil {
		return "", err
	}
	if out.Filename == "" {
		return "", fmt.Errorf("upload image: backend returned no filename")
	}
	return out.Filename, nil
}

// FetchFile downloads an uploaded file. ref is either a bare filename or an
// absolute URL as produced by UploadsURL.
func (c *Client) FetchFile(ctx context.Context, ref string) ([]byte, error) {
	if !strings.Contains(ref, "://") {
		ref = c.UploadsURL(ref)
	}
	resp, err := c.request(ctx).
		SetHeader("Accept", "*/*").
		Get(ref)
	if err := c.check("fetch file", resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// ExportAppealHistory downloads the appeal history spreadsheet
func (c *Client) ExportAppealHistory(ctx context.Context) ([]byte, error) {
	resp, err := c.request(ctx).
		SetHeader("Accept", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet").
		Get("/export/appeal_history/")
	if err := c.check("export appeal history", resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}
