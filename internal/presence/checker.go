package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rollcall/rollcall/internal/admission"
	"github.com/rollcall/rollcall/internal/proximity"
)

// Checker asks the service for an admission decision. A nil coords means the
// service should judge the request by its network origin.
type Checker interface {
	Check(ctx context.Context, coords *proximity.Coordinates) (admission.Response, error)
}

// HTTPChecker calls the admission endpoint over HTTP.
type HTTPChecker struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPChecker builds a checker for the service at baseURL.
func NewHTTPChecker(baseURL string) *HTTPChecker {
	return &HTTPChecker{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (h *HTTPChecker) Check(ctx context.Context, coords *proximity.Coordinates) (admission.Response, error) {
	endpoint := h.BaseURL + "/api/v1/admission"
	if coords != nil {
		q := url.Values{}
		q.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
		q.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return admission.Response{}, fmt.Errorf("build admission request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return admission.Response{}, fmt.Errorf("admission request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) // nolint:errcheck
		return admission.Response{}, fmt.Errorf("admission request: unexpected status %d", resp.StatusCode)
	}

	var out admission.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return admission.Response{}, fmt.Errorf("decode admission response: %w", err)
	}
	return out, nil
}
