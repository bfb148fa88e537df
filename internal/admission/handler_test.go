package admission

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/rollcall/rollcall/internal/logging"
)

func setupAdmissionApp(t *testing.T) *fiber.App {
	t.Helper()
	g := newTestGate(originFacility(), nil)
	h := NewHandler(g, true)
	app := fiber.New()
	app.Get("/admission", h.Check)
	app.Post("/guarded", RequirePresence(g, true, logging.Discard()), func(c *fiber.Ctx) error {
		d, _ := c.Locals(LocalsKey).(Decision)
		return c.JSON(fiber.Map{"method": d.Method})
	})
	return app
}

func decodeResponse(t *testing.T, body io.Reader) Response {
	t.Helper()
	var r Response
	if err := json.NewDecoder(body).Decode(&r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return r
}

func TestCheckGeolocationResponse(t *testing.T) {
	app := setupAdmissionApp(t)

	lat := strconv.FormatFloat(latitudeOffset(150), 'f', -1, 64)
	req := httptest.NewRequest(fiber.MethodGet, fmt.Sprintf("/admission?lat=%s&lon=0", lat), nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cc := resp.Header.Get(fiber.HeaderCacheControl); cc == "" {
		t.Fatalf("expected no-cache headers")
	}
	r := decodeResponse(t, resp.Body)
	if r.Connected || r.Method != "geolocation" || r.Status != "out_of_range" {
		t.Fatalf("unexpected response %+v", r)
	}
	if r.Distance == nil || *r.Distance != 150 {
		t.Fatalf("expected distance 150, got %v", r.Distance)
	}
	if r.MaxRadius == nil || *r.MaxRadius != 100 {
		t.Fatalf("expected maxRadius 100, got %v", r.MaxRadius)
	}
	if r.Timestamp == 0 {
		t.Fatalf("expected timestamp")
	}
}

func TestCheckFallsBackToIPOnMalformedCoordinates(t *testing.T) {
	app := setupAdmissionApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/admission?lat=north&lon=0", nil)
	req.Header.Set(fiber.HeaderXForwardedFor, "192.168.86.45, 10.9.9.9")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	r := decodeResponse(t, resp.Body)
	if !r.Connected || r.Method != "ip" || r.IP != "192.168.86.45" {
		t.Fatalf("unexpected response %+v", r)
	}
	if r.Distance != nil {
		t.Fatalf("ip method must not report distance")
	}
}

func TestRequirePresence(t *testing.T) {
	app := setupAdmissionApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/guarded", nil)
	req.Header.Set("X-Real-IP", "10.1.0.5")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(fiber.MethodPost, "/guarded", nil)
	req.Header.Set("X-Real-IP", "10.0.0.5")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestClientIPIgnoresHeadersWhenUntrusted(t *testing.T) {
	g := newTestGate(originFacility(), nil)
	h := NewHandler(g, false)
	app := fiber.New()
	app.Get("/admission", h.Check)

	req := httptest.NewRequest(fiber.MethodGet, "/admission", nil)
	req.Header.Set(fiber.HeaderXForwardedFor, "192.168.86.45")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	r := decodeResponse(t, resp.Body)
	if r.Connected {
		t.Fatalf("forwarded header must be ignored when untrusted: %+v", r)
	}
}
