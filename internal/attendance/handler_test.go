package attendance

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rollcall/rollcall/internal/logging"
)

func newTestApp(t *testing.T, f fixture) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := http.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"message": err.Error()})
		},
	})
	h := NewHandler(f.svc, logging.Discard())
	app.Post("/register", h.Register)
	app.Post("/signin", h.SignIn)
	app.Post("/markOut", h.MarkOut)
	app.Post("/forceOut", h.ForceOut)
	app.Post("/status", h.Status)
	app.Post("/history", h.History)
	app.Get("/today", h.Today)
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return do(t, app, req)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s: %v", req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func TestHandlerRegisterAndSignIn(t *testing.T) {
	f := newMemoryFixture(t)
	app := newTestApp(t, f)

	status, body := post(t, app, "/register", `{"name":"Asha","phone":"98765 43210"}`)
	if status != http.StatusOK {
		t.Fatalf("register: expected 200, got %d %v", status, body)
	}
	if body["phone"] != testPhone || body["todayInTime"] != "09:15:00 AM" {
		t.Fatalf("unexpected register body %v", body)
	}
	if body["todayOutTime"] != nil || body["forgotYesterday"] != false {
		t.Fatalf("unexpected register body %v", body)
	}

	f.clock.Advance(time.Minute)
	status, body = post(t, app, "/signin", `{"phone":"9876543210"}`)
	if status != http.StatusOK || body["alreadyIn"] != true {
		t.Fatalf("signin: expected alreadyIn, got %d %v", status, body)
	}
	if body["todayInTime"] != "09:15:00 AM" {
		t.Fatalf("check-in time must not move, got %v", body["todayInTime"])
	}
}

func TestHandlerValidation(t *testing.T) {
	app := newTestApp(t, newMemoryFixture(t))

	cases := []struct {
		path   string
		body   string
		status int
		msg    string
	}{
		{"/register", `{"phone":"9876543210"}`, http.StatusBadRequest, "Name and phone are required"},
		{"/signin", `{}`, http.StatusBadRequest, "Phone number is required"},
		{"/signin", `{"phone":"12345"}`, http.StatusBadRequest, ""},
		{"/signin", `{"phone":"9876543210"}`, http.StatusNotFound, ""},
		{"/markOut", `{"phone":"9876543210"}`, http.StatusBadRequest, "You are not marked inside today"},
	}
	for _, tc := range cases {
		status, body := post(t, app, tc.path, tc.body)
		if status != tc.status {
			t.Fatalf("%s %s: expected %d, got %d %v", tc.path, tc.body, tc.status, status, body)
		}
		if tc.msg != "" && body["message"] != tc.msg {
			t.Fatalf("%s: expected message %q, got %v", tc.path, tc.msg, body["message"])
		}
	}
}

func TestHandlerMarkOutConflict(t *testing.T) {
	f := newMemoryFixture(t)
	app := newTestApp(t, f)

	if status, body := post(t, app, "/register", `{"name":"Asha","phone":"9876543210"}`); status != http.StatusOK {
		t.Fatalf("register: %d %v", status, body)
	}
	f.clock.Advance(8 * time.Hour)
	status, body := post(t, app, "/markOut", `{"phone":"9876543210"}`)
	if status != http.StatusOK || body["outTime"] != "05:15:00 PM" {
		t.Fatalf("mark out: %d %v", status, body)
	}
	status, body = post(t, app, "/forceOut", `{"phone":"9876543210"}`)
	if status != http.StatusConflict || body["message"] != "You have already marked OUT today" {
		t.Fatalf("expected conflict, got %d %v", status, body)
	}

	status, body = post(t, app, "/signin", `{"phone":"9876543210"}`)
	if status != http.StatusOK || body["alreadyCompletedToday"] != true {
		t.Fatalf("expected completed day, got %d %v", status, body)
	}
}

func TestHandlerStatusAndHistory(t *testing.T) {
	f := newMemoryFixture(t)
	app := newTestApp(t, f)

	post(t, app, "/register", `{"name":"Asha","phone":"9876543210"}`)
	f.clock.Advance(24 * time.Hour)

	status, body := post(t, app, "/status", `{"phone":"9876543210"}`)
	if status != http.StatusOK || body["forgotYesterday"] != true || body["todayInTime"] != nil {
		t.Fatalf("unexpected status %d %v", status, body)
	}

	status, body = post(t, app, "/history", `{"phone":"9876543210"}`)
	if status != http.StatusOK {
		t.Fatalf("history: %d %v", status, body)
	}
	items, ok := body["history"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one history item, got %v", body["history"])
	}
	item := items[0].(map[string]any)
	if item["date"] != "02 Mar 2026" || item["outTime"] != nil {
		t.Fatalf("unexpected history item %v", item)
	}
}

func TestHandlerToday(t *testing.T) {
	f := newMemoryFixture(t)
	app := newTestApp(t, f)

	post(t, app, "/register", `{"name":"Asha","phone":"9876543210"}`)
	post(t, app, "/register", `{"name":"Ravi","phone":"9123456780"}`)
	post(t, app, "/forceOut", `{"phone":"9123456780"}`)

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/today", nil))
	if status != http.StatusOK {
		t.Fatalf("today: %d %v", status, body)
	}
	if body["count"] != float64(2) || body["insideCount"] != float64(1) || body["date"] != "2026-03-02" {
		t.Fatalf("unexpected summary %v", body)
	}
	records := body["records"].([]any)
	var closedBy []string
	for _, r := range records {
		if cb, ok := r.(map[string]any)["closedBy"].(string); ok {
			closedBy = append(closedBy, cb)
		}
	}
	if len(closedBy) != 1 || closedBy[0] != string(ActorOperator) {
		t.Fatalf("expected one operator closure, got %v", closedBy)
	}
}
