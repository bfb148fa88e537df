package attendance

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rollcall/rollcall/internal/clock"
	"github.com/rollcall/rollcall/internal/logging"
	"github.com/rollcall/rollcall/internal/member"
)

// historyDateLayout matches the short date members see in their history.
const historyDateLayout = "02 Jan 2006"

// Handler exposes ledger endpoints.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs an attendance HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logging.Component(logger, "attendance_http")}
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

type registerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type entryResponse struct {
	Name                  string  `json:"name"`
	Phone                 string  `json:"phone"`
	TodayInTime           *string `json:"todayInTime"`
	TodayOutTime          *string `json:"todayOutTime"`
	ForgotYesterday       bool    `json:"forgotYesterday"`
	AlreadyIn             bool    `json:"alreadyIn,omitempty"`
	AlreadyCompletedToday bool    `json:"alreadyCompletedToday,omitempty"`
}

type markOutResponse struct {
	Message string `json:"message"`
	OutTime string `json:"outTime"`
}

type historyItem struct {
	Date    string  `json:"date"`
	InTime  string  `json:"inTime"`
	OutTime *string `json:"outTime"`
}

type recordResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Phone    string  `json:"phone"`
	Date     string  `json:"date"`
	InTime   string  `json:"inTime"`
	OutTime  *string `json:"outTime"`
	ClosedBy string  `json:"closedBy,omitempty"`
}

type todayResponse struct {
	Date        string           `json:"date"`
	Records     []recordResponse `json:"records"`
	Count       int              `json:"count"`
	InsideCount int              `json:"insideCount"`
}

// Register handles first-time and returning members checking in by name and phone.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Phone) == "" {
		return fiber.NewError(http.StatusBadRequest, "Name and phone are required")
	}
	entry, err := h.service.Register(c.UserContext(), req.Phone, req.Name)
	if err != nil {
		return h.toHTTPError(c, err)
	}
	return c.Status(http.StatusOK).JSON(toEntryResponse(entry))
}

// SignIn handles returning members checking in by phone.
func (h *Handler) SignIn(c *fiber.Ctx) error {
	phone, err := parsePhone(c)
	if err != nil {
		return err
	}
	entry, err := h.service.SignIn(c.UserContext(), phone)
	if err != nil {
		return h.toHTTPError(c, err)
	}
	return c.Status(http.StatusOK).JSON(toEntryResponse(entry))
}

// MarkOut closes the caller's record for today.
func (h *Handler) MarkOut(c *fiber.Ctx) error {
	return h.markOut(c, ActorSelf, "Successfully marked OUT")
}

// ForceOut closes a member's record on the operator's behalf.
func (h *Handler) ForceOut(c *fiber.Ctx) error {
	return h.markOut(c, ActorOperator, "Successfully force marked OUT")
}

func (h *Handler) markOut(c *fiber.Ctx, actor Actor, message string) error {
	phone, err := parsePhone(c)
	if err != nil {
		return err
	}
	rec, err := h.service.MarkOut(c.UserContext(), phone, actor)
	if err != nil {
		return h.toHTTPError(c, err)
	}
	return c.Status(http.StatusOK).JSON(markOutResponse{Message: message, OutTime: clock.FormatClock(*rec.CheckOut)})
}

// Status returns today's state for a member without changing it.
func (h *Handler) Status(c *fiber.Ctx) error {
	phone, err := parsePhone(c)
	if err != nil {
		return err
	}
	snap, err := h.service.Status(c.UserContext(), phone)
	if err != nil {
		return h.toHTTPError(c, err)
	}
	resp := entryResponse{Name: snap.Member.Name, Phone: snap.Member.Phone, ForgotYesterday: snap.ForgotYesterday}
	if snap.Today != nil {
		resp.TodayInTime, resp.TodayOutTime = clockFields(*snap.Today)
		resp.AlreadyCompletedToday = snap.Today.CheckOut != nil
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// History returns the member's recent attendance.
func (h *Handler) History(c *fiber.Ctx) error {
	phone, err := parsePhone(c)
	if err != nil {
		return err
	}
	records, err := h.service.History(c.UserContext(), phone)
	if err != nil {
		return h.toHTTPError(c, err)
	}
	items := make([]historyItem, 0, len(records))
	for _, r := range records {
		_, out := clockFields(r)
		items = append(items, historyItem{
			Date:    r.Day.In(clock.Location).Format(historyDateLayout),
			InTime:  clock.FormatClock(r.CheckIn),
			OutTime: out,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"history": items})
}

// Today lists the current facility-day for the operator.
func (h *Handler) Today(c *fiber.Ctx) error {
	sum, err := h.service.Today(c.UserContext())
	if err != nil {
		return h.toHTTPError(c, err)
	}
	resp := todayResponse{
		Date:        clock.DayKey(sum.Day),
		Records:     make([]recordResponse, 0, len(sum.Records)),
		Count:       sum.Count,
		InsideCount: sum.InsideCount,
	}
	for _, r := range sum.Records {
		_, out := clockFields(r)
		resp.Records = append(resp.Records, recordResponse{
			ID:       r.ID,
			Name:     r.Name,
			Phone:    r.Phone,
			Date:     clock.DayKey(r.Day),
			InTime:   clock.FormatClock(r.CheckIn),
			OutTime:  out,
			ClosedBy: string(r.ClosedBy),
		})
	}
	noCache(c)
	return c.Status(http.StatusOK).JSON(resp)
}

func parsePhone(c *fiber.Ctx) (string, error) {
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil {
		return "", fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return "", fiber.NewError(http.StatusBadRequest, "Phone number is required")
	}
	return req.Phone, nil
}

// toHTTPError maps ledger and member errors to client-facing statuses. Store
// failures are logged and replaced with a generic message.
func (h *Handler) toHTTPError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, member.ErrInvalidPhone), errors.Is(err, member.ErrNameRequired):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnknownMember):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotCheckedIn):
		return fiber.NewError(http.StatusBadRequest, "You are not marked inside today")
	case errors.Is(err, ErrAlreadyOut):
		return fiber.NewError(http.StatusConflict, "You have already marked OUT today")
	default:
		h.logger.Error("ledger request failed", slog.String("path", c.Path()), slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "Internal server error")
	}
}

func toEntryResponse(e Entry) entryResponse {
	in, out := clockFields(e.Record)
	return entryResponse{
		Name:                  e.Member.Name,
		Phone:                 e.Member.Phone,
		TodayInTime:           in,
		TodayOutTime:          out,
		ForgotYesterday:       e.ForgotYesterday,
		AlreadyIn:             e.Outcome == OutcomeAlreadyIn,
		AlreadyCompletedToday: e.Outcome == OutcomeAlreadyCompleted,
	}
}

func clockFields(r Record) (in, out *string) {
	if r.ID == "" {
		return nil, nil
	}
	inTime := clock.FormatClock(r.CheckIn)
	in = &inTime
	if r.CheckOut != nil {
		outTime := clock.FormatClock(*r.CheckOut)
		out = &outTime
	}
	return in, out
}

func noCache(c *fiber.Ctx) {
	c.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate")
}
