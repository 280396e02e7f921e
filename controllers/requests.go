// Package controllers binds the workflow commands to HTTP.
package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"opsconsole-backend/middlewares"
	"opsconsole-backend/utils"
	"opsconsole-backend/workflow"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Handler serves the bill, chemical and rate routes.
type Handler struct {
	svc *workflow.Service
}

func New(svc *workflow.Service) *Handler {
	return &Handler{svc: svc}
}

type decisionInput struct {
	Action         string                   `json:"action" validate:"required,max=32"`
	Note           string                   `json:"note" validate:"max=1000"`
	ApprovedAmount *decimal.Decimal         `json:"approved_amount"`
	Purchase       *workflow.PurchaseUpdate `json:"purchase"`
}

func actor(c *fiber.Ctx) (workflow.Actor, error) {
	a, ok := middlewares.ActorFrom(c)
	if !ok {
		return workflow.Actor{}, fiber.NewError(fiber.StatusUnauthorized, "auth context missing")
	}
	return a, nil
}

func (h *Handler) submit(c *fiber.Ctx, kind workflow.Kind, payload workflow.Payload, note string) error {
	a, err := actor(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Submit(c.UserContext(), workflow.SubmitCommand{
		Kind:    kind,
		Actor:   a,
		Payload: payload,
		Note:    note,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

func (h *Handler) decide(kind workflow.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := actor(c)
		if err != nil {
			return err
		}
		var in decisionInput
		if err := middlewares.BindAndValidate(c, &in); err != nil {
			return err
		}
		r, err := h.svc.Execute(c.UserContext(), workflow.Command{
			Kind:      kind,
			RequestID: c.Params("id"),
			Action:    workflow.Action(strings.TrimSpace(in.Action)),
			Actor:     a,
			Decision: workflow.Decision{
				Note:           strings.TrimSpace(in.Note),
				ApprovedAmount: in.ApprovedAmount,
				Purchase:       in.Purchase,
			},
		})
		if err != nil {
			return err
		}
		return c.JSON(r)
	}
}

func (h *Handler) get(kind workflow.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		r, err := h.svc.Get(c.UserContext(), kind, c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(r)
	}
}

func (h *Handler) list(kind workflow.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := parseFilter(c, kind)
		if err != nil {
			return err
		}
		requests, err := h.svc.Query(c.UserContext(), kind, f)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"requests": requests,
			"count":    len(requests),
			"limit":    f.Limit,
			"offset":   f.Offset,
		})
	}
}

// parseFilter reads status, from, to, requested_by, limit and offset, plus
// category and effective_date for rates. Dates without a time are taken as
// midnight in UTC+05:30. A limit of 0 or above maxPageSize is capped.
func parseFilter(c *fiber.Ctx, kind workflow.Kind) (workflow.Filter, error) {
	f := workflow.Filter{
		RequestedBy:   strings.TrimSpace(c.Query("requested_by")),
		Category:      strings.TrimSpace(c.Query("category")),
		EffectiveDate: strings.TrimSpace(c.Query("effective_date")),
		Limit:         utils.ParseIntDefault(c.Query("limit"), defaultPageSize),
		Offset:        utils.ParseIntDefault(c.Query("offset"), 0),
	}
	if f.Limit == 0 || f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if s := strings.TrimSpace(c.Query("status")); s != "" {
		st, err := workflow.ParseState(kind, s)
		if err != nil {
			return f, &workflow.ValidationError{Fields: map[string]string{"status": "oneof"}}
		}
		f.Status = st
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		t, err := parseInstant(raw)
		if err != nil {
			return f, &workflow.ValidationError{Fields: map[string]string{name: "datetime"}}
		}
		*dst = &t
	}
	return f, nil
}

func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return workflow.Gate{}.StartOfDay(s)
}
