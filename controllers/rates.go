package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"opsconsole-backend/middlewares"
	"opsconsole-backend/workflow"
)

type rateInput struct {
	EffectiveDate string          `json:"effective_date"`
	Category      string          `json:"category"`
	INR           decimal.Decimal `json:"inr"`
	USD           decimal.Decimal `json:"usd"`
	Note          string          `json:"note" validate:"max=1000"`
}

// SubmitRate writes the Active rate directly for admins and files a proposal
// for managers.
func (h *Handler) SubmitRate(c *fiber.Ctx) error {
	var in rateInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	return h.submit(c, workflow.KindRateUpdate, &workflow.RatePayload{
		EffectiveDate: in.EffectiveDate,
		Category:      in.Category,
		INR:           in.INR,
		USD:           in.USD,
	}, in.Note)
}

// RateWindow reports whether rate writes are currently accepted.
func (h *Handler) RateWindow(c *fiber.Ctx) error {
	return c.JSON(h.svc.Window())
}

func (h *Handler) GetRate(c *fiber.Ctx) error    { return h.get(workflow.KindRateUpdate)(c) }
func (h *Handler) ListRates(c *fiber.Ctx) error  { return h.list(workflow.KindRateUpdate)(c) }
func (h *Handler) DecideRate(c *fiber.Ctx) error { return h.decide(workflow.KindRateUpdate)(c) }
