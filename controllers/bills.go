package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"opsconsole-backend/middlewares"
	"opsconsole-backend/workflow"
)

type billInput struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Receipts    []string        `json:"receipts"`
	Note        string          `json:"note" validate:"max=1000"`
}

// SubmitBill files a reimbursement claim for the calling staff member.
func (h *Handler) SubmitBill(c *fiber.Ctx) error {
	var in billInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	return h.submit(c, workflow.KindBill, &workflow.BillPayload{
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		Receipts:    in.Receipts,
	}, in.Note)
}

func (h *Handler) GetBill(c *fiber.Ctx) error    { return h.get(workflow.KindBill)(c) }
func (h *Handler) ListBills(c *fiber.Ctx) error  { return h.list(workflow.KindBill)(c) }
func (h *Handler) DecideBill(c *fiber.Ctx) error { return h.decide(workflow.KindBill)(c) }
