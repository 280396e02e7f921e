package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"opsconsole-backend/middlewares"
	"opsconsole-backend/workflow"
)

type chemicalInput struct {
	ChemicalName string            `json:"chemical_name"`
	Quantity     decimal.Decimal   `json:"quantity"`
	Unit         string            `json:"unit"`
	Purpose      string            `json:"purpose"`
	Priority     workflow.Priority `json:"priority"`
	Note         string            `json:"note" validate:"max=1000"`
}

func (h *Handler) SubmitChemical(c *fiber.Ctx) error {
	var in chemicalInput
	if err := middlewares.BindAndValidate(c, &in); err != nil {
		return err
	}
	return h.submit(c, workflow.KindChemical, &workflow.ChemicalPayload{
		ChemicalName: in.ChemicalName,
		Quantity:     in.Quantity,
		Unit:         in.Unit,
		Purpose:      in.Purpose,
		Priority:     in.Priority,
	}, in.Note)
}

func (h *Handler) GetChemical(c *fiber.Ctx) error    { return h.get(workflow.KindChemical)(c) }
func (h *Handler) ListChemicals(c *fiber.Ctx) error  { return h.list(workflow.KindChemical)(c) }
func (h *Handler) DecideChemical(c *fiber.Ctx) error { return h.decide(workflow.KindChemical)(c) }
