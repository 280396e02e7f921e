package workflow

import (
	"github.com/shopspring/decimal"

	"opsconsole-backend/utils"
)

// Payload is the kind-specific body of a Request. Implementations are
// *BillPayload, *ChemicalPayload and *RatePayload.
type Payload interface {
	Kind() Kind
	clone() Payload
}

// BillPayload is a reimbursement claim.
type BillPayload struct {
	Amount         decimal.Decimal  `json:"amount" validate:"gt=0" normalize:"money"`
	Category       string           `json:"category" validate:"required,max=64"`
	Description    string           `json:"description" validate:"max=1000"`
	Receipts       []string         `json:"receipts,omitempty" validate:"max=20,dive,required,max=512"`
	ApprovedAmount *decimal.Decimal `json:"approved_amount,omitempty" normalize:"money"`
}

func (*BillPayload) Kind() Kind { return KindBill }

func (p *BillPayload) clone() Payload {
	c := *p
	c.Receipts = append([]string(nil), p.Receipts...)
	if p.ApprovedAmount != nil {
		v := *p.ApprovedAmount
		c.ApprovedAmount = &v
	}
	return &c
}

// Priority of a chemical purchase.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ChemicalPayload is a chemical purchase request.
type ChemicalPayload struct {
	ChemicalName string          `json:"chemical_name" validate:"required,max=128"`
	Quantity     decimal.Decimal `json:"quantity" validate:"gt=0"`
	Unit         string          `json:"unit" validate:"max=16"`
	Purpose      string          `json:"purpose" validate:"required,max=1000"`
	Priority     Priority        `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	PurchaseInfo *PurchaseInfo   `json:"purchase_info,omitempty"`
}

func (*ChemicalPayload) Kind() Kind { return KindChemical }

func (p *ChemicalPayload) clone() Payload {
	c := *p
	if p.PurchaseInfo != nil {
		info := p.PurchaseInfo.clone()
		c.PurchaseInfo = &info
	}
	return &c
}

// PurchaseInfo is recorded by the manager while executing a purchase. It can
// be filled in over several recordPurchase actions.
type PurchaseInfo struct {
	InvoiceNumber     string           `json:"invoice_number,omitempty"`
	Supplier          string           `json:"supplier,omitempty"`
	PurchaseDate      string           `json:"purchase_date,omitempty"`
	PurchasedQuantity *decimal.Decimal `json:"purchased_quantity,omitempty"`
	Cost              *decimal.Decimal `json:"cost,omitempty" normalize:"money"`
}

// Complete reports whether every detail needed to close the purchase is present.
func (p PurchaseInfo) Complete() bool {
	return p.InvoiceNumber != "" && p.Supplier != "" && p.PurchaseDate != "" && p.PurchasedQuantity != nil
}

func (p PurchaseInfo) clone() PurchaseInfo {
	c := p
	if p.PurchasedQuantity != nil {
		v := *p.PurchasedQuantity
		c.PurchasedQuantity = &v
	}
	if p.Cost != nil {
		v := *p.Cost
		c.Cost = &v
	}
	return c
}

// PurchaseUpdate carries the purchase fields sent with one recordPurchase
// action. Nil fields keep their recorded value.
type PurchaseUpdate struct {
	InvoiceNumber     *string          `json:"invoice_number" validate:"omitempty,min=1,max=64"`
	Supplier          *string          `json:"supplier" validate:"omitempty,min=1,max=128"`
	PurchaseDate      *string          `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	PurchasedQuantity *decimal.Decimal `json:"purchased_quantity" validate:"omitempty,gt=0"`
	Cost              *decimal.Decimal `json:"cost" validate:"omitempty,gte=0" normalize:"money"`
}

func (p *PurchaseInfo) merge(u PurchaseUpdate) {
	utils.NormalizePtrDTO(&u)
	utils.MergePtrDTO(p, &u)
}

// RatePayload is a daily market rate for one category.
type RatePayload struct {
	EffectiveDate string          `json:"effective_date" validate:"required,datetime=2006-01-02"`
	Category      string          `json:"category" validate:"required,max=64"`
	INR           decimal.Decimal `json:"inr" validate:"gt=0"`
	USD           decimal.Decimal `json:"usd" validate:"gt=0"`
}

func (*RatePayload) Kind() Kind { return KindRateUpdate }

func (p *RatePayload) clone() Payload {
	c := *p
	return &c
}

// Key is the uniqueness key of the published record.
func (p *RatePayload) Key() RateKey {
	return RateKey{Category: p.Category, EffectiveDate: p.EffectiveDate}
}

// RateKey identifies the single Active rate record per category per day.
type RateKey struct {
	Category      string `json:"category"`
	EffectiveDate string `json:"effective_date"`
}

// NewPayload returns an empty payload for kind, ready to be decoded into.
func NewPayload(kind Kind) Payload {
	switch kind {
	case KindBill:
		return &BillPayload{}
	case KindChemical:
		return &ChemicalPayload{}
	case KindRateUpdate:
		return &RatePayload{}
	}
	return nil
}
