package workflow

import "fmt"

// Kind selects the transition table, payload shape and role set of a Request.
type Kind string

const (
	KindBill       Kind = "bill"
	KindChemical   Kind = "chemical"
	KindRateUpdate Kind = "rate_update"
)

// Kinds lists every workflow kind.
var Kinds = []Kind{KindBill, KindChemical, KindRateUpdate}

func (k Kind) Valid() bool {
	switch k {
	case KindBill, KindChemical, KindRateUpdate:
		return true
	}
	return false
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown workflow kind %q", s)
	}
	return k, nil
}

// Role is the capability an actor holds, as supplied by the identity provider.
type Role string

const (
	RoleStaff   Role = "staff"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStaff, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Actor identifies who issues a command. It is trusted as given.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Action is a decision verb applied to an existing Request.
type Action string

const (
	ActionApprove           Action = "approve"
	ActionReject            Action = "reject"
	ActionVerify            Action = "verify"
	ActionSendForPurchase   Action = "sendForPurchase"
	ActionRecordPurchase    Action = "recordPurchase"
	ActionComplete          Action = "complete"
	ActionSubmitForApproval Action = "submitForApproval"
)
