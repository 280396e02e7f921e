package workflow

import "fmt"

// State is a status value of exactly one kind. The set of implementations is
// closed: BillState, ChemicalState and RateState.
type State interface {
	Kind() Kind
	String() string
	Terminal() bool
	sealed()
}

// BillState is the status of a bill reimbursement request.
type BillState uint8

const (
	BillPending BillState = iota + 1
	BillManagerApproved
	BillManagerRejected
	BillAdminApproved
	BillAdminRejected
)

var billStateNames = map[BillState]string{
	BillPending:         "Pending",
	BillManagerApproved: "ManagerApproved",
	BillManagerRejected: "ManagerRejected",
	BillAdminApproved:   "AdminApproved",
	BillAdminRejected:   "AdminRejected",
}

func (s BillState) Kind() Kind     { return KindBill }
func (s BillState) String() string { return billStateNames[s] }
func (s BillState) Terminal() bool {
	return s == BillManagerRejected || s == BillAdminApproved || s == BillAdminRejected
}
func (BillState) sealed() {}

func (s BillState) MarshalText() ([]byte, error) { return marshalState(s) }

// ChemicalState is the status of a chemical purchase request.
type ChemicalState uint8

const (
	ChemicalPending ChemicalState = iota + 1
	ChemicalManagerVerified
	ChemicalRejectedByManager
	ChemicalSentForPurchase
	ChemicalPurchaseInProgress
	ChemicalPurchased
	ChemicalCompleted
)

var chemicalStateNames = map[ChemicalState]string{
	ChemicalPending:            "Pending",
	ChemicalManagerVerified:    "ManagerVerified",
	ChemicalRejectedByManager:  "RejectedByManager",
	ChemicalSentForPurchase:    "SentForPurchase",
	ChemicalPurchaseInProgress: "PurchaseInProgress",
	ChemicalPurchased:          "Purchased",
	ChemicalCompleted:          "Completed",
}

func (s ChemicalState) Kind() Kind     { return KindChemical }
func (s ChemicalState) String() string { return chemicalStateNames[s] }
func (s ChemicalState) Terminal() bool {
	return s == ChemicalRejectedByManager || s == ChemicalCompleted
}
func (ChemicalState) sealed() {}

func (s ChemicalState) MarshalText() ([]byte, error) { return marshalState(s) }

// RateState is the status of a market rate record or proposal.
type RateState uint8

const (
	// RateActive is the published record for a (category, effective date) pair.
	// It is written by the direct upsert path only.
	RateActive RateState = iota + 1
	RatePendingApproval
	RateApproved
	RateRejected
)

var rateStateNames = map[RateState]string{
	RateActive:          "Active",
	RatePendingApproval: "PendingApproval",
	RateApproved:        "Approved",
	RateRejected:        "Rejected",
}

func (s RateState) Kind() Kind     { return KindRateUpdate }
func (s RateState) String() string { return rateStateNames[s] }
func (s RateState) Terminal() bool { return s == RateApproved || s == RateRejected }
func (RateState) sealed()          {}

func (s RateState) MarshalText() ([]byte, error) { return marshalState(s) }

func marshalState(s State) ([]byte, error) {
	name := s.String()
	if name == "" {
		return nil, fmt.Errorf("invalid %s state", s.Kind())
	}
	return []byte(name), nil
}

// StatesOf returns the declared state set of kind.
func StatesOf(kind Kind) []State {
	switch kind {
	case KindBill:
		return []State{BillPending, BillManagerApproved, BillManagerRejected, BillAdminApproved, BillAdminRejected}
	case KindChemical:
		return []State{ChemicalPending, ChemicalManagerVerified, ChemicalRejectedByManager,
			ChemicalSentForPurchase, ChemicalPurchaseInProgress, ChemicalPurchased, ChemicalCompleted}
	case KindRateUpdate:
		return []State{RateActive, RatePendingApproval, RateApproved, RateRejected}
	}
	return nil
}

// IsStateOf reports whether s is a member of kind's declared state set.
func IsStateOf(kind Kind, s State) bool {
	if s == nil {
		return false
	}
	for _, candidate := range StatesOf(kind) {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseState converts a persisted status name back into a typed state.
func ParseState(kind Kind, name string) (State, error) {
	for _, s := range StatesOf(kind) {
		if s.String() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not a %s state", ErrValidation, name, kind)
}

// InitialState is the state a freshly submitted request enters.
func InitialState(kind Kind) State {
	switch kind {
	case KindBill:
		return BillPending
	case KindChemical:
		return ChemicalPending
	case KindRateUpdate:
		return RatePendingApproval
	}
	return nil
}
