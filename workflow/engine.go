package workflow

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"opsconsole-backend/utils"
)

// Decision is the input that accompanies an action.
type Decision struct {
	Note           string
	ApprovedAmount *decimal.Decimal
	Purchase       *PurchaseUpdate
}

type edgeKey struct {
	from   State
	role   Role
	action Action
}

// effect applies the payload side of an edge to a copy of the request.
type effect func(r *Request, d Decision, actor Actor, at time.Time) (*Publication, error)

type edge struct {
	targets []State
	// resolve picks one of targets after the effect ran; nil means targets[0]
	resolve func(r *Request) State
	effect  effect
}

// Table is the immutable transition table of one kind.
type Table struct {
	kind    Kind
	edges   map[edgeKey]edge
	actions map[Action]bool
	roles   map[State][]Role
}

type tableBuilder struct{ t *Table }

func newTable(kind Kind) *tableBuilder {
	return &tableBuilder{t: &Table{
		kind:    kind,
		edges:   make(map[edgeKey]edge),
		actions: make(map[Action]bool),
	}}
}

func (b *tableBuilder) on(from State, role Role, action Action, e edge) *tableBuilder {
	if from.Kind() != b.t.kind {
		panic(fmt.Sprintf("workflow: %s state %s in %s table", from.Kind(), from, b.t.kind))
	}
	for _, target := range e.targets {
		if target.Kind() != b.t.kind {
			panic(fmt.Sprintf("workflow: %s target %s in %s table", target.Kind(), target, b.t.kind))
		}
	}
	b.t.edges[edgeKey{from: from, role: role, action: action}] = e
	b.t.actions[action] = true
	return b
}

func (b *tableBuilder) build() *Table {
	seen := make(map[State]map[Role]bool)
	for k := range b.t.edges {
		if seen[k.from] == nil {
			seen[k.from] = make(map[Role]bool)
		}
		seen[k.from][k.role] = true
	}
	b.t.roles = make(map[State][]Role, len(seen))
	for s, set := range seen {
		roles := make([]Role, 0, len(set))
		for r := range set {
			roles = append(roles, r)
		}
		sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
		b.t.roles[s] = roles
	}
	return b.t
}

func to(s State) edge { return edge{targets: []State{s}} }

func (e edge) with(fx effect) edge {
	e.effect = fx
	return e
}

// Engine holds one transition table per kind and decides transitions. It is
// pure: it never touches storage or the clock.
type Engine struct {
	tables map[Kind]*Table
}

// NewEngine builds the bill, chemical and rate update tables.
func NewEngine() *Engine {
	return &Engine{tables: map[Kind]*Table{
		KindBill:       billTable(),
		KindChemical:   chemicalTable(),
		KindRateUpdate: rateTable(),
	}}
}

func billTable() *Table {
	return newTable(KindBill).
		on(BillPending, RoleManager, ActionApprove, to(BillManagerApproved)).
		on(BillPending, RoleManager, ActionReject, to(BillManagerRejected)).
		on(BillManagerApproved, RoleAdmin, ActionApprove, to(BillAdminApproved).with(setApprovedAmount)).
		on(BillManagerApproved, RoleAdmin, ActionReject, to(BillAdminRejected)).
		build()
}

func chemicalTable() *Table {
	purchase := edge{
		targets: []State{ChemicalPurchaseInProgress, ChemicalPurchased},
		resolve: purchaseProgress,
		effect:  mergePurchase,
	}
	return newTable(KindChemical).
		on(ChemicalPending, RoleManager, ActionVerify, to(ChemicalManagerVerified)).
		on(ChemicalPending, RoleManager, ActionReject, to(ChemicalRejectedByManager)).
		on(ChemicalManagerVerified, RoleAdmin, ActionSendForPurchase, to(ChemicalSentForPurchase)).
		on(ChemicalSentForPurchase, RoleManager, ActionRecordPurchase, purchase).
		on(ChemicalPurchaseInProgress, RoleManager, ActionRecordPurchase, purchase).
		on(ChemicalPurchaseInProgress, RoleAdmin, ActionComplete, to(ChemicalCompleted)).
		on(ChemicalPurchased, RoleAdmin, ActionComplete, to(ChemicalCompleted)).
		build()
}

func rateTable() *Table {
	return newTable(KindRateUpdate).
		on(RatePendingApproval, RoleAdmin, ActionApprove, to(RateApproved).with(publishRate)).
		on(RatePendingApproval, RoleAdmin, ActionReject, to(RateRejected)).
		build()
}

// Supports reports whether kind has any edge labelled action.
func (e *Engine) Supports(kind Kind, action Action) bool {
	t, ok := e.tables[kind]
	return ok && t.actions[action]
}

// AllowedRoles lists the roles that may act on a request of kind in state.
// Terminal states allow nobody.
func (e *Engine) AllowedRoles(kind Kind, state State) []Role {
	t, ok := e.tables[kind]
	if !ok {
		return nil
	}
	return append([]Role(nil), t.roles[state]...)
}

// EdgeInfo describes one table entry.
type EdgeInfo struct {
	From    State
	Role    Role
	Action  Action
	Targets []State
}

// Edges lists the table of kind.
func (e *Engine) Edges(kind Kind) []EdgeInfo {
	t, ok := e.tables[kind]
	if !ok {
		return nil
	}
	out := make([]EdgeInfo, 0, len(t.edges))
	for k, v := range t.edges {
		out = append(out, EdgeInfo{From: k.from, Role: k.role, Action: k.action, Targets: append([]State(nil), v.targets...)})
	}
	return out
}

// Transition is an accepted decision waiting to be applied.
type Transition struct {
	Kind     Kind
	From     State
	Action   Action
	Actor    Actor
	Decision Decision
	edge     edge
}

// Decide validates action by actor against the current state of r.
func (e *Engine) Decide(r *Request, actor Actor, action Action, d Decision) (*Transition, error) {
	t, ok := e.tables[r.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTransition, r.Kind)
	}
	if !IsStateOf(r.Kind, r.Status) {
		return nil, fmt.Errorf("%w: request %s has no valid %s state", ErrInvalidTransition, r.ID, r.Kind)
	}
	if r.Status.Terminal() || len(t.roles[r.Status]) == 0 {
		return nil, fmt.Errorf("%w: %s request is %s", ErrInvalidTransition, r.Kind, r.Status)
	}
	if !containsRole(t.roles[r.Status], actor.Role) {
		return nil, fmt.Errorf("%w: %q cannot act on %s %s request", ErrUnauthorizedRole, actor.Role, r.Status, r.Kind)
	}
	ed, ok := t.edges[edgeKey{from: r.Status, role: actor.Role, action: action}]
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot %s a %s request", ErrInvalidTransition, actor.Role, action, r.Status)
	}
	return &Transition{Kind: r.Kind, From: r.Status, Action: action, Actor: actor, Decision: d, edge: ed}, nil
}

// Apply moves r, which must be a private copy in state tr.From, along the
// edge and records the audit fields. The returned publication, if any, must
// be written in the same atomic update.
func (tr *Transition) Apply(r *Request, at time.Time) (*Publication, error) {
	if r.Status != tr.From {
		return nil, fmt.Errorf("%w: expected %s, found %s", ErrConflict, tr.From, r.Status)
	}
	var pub *Publication
	if tr.edge.effect != nil {
		var err error
		if pub, err = tr.edge.effect(r, tr.Decision, tr.Actor, at); err != nil {
			return nil, err
		}
	}
	next := tr.edge.targets[0]
	if tr.edge.resolve != nil {
		next = tr.edge.resolve(r)
	}
	if !containsState(tr.edge.targets, next) || !IsStateOf(r.Kind, next) {
		return nil, fmt.Errorf("%w: %s is not a declared target of %s", ErrInvalidTransition, next, tr.Action)
	}
	at = at.UTC()
	r.Status = next
	r.DecidedBy = tr.Actor.ID
	r.DecidedAt = &at
	r.UpdatedAt = at
	r.StageNotes = AppendStageNote(r.StageNotes, StageNote{
		Stage:     next.String(),
		Note:      tr.Decision.Note,
		ActorRole: tr.Actor.Role,
		ActorID:   tr.Actor.ID,
		At:        at,
	})
	return pub, nil
}

func setApprovedAmount(r *Request, d Decision, _ Actor, _ time.Time) (*Publication, error) {
	bill, ok := r.Bill()
	if !ok {
		return nil, fmt.Errorf("%w: bill payload missing", ErrValidation)
	}
	if d.ApprovedAmount != nil {
		v := utils.Round2(*d.ApprovedAmount)
		bill.ApprovedAmount = &v
	}
	return nil, nil
}

func mergePurchase(r *Request, d Decision, _ Actor, _ time.Time) (*Publication, error) {
	chem, ok := r.Chemical()
	if !ok {
		return nil, fmt.Errorf("%w: chemical payload missing", ErrValidation)
	}
	if d.Purchase == nil {
		return nil, fieldError("purchase", "required")
	}
	info := PurchaseInfo{}
	if chem.PurchaseInfo != nil {
		info = chem.PurchaseInfo.clone()
	}
	info.merge(*d.Purchase)
	chem.PurchaseInfo = &info
	return nil, nil
}

func purchaseProgress(r *Request) State {
	chem, ok := r.Chemical()
	if ok && chem.PurchaseInfo != nil && chem.PurchaseInfo.Complete() {
		return ChemicalPurchased
	}
	return ChemicalPurchaseInProgress
}

func publishRate(r *Request, d Decision, actor Actor, at time.Time) (*Publication, error) {
	rate, ok := r.Rate()
	if !ok {
		return nil, fmt.Errorf("%w: rate payload missing", ErrValidation)
	}
	at = at.UTC()
	r.ApprovedBy = actor.ID
	r.ApprovedAt = &at
	return &Publication{
		Values:   *rate,
		Actor:    actor,
		At:       at,
		Note:     d.Note,
		SourceID: r.ID,
	}, nil
}

func containsRole(roles []Role, r Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}

func containsState(states []State, s State) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
