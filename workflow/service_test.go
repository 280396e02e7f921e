package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"opsconsole-backend/clock"
	"opsconsole-backend/database"
	"opsconsole-backend/workflow"
)

var (
	rateZone = time.FixedZone("UTC+05:30", 5*3600+30*60)

	staff   = workflow.Actor{ID: "s1", Role: workflow.RoleStaff}
	manager = workflow.Actor{ID: "m1", Role: workflow.RoleManager}
	admin   = workflow.Actor{ID: "a1", Role: workflow.RoleAdmin}
)

type recorder struct {
	mu     sync.Mutex
	events []workflow.Event
	err    error
}

func (r *recorder) Notify(_ context.Context, e workflow.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

type fixture struct {
	svc   *workflow.Service
	clock *clock.Mock
	sent  *recorder
}

func newFixture(t *testing.T, store workflow.Store) *fixture {
	t.Helper()
	if store == nil {
		store = database.NewMemoryStore()
	}
	clk := clock.NewMock(time.Date(2024, 5, 10, 10, 0, 0, 0, rateZone))
	sent := &recorder{}
	seq := 0
	svc := workflow.NewService(store, clk,
		workflow.WithNotifier(sent),
		workflow.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		}),
	)
	return &fixture{svc: svc, clock: clk, sent: sent}
}

func (f *fixture) submitBill(t *testing.T, amount string) *workflow.Request {
	t.Helper()
	r, err := f.svc.Submit(context.Background(), workflow.SubmitCommand{
		Kind:  workflow.KindBill,
		Actor: staff,
		Payload: &workflow.BillPayload{
			Amount:   decimal.RequireFromString(amount),
			Category: " travel ",
		},
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) do(kind workflow.Kind, id string, a workflow.Actor, action workflow.Action, d workflow.Decision) (*workflow.Request, error) {
	return f.svc.Execute(context.Background(), workflow.Command{Kind: kind, RequestID: id, Action: action, Actor: a, Decision: d})
}

func TestService_BillApprovalChain(t *testing.T) {
	f := newFixture(t, nil)
	r := f.submitBill(t, "1500.00")
	require.Equal(t, workflow.BillPending, r.Status)
	require.Empty(t, r.StageNotes)
	bill, _ := r.Bill()
	require.Equal(t, "travel", bill.Category)

	f.clock.Advance(time.Hour)
	r, err := f.do(workflow.KindBill, r.ID, manager, workflow.ActionApprove, workflow.Decision{Note: "ok"})
	require.NoError(t, err)
	require.Equal(t, workflow.BillManagerApproved, r.Status)

	f.clock.Advance(time.Hour)
	amount := decimal.RequireFromString("1400")
	r, err = f.do(workflow.KindBill, r.ID, admin, workflow.ActionApprove, workflow.Decision{ApprovedAmount: &amount})
	require.NoError(t, err)
	require.Equal(t, workflow.BillAdminApproved, r.Status)

	stored, err := f.svc.Get(context.Background(), workflow.KindBill, r.ID)
	require.NoError(t, err)
	require.Len(t, stored.StageNotes, 2)
	require.Equal(t, "ManagerApproved", stored.StageNotes[0].Stage)
	require.Equal(t, workflow.RoleManager, stored.StageNotes[0].ActorRole)
	require.Equal(t, "AdminApproved", stored.StageNotes[1].Stage)
	require.True(t, stored.StageNotes[0].At.Before(stored.StageNotes[1].At))
	bill, _ = stored.Bill()
	require.True(t, bill.ApprovedAmount.Equal(amount))

	_, err = f.do(workflow.KindBill, r.ID, admin, workflow.ActionReject, workflow.Decision{})
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)

	require.Len(t, f.sent.events, 3)
	require.Equal(t, "AdminApproved", f.sent.events[2].Status)
}

func TestService_RejectionIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	r := f.submitBill(t, "20")
	r, err := f.do(workflow.KindBill, r.ID, manager, workflow.ActionReject, workflow.Decision{Note: "no receipt"})
	require.NoError(t, err)
	require.Equal(t, workflow.BillManagerRejected, r.Status)

	for _, a := range []workflow.Actor{staff, manager, admin} {
		_, err := f.do(workflow.KindBill, r.ID, a, workflow.ActionApprove, workflow.Decision{})
		require.ErrorIs(t, err, workflow.ErrInvalidTransition)
	}
}

func TestService_UnauthorizedRoleLeavesRequestUntouched(t *testing.T) {
	f := newFixture(t, nil)
	r := f.submitBill(t, "20")

	_, err := f.do(workflow.KindBill, r.ID, staff, workflow.ActionApprove, workflow.Decision{})
	require.ErrorIs(t, err, workflow.ErrUnauthorizedRole)
	_, err = f.do(workflow.KindBill, r.ID, admin, workflow.ActionApprove, workflow.Decision{})
	require.ErrorIs(t, err, workflow.ErrUnauthorizedRole)

	stored, err := f.svc.Get(context.Background(), workflow.KindBill, r.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.BillPending, stored.Status)
	require.Empty(t, stored.StageNotes)
	require.Empty(t, stored.DecidedBy)
}

func TestService_SubmitChecks(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindBill, Actor: manager,
		Payload: &workflow.BillPayload{Amount: decimal.NewFromInt(1), Category: "x"}})
	require.ErrorIs(t, err, workflow.ErrUnauthorizedRole)

	_, err = f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindBill, Actor: staff,
		Payload: &workflow.BillPayload{Amount: decimal.NewFromInt(-3), Category: "x"}})
	var ve *workflow.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "gt", ve.Fields["amount"])

	_, err = f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindChemical, Actor: staff,
		Payload: &workflow.BillPayload{Amount: decimal.NewFromInt(1), Category: "x"}})
	require.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindBill, Actor: workflow.Actor{Role: workflow.RoleStaff},
		Payload: &workflow.BillPayload{Amount: decimal.NewFromInt(1), Category: "x"}})
	require.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindBill, Actor: workflow.Actor{ID: "x", Role: "auditor"},
		Payload: &workflow.BillPayload{Amount: decimal.NewFromInt(1), Category: "x"}})
	require.ErrorIs(t, err, workflow.ErrUnauthorizedRole)

	got, err := f.svc.Query(ctx, workflow.KindBill, workflow.Filter{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestService_ClientSuppliedDecisionFieldsAreDropped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	amount := decimal.NewFromInt(5)
	r, err := f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindBill, Actor: staff,
		Payload: &workflow.BillPayload{Amount: amount, Category: "x", ApprovedAmount: &amount}})
	require.NoError(t, err)
	bill, _ := r.Bill()
	require.Nil(t, bill.ApprovedAmount)

	r, err = f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindChemical, Actor: staff,
		Payload: &workflow.ChemicalPayload{ChemicalName: "acetone", Quantity: amount, Purpose: "cleaning",
			PurchaseInfo: &workflow.PurchaseInfo{Supplier: "self"}}})
	require.NoError(t, err)
	chem, _ := r.Chemical()
	require.Nil(t, chem.PurchaseInfo)
	require.Equal(t, workflow.PriorityNormal, chem.Priority)
}

func TestService_ManagerApprovedAmountIsIgnored(t *testing.T) {
	f := newFixture(t, nil)
	r := f.submitBill(t, "80")
	amount := decimal.NewFromInt(10)
	r, err := f.do(workflow.KindBill, r.ID, manager, workflow.ActionApprove, workflow.Decision{ApprovedAmount: &amount})
	require.NoError(t, err)
	bill, _ := r.Bill()
	require.Nil(t, bill.ApprovedAmount)

	_, err = f.do(workflow.KindBill, r.ID, admin, workflow.ActionReject, workflow.Decision{ApprovedAmount: &amount})
	require.ErrorIs(t, err, workflow.ErrValidation)
}

func TestService_ChemicalLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindChemical, Actor: staff,
		Payload: &workflow.ChemicalPayload{ChemicalName: "HCl", Quantity: decimal.NewFromInt(2), Unit: "l", Purpose: "titration", Priority: workflow.PriorityHigh}})
	require.NoError(t, err)
	require.Equal(t, workflow.ChemicalPending, r.Status)

	r, err = f.do(workflow.KindChemical, r.ID, manager, workflow.ActionVerify, workflow.Decision{})
	require.NoError(t, err)
	require.Equal(t, workflow.ChemicalManagerVerified, r.Status)

	_, err = f.do(workflow.KindChemical, r.ID, manager, workflow.ActionSendForPurchase, workflow.Decision{})
	require.ErrorIs(t, err, workflow.ErrUnauthorizedRole)

	r, err = f.do(workflow.KindChemical, r.ID, admin, workflow.ActionSendForPurchase, workflow.Decision{})
	require.NoError(t, err)
	require.Equal(t, workflow.ChemicalSentForPurchase, r.Status)

	_, err = f.do(workflow.KindChemical, r.ID, manager, workflow.ActionRecordPurchase, workflow.Decision{})
	require.ErrorIs(t, err, workflow.ErrValidation)

	supplier := "ChemCo"
	r, err = f.do(workflow.KindChemical, r.ID, manager, workflow.ActionRecordPurchase,
		workflow.Decision{Purchase: &workflow.PurchaseUpdate{Supplier: &supplier}})
	require.NoError(t, err)
	require.Equal(t, workflow.ChemicalPurchaseInProgress, r.Status)

	invoice, date := "INV-9", "2024-05-10"
	qty := decimal.NewFromInt(2)
	r, err = f.do(workflow.KindChemical, r.ID, manager, workflow.ActionRecordPurchase,
		workflow.Decision{Purchase: &workflow.PurchaseUpdate{InvoiceNumber: &invoice, PurchaseDate: &date, PurchasedQuantity: &qty}})
	require.NoError(t, err)
	require.Equal(t, workflow.ChemicalPurchased, r.Status)

	r, err = f.do(workflow.KindChemical, r.ID, admin, workflow.ActionComplete, workflow.Decision{Note: "stocked"})
	require.NoError(t, err)
	require.Equal(t, workflow.ChemicalCompleted, r.Status)
	require.Len(t, r.StageNotes, 5)
}

func TestService_ChemicalCompletesFromInProgress(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindChemical, Actor: staff,
		Payload: &workflow.ChemicalPayload{ChemicalName: "NaCl", Quantity: decimal.NewFromInt(1), Purpose: "buffer"}})
	require.NoError(t, err)
	steps := []struct {
		actor  workflow.Actor
		action workflow.Action
	}{
		{manager, workflow.ActionVerify},
		{admin, workflow.ActionSendForPurchase},
	}
	for _, s := range steps {
		_, err = f.do(workflow.KindChemical, r.ID, s.actor, s.action, workflow.Decision{})
		require.NoError(t, err)
	}
	cost := decimal.RequireFromString("12.345")
	r, err = f.do(workflow.KindChemical, r.ID, manager, workflow.ActionRecordPurchase,
		workflow.Decision{Purchase: &workflow.PurchaseUpdate{Cost: &cost}})
	require.NoError(t, err)
	chem, _ := r.Chemical()
	require.Equal(t, "12.35", chem.PurchaseInfo.Cost.StringFixed(2))

	r, err = f.do(workflow.KindChemical, r.ID, admin, workflow.ActionComplete, workflow.Decision{})
	require.NoError(t, err)
	require.Equal(t, workflow.ChemicalCompleted, r.Status)
}

func TestService_QuantitiesAndRatesKeepSubmittedPrecision(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r, err := f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindChemical, Actor: staff,
		Payload: &workflow.ChemicalPayload{ChemicalName: "osmium", Quantity: decimal.RequireFromString("0.004"), Unit: "g", Purpose: "staining"}})
	require.NoError(t, err)
	chem, _ := r.Chemical()
	require.Equal(t, "0.004", chem.Quantity.String())

	r, err = f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindChemical, Actor: staff,
		Payload: &workflow.ChemicalPayload{ChemicalName: "ethanol", Quantity: decimal.RequireFromString("1.125"), Unit: "l", Purpose: "cleaning"}})
	require.NoError(t, err)
	for _, s := range []struct {
		actor  workflow.Actor
		action workflow.Action
	}{{manager, workflow.ActionVerify}, {admin, workflow.ActionSendForPurchase}} {
		_, err = f.do(workflow.KindChemical, r.ID, s.actor, s.action, workflow.Decision{})
		require.NoError(t, err)
	}
	qty := decimal.RequireFromString("1.125")
	r, err = f.do(workflow.KindChemical, r.ID, manager, workflow.ActionRecordPurchase,
		workflow.Decision{Purchase: &workflow.PurchaseUpdate{PurchasedQuantity: &qty}})
	require.NoError(t, err)
	chem, _ = r.Chemical()
	require.Equal(t, "1.125", chem.Quantity.String())
	require.Equal(t, "1.125", chem.PurchaseInfo.PurchasedQuantity.String())

	_, err = f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindRateUpdate, Actor: admin, Payload: gold("185.755", "2.2375")})
	require.NoError(t, err)
	active := activeRates(t, f)
	require.Len(t, active, 1)
	rate, _ := active[0].Rate()
	require.Equal(t, "185.755", rate.INR.String())
	require.Equal(t, "2.2375", rate.USD.String())

	_, err = f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindRateUpdate, Actor: admin, Payload: gold("0.004", "0.004")})
	require.NoError(t, err)
	rate, _ = activeRates(t, f)[0].Rate()
	require.Equal(t, "0.004", rate.USD.String())
}

func gold(inr, usd string) *workflow.RatePayload {
	return &workflow.RatePayload{
		EffectiveDate: "2024-05-10",
		Category:      "gold",
		INR:           decimal.RequireFromString(inr),
		USD:           decimal.RequireFromString(usd),
	}
}

func activeRates(t *testing.T, f *fixture) []*workflow.Request {
	t.Helper()
	out, err := f.svc.Query(context.Background(), workflow.KindRateUpdate, workflow.Filter{
		Status: workflow.RateActive, Category: "gold", EffectiveDate: "2024-05-10",
	})
	require.NoError(t, err)
	return out
}

func TestService_RateProposalApproval(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindRateUpdate, Actor: manager, Payload: gold("6500", "78.10")})
	require.NoError(t, err)
	require.Equal(t, workflow.RatePendingApproval, p.Status)
	require.Empty(t, activeRates(t, f))

	p, err = f.do(workflow.KindRateUpdate, p.ID, admin, workflow.ActionApprove, workflow.Decision{})
	require.NoError(t, err)
	require.Equal(t, workflow.RateApproved, p.Status)
	require.Equal(t, "a1", p.ApprovedBy)

	active := activeRates(t, f)
	require.Len(t, active, 1)
	rate, _ := active[0].Rate()
	require.True(t, rate.INR.Equal(decimal.NewFromInt(6500)))
	require.NotEqual(t, p.ID, active[0].ID)
	require.Equal(t, "a1", active[0].ApprovedBy)

	// a second approved proposal overwrites the same Active record
	q, err := f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindRateUpdate, Actor: manager, Payload: gold("6600", "79")})
	require.NoError(t, err)
	_, err = f.do(workflow.KindRateUpdate, q.ID, admin, workflow.ActionApprove, workflow.Decision{})
	require.NoError(t, err)
	again := activeRates(t, f)
	require.Len(t, again, 1)
	require.Equal(t, active[0].ID, again[0].ID)
	rate, _ = again[0].Rate()
	require.True(t, rate.INR.Equal(decimal.NewFromInt(6600)))
	require.Len(t, again[0].StageNotes, 2)
}

func TestService_RateRejectionPublishesNothing(t *testing.T) {
	f := newFixture(t, nil)
	p, err := f.svc.Submit(context.Background(), workflow.SubmitCommand{Kind: workflow.KindRateUpdate, Actor: manager, Payload: gold("1", "1")})
	require.NoError(t, err)
	_, err = f.do(workflow.KindRateUpdate, p.ID, manager, workflow.ActionApprove, workflow.Decision{})
	require.ErrorIs(t, err, workflow.ErrUnauthorizedRole)
	p, err = f.do(workflow.KindRateUpdate, p.ID, admin, workflow.ActionReject, workflow.Decision{Note: "stale"})
	require.NoError(t, err)
	require.Equal(t, workflow.RateRejected, p.Status)
	require.Empty(t, activeRates(t, f))
}

func TestService_AdminDirectUpsertIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cmd := workflow.SubmitCommand{Kind: workflow.KindRateUpdate, Actor: admin, Payload: gold("6500", "78")}

	first, err := f.svc.Submit(ctx, cmd)
	require.NoError(t, err)
	require.Equal(t, workflow.RateActive, first.Status)
	second, err := f.svc.Submit(ctx, cmd)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	active := activeRates(t, f)
	require.Len(t, active, 1)
	rate, _ := active[0].Rate()
	require.True(t, rate.USD.Equal(decimal.NewFromInt(78)))

	_, err = f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindRateUpdate, Actor: staff, Payload: gold("1", "1")})
	require.ErrorIs(t, err, workflow.ErrUnauthorizedRole)
}

func TestService_RateDateDefaultsToZoneToday(t *testing.T) {
	f := newFixture(t, nil)
	// 20:00 UTC is 01:30 the next day in UTC+05:30
	f.clock.Set(time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC))
	payload := gold("1", "1")
	payload.EffectiveDate = ""
	r, err := f.svc.Submit(context.Background(), workflow.SubmitCommand{Kind: workflow.KindRateUpdate, Actor: admin, Payload: payload})
	require.NoError(t, err)
	rate, _ := r.Rate()
	require.Equal(t, "2024-05-11", rate.EffectiveDate)
}

func TestService_RateCutoff(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.clock.Set(time.Date(2024, 5, 10, 15, 59, 59, 0, rateZone))
	p, err := f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindRateUpdate, Actor: manager, Payload: gold("1", "1")})
	require.NoError(t, err)

	f.clock.Set(time.Date(2024, 5, 10, 16, 0, 0, 0, rateZone))
	require.False(t, f.svc.Window().Open)
	_, err = f.svc.Submit(ctx, workflow.SubmitCommand{Kind: workflow.KindRateUpdate, Actor: admin, Payload: gold("2", "2")})
	require.ErrorIs(t, err, workflow.ErrTimeWindowClosed)
	_, err = f.do(workflow.KindRateUpdate, p.ID, admin, workflow.ActionApprove, workflow.Decision{})
	require.ErrorIs(t, err, workflow.ErrTimeWindowClosed)

	stored, err := f.svc.Get(ctx, workflow.KindRateUpdate, p.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.RatePendingApproval, stored.Status)
	require.Empty(t, activeRates(t, f))

	// bills and chemicals ignore the window
	f.submitBill(t, "10")

	f.clock.Set(time.Date(2024, 5, 11, 0, 0, 0, 0, rateZone))
	_, err = f.do(workflow.KindRateUpdate, p.ID, admin, workflow.ActionApprove, workflow.Decision{})
	require.NoError(t, err)
}

func TestService_UnknownRequest(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.do(workflow.KindBill, "missing", manager, workflow.ActionApprove, workflow.Decision{})
	require.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = f.svc.Get(context.Background(), workflow.KindChemical, "missing")
	require.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = f.do(workflow.KindBill, "missing", manager, workflow.ActionVerify, workflow.Decision{})
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestService_QueryFilters(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, f.submitBill(t, "10").ID)
		f.clock.Advance(time.Minute)
	}
	_, err := f.do(workflow.KindBill, ids[1], manager, workflow.ActionApprove, workflow.Decision{})
	require.NoError(t, err)

	all, err := f.svc.Query(ctx, workflow.KindBill, workflow.Filter{})
	require.NoError(t, err)
	require.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{all[0].ID, all[1].ID, all[2].ID})

	pending, err := f.svc.Query(ctx, workflow.KindBill, workflow.Filter{Status: workflow.BillPending})
	require.NoError(t, err)
	require.Len(t, pending, 2)

	page, err := f.svc.Query(ctx, workflow.KindBill, workflow.Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, ids[1], page[0].ID)

	from := all[1].CreatedAt
	recent, err := f.svc.Query(ctx, workflow.KindBill, workflow.Filter{From: &from})
	require.NoError(t, err)
	require.Len(t, recent, 2)

	_, err = f.svc.Query(ctx, workflow.KindBill, workflow.Filter{Status: workflow.ChemicalPending})
	require.ErrorIs(t, err, workflow.ErrValidation)
	_, err = f.svc.Query(ctx, workflow.KindBill, workflow.Filter{Category: "gold"})
	require.ErrorIs(t, err, workflow.ErrValidation)
	_, err = f.svc.Query(ctx, workflow.KindBill, workflow.Filter{From: &from, To: &from})
	require.ErrorIs(t, err, workflow.ErrValidation)
}

func TestService_NotifyFailureKeepsWrite(t *testing.T) {
	f := newFixture(t, nil)
	f.sent.err = errors.New("broker down")
	r := f.submitBill(t, "10")
	r, err := f.do(workflow.KindBill, r.ID, manager, workflow.ActionApprove, workflow.Decision{})
	require.NoError(t, err)

	stored, err := f.svc.Get(context.Background(), workflow.KindBill, r.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.BillManagerApproved, stored.Status)
	require.Len(t, f.sent.events, 2)
}

// failingStore loses every conditional update after running the mutation.
type failingStore struct {
	*database.MemoryStore
}

func (s failingStore) ConditionalUpdate(ctx context.Context, kind workflow.Kind, id string, expected workflow.State, m workflow.Mutation) (*workflow.Request, error) {
	return s.MemoryStore.ConditionalUpdate(ctx, kind, id, expected, func(r *workflow.Request) (*workflow.Publication, error) {
		if _, err := m(r); err != nil {
			return nil, err
		}
		return nil, errors.New("write failed")
	})
}

func TestService_FailedWriteChangesNothing(t *testing.T) {
	mem := database.NewMemoryStore()
	f := newFixture(t, failingStore{mem})
	p, err := f.svc.Submit(context.Background(), workflow.SubmitCommand{Kind: workflow.KindRateUpdate, Actor: manager, Payload: gold("1", "1")})
	require.NoError(t, err)
	sent := len(f.sent.events)

	_, err = f.do(workflow.KindRateUpdate, p.ID, admin, workflow.ActionApprove, workflow.Decision{Note: "go"})
	require.Error(t, err)
	require.Equal(t, "internal", workflow.Code(err))

	stored, err := mem.Get(context.Background(), workflow.KindRateUpdate, p.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.RatePendingApproval, stored.Status)
	require.Empty(t, stored.StageNotes)
	require.Empty(t, stored.ApprovedBy)
	active, err := mem.Query(context.Background(), workflow.KindRateUpdate, workflow.Filter{Status: workflow.RateActive})
	require.NoError(t, err)
	require.Empty(t, active)
	require.Len(t, f.sent.events, sent)
}

// barrierStore holds every Get until n readers have arrived, so concurrent
// commands all decide on the same snapshot.
type barrierStore struct {
	*database.MemoryStore
	arrived sync.WaitGroup
}

func (s *barrierStore) Get(ctx context.Context, kind workflow.Kind, id string) (*workflow.Request, error) {
	r, err := s.MemoryStore.Get(ctx, kind, id)
	s.arrived.Done()
	s.arrived.Wait()
	return r, err
}

func TestService_ConcurrentDecisionsConflict(t *testing.T) {
	mem := database.NewMemoryStore()
	bs := &barrierStore{MemoryStore: mem}
	f := newFixture(t, bs)
	r := f.submitBill(t, "10")

	bs.arrived.Add(2)
	actions := []workflow.Action{workflow.ActionApprove, workflow.ActionReject}
	errs := make([]error, len(actions))
	var wg sync.WaitGroup
	for i, action := range actions {
		wg.Add(1)
		go func(i int, action workflow.Action) {
			defer wg.Done()
			_, errs[i] = f.do(workflow.KindBill, r.ID, manager, action, workflow.Decision{})
		}(i, action)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, workflow.ErrConflict):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, 1, lost)

	stored, err := mem.Get(context.Background(), workflow.KindBill, r.ID)
	require.NoError(t, err)
	require.Len(t, stored.StageNotes, 1)
	require.Contains(t, []workflow.State{workflow.BillManagerApproved, workflow.BillManagerRejected}, stored.Status)
}
