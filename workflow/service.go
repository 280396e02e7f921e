package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"opsconsole-backend/clock"
	"opsconsole-backend/metrics"
	"opsconsole-backend/utils"
)

const (
	maxNoteLength = 1000
	actionSubmit  = "submit"
)

// Service is the only component that mutates a Request. Each call is one
// self-contained unit of work.
type Service struct {
	store    Store
	engine   *Engine
	gate     Gate
	clock    clock.Clock
	notifier Notifier
	log      *logrus.Entry
	newID    func() string
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(l *logrus.Entry) Option {
	return func(s *Service) { s.log = l }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(store Store, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		store:  store,
		engine: NewEngine(),
		clock:  clk,
		log:    logrus.NewEntry(logrus.StandardLogger()),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clock.System
	}
	return s
}

// Engine returns the transition tables in use.
func (s *Service) Engine() *Engine { return s.engine }

// Window reports the rate write window at the current clock reading.
func (s *Service) Window() WindowStatus { return s.gate.Window(s.clock.Now()) }

// SubmitCommand creates a request, or for an admin rate update writes the
// Active record directly.
type SubmitCommand struct {
	Kind    Kind
	Actor   Actor
	Payload Payload
	Note    string
}

// Command applies action to an existing request.
type Command struct {
	Kind      Kind
	RequestID string
	Action    Action
	Actor     Actor
	Decision  Decision
}

func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*Request, error) {
	action := actionSubmit
	if cmd.Kind == KindRateUpdate && cmd.Actor.Role == RoleManager {
		action = string(ActionSubmitForApproval)
	}
	r, err := s.submit(ctx, cmd)
	s.record(cmd.Kind, action, r, cmd.Actor, err)
	return r, err
}

func (s *Service) submit(ctx context.Context, cmd SubmitCommand) (*Request, error) {
	if !cmd.Kind.Valid() {
		return nil, fieldError("kind", "oneof")
	}
	if err := validateActor(cmd.Actor); err != nil {
		return nil, err
	}
	if cmd.Payload == nil || cmd.Payload.Kind() != cmd.Kind {
		return nil, fieldError("payload", "kind")
	}
	if len(cmd.Note) > maxNoteLength {
		return nil, fieldError("note", "max")
	}
	now := s.clock.Now().UTC()
	payload := cmd.Payload.clone()
	utils.NormalizeDTO(payload)

	switch p := payload.(type) {
	case *BillPayload:
		p.ApprovedAmount = nil
	case *ChemicalPayload:
		p.PurchaseInfo = nil
		if p.Priority == "" {
			p.Priority = PriorityNormal
		}
	case *RatePayload:
		if p.EffectiveDate == "" {
			p.EffectiveDate = s.gate.Today(now)
		}
	}
	if err := ValidateStruct(payload); err != nil {
		return nil, err
	}
	if !s.gate.IsWriteAllowed(cmd.Kind, now) {
		return nil, s.windowClosed()
	}

	switch cmd.Kind {
	case KindBill, KindChemical:
		if cmd.Actor.Role != RoleStaff {
			return nil, fmt.Errorf("%w: only staff may submit %s requests", ErrUnauthorizedRole, cmd.Kind)
		}
	case KindRateUpdate:
		switch cmd.Actor.Role {
		case RoleAdmin:
			return s.store.Upsert(ctx, &Publication{
				NewID:  s.newID(),
				Values: *payload.(*RatePayload),
				Actor:  cmd.Actor,
				At:     now,
				Note:   cmd.Note,
			})
		case RoleManager:
		default:
			return nil, fmt.Errorf("%w: %q cannot write rates", ErrUnauthorizedRole, cmd.Actor.Role)
		}
	}

	r := &Request{
		ID:          s.newID(),
		Kind:        cmd.Kind,
		Payload:     payload,
		Status:      InitialState(cmd.Kind),
		RequestedBy: cmd.Actor,
		StageNotes:  []StageNote{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Execute runs one decision through gate, engine and conditional update.
// On any error the stored request is unchanged.
func (s *Service) Execute(ctx context.Context, cmd Command) (*Request, error) {
	r, err := s.execute(ctx, cmd)
	s.record(cmd.Kind, string(cmd.Action), r, cmd.Actor, err)
	return r, err
}

func (s *Service) execute(ctx context.Context, cmd Command) (*Request, error) {
	if !cmd.Kind.Valid() || !s.engine.Supports(cmd.Kind, cmd.Action) {
		return nil, fmt.Errorf("%w: %s has no action %q", ErrInvalidTransition, cmd.Kind, cmd.Action)
	}
	if err := validateActor(cmd.Actor); err != nil {
		return nil, err
	}
	if err := validateDecision(cmd); err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()
	if !s.gate.IsWriteAllowed(cmd.Kind, now) {
		return nil, s.windowClosed()
	}
	current, err := s.store.Get(ctx, cmd.Kind, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	tr, err := s.engine.Decide(current, cmd.Actor, cmd.Action, cmd.Decision)
	if err != nil {
		return nil, err
	}
	return s.store.ConditionalUpdate(ctx, cmd.Kind, cmd.RequestID, current.Status, func(r *Request) (*Publication, error) {
		pub, err := tr.Apply(r, now)
		if pub != nil {
			pub.NewID = s.newID()
		}
		return pub, err
	})
}

func (s *Service) Get(ctx context.Context, kind Kind, id string) (*Request, error) {
	if !kind.Valid() {
		return nil, fieldError("kind", "oneof")
	}
	return s.store.Get(ctx, kind, id)
}

// Query returns the requests of kind matching f, most recent first.
func (s *Service) Query(ctx context.Context, kind Kind, f Filter) ([]*Request, error) {
	if !kind.Valid() {
		return nil, fieldError("kind", "oneof")
	}
	if f.Status != nil && f.Status.Kind() != kind {
		return nil, fieldError("status", "kind")
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, fieldError("from", "ltfield")
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, fieldError("limit", "gte")
	}
	if kind != KindRateUpdate && (f.Category != "" || f.EffectiveDate != "") {
		return nil, fieldError("category", "rate_update_only")
	}
	return s.store.Query(ctx, kind, f)
}

func (s *Service) windowClosed() error {
	return fmt.Errorf("%w: rate updates close at %02d:00 (UTC+05:30) and reopen at midnight", ErrTimeWindowClosed, RateCutoffHour)
}

func (s *Service) record(kind Kind, action string, r *Request, actor Actor, err error) {
	metrics.RecordCommand(string(kind), action, Code(err))
	entry := s.log.WithFields(logrus.Fields{
		"kind":     kind,
		"action":   action,
		"actor_id": actor.ID,
		"role":     actor.Role,
	})
	if err != nil {
		if Code(err) == "internal" {
			entry.WithError(err).Error("workflow command failed")
		} else {
			entry.WithError(err).Info("workflow command rejected")
		}
		return
	}
	entry.WithFields(logrus.Fields{"request_id": r.ID, "status": r.Status.String()}).Info("workflow command applied")
	s.notify(r, actor)
}

func (s *Service) notify(r *Request, actor Actor) {
	if s.notifier == nil {
		return
	}
	// delivery is detached from the caller's cancellation; the write is already committed
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.notifier.Notify(ctx, Event{
		Kind:      r.Kind,
		RequestID: r.ID,
		Status:    r.Status.String(),
		ActorID:   actor.ID,
		ActorRole: actor.Role,
	})
	if err != nil {
		metrics.RecordNotifyFailure(string(r.Kind))
		s.log.WithError(err).WithField("request_id", r.ID).Warn("notification failed")
	}
}

func validateActor(a Actor) error {
	if a.ID == "" {
		return fieldError("actor_id", "required")
	}
	if !a.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrUnauthorizedRole, a.Role)
	}
	return nil
}

func validateDecision(cmd Command) error {
	d := cmd.Decision
	if len(d.Note) > maxNoteLength {
		return fieldError("note", "max")
	}
	if d.ApprovedAmount != nil {
		if cmd.Kind != KindBill || cmd.Action != ActionApprove {
			return fieldError("approved_amount", "bill_approve_only")
		}
		if !d.ApprovedAmount.IsPositive() {
			return fieldError("approved_amount", "gt")
		}
	}
	if cmd.Action == ActionRecordPurchase {
		if d.Purchase == nil {
			return fieldError("purchase", "required")
		}
		if err := ValidateStruct(d.Purchase); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				prefixed := make(map[string]string, len(ve.Fields))
				for k, v := range ve.Fields {
					prefixed["purchase."+k] = v
				}
				return &ValidationError{Fields: prefixed}
			}
			return err
		}
	} else if d.Purchase != nil {
		return fieldError("purchase", "record_purchase_only")
	}
	return nil
}
