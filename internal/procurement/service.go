package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/procura-app/procura/internal/shared"
	"github.com/procura-app/procura/internal/snapshot"
)

const (
	dateLayout       = "02/01/2006"
	timeLayout       = "15:04"
	periodLayout     = "02/01"
	defaultRequester = "Usuário Atual"
)

// AuditPort records audit entries for transitions. Clear drops every entry
// when the workflow data is reset.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
	Clear(ctx context.Context) error
}

// Option customises a Service.
type Option func(*Service)

// WithKey overrides the snapshot key.
func WithKey(key string) Option {
	return func(s *Service) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAudit records every committed transition through audit.
func WithAudit(audit AuditPort) Option {
	return func(s *Service) { s.audit = audit }
}

// WithEvents forwards committed transitions to handler.
func WithEvents(handler EventHandler) Option {
	return func(s *Service) { s.events = handler }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service owns the procurement workflow state and is its only transition surface.
type Service struct {
	backend snapshot.Backend
	key     string
	logger  *slog.Logger
	audit   AuditPort
	events  EventHandler
	now     func() time.Time

	mu       sync.RWMutex
	state    State
	hydrated bool
	closed   atomic.Bool
}

// NewService constructs the state service. Mutations are only persisted after Hydrate.
func NewService(backend snapshot.Backend, opts ...Option) *Service {
	if backend == nil {
		backend = snapshot.NewMemory()
	}
	s := &Service{
		backend: backend,
		key:     snapshot.DefaultKey,
		logger:  slog.Default(),
		now:     time.Now,
		state:   emptyState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ensureOpen() {
	if s == nil {
		panic("procurement: nil service")
	}
	if s.closed.Load() {
		panic("procurement: service used after Close")
	}
}

// Hydrate loads the persisted snapshot. A missing or malformed blob leaves
// the collections empty; transport failures are returned.
func (s *Service) Hydrate(ctx context.Context) error {
	s.ensureOpen()
	blob, err := s.backend.Load(ctx, s.key)
	st := emptyState()
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
	case err != nil:
		return fmt.Errorf("procurement: load snapshot: %w", err)
	default:
		decoded, decodeErr := DecodeState(blob)
		if decodeErr != nil {
			s.logger.Warn("discarding malformed snapshot", slog.String("key", s.key), slog.Any("error", decodeErr))
		} else {
			st = decoded
		}
	}
	s.mu.Lock()
	s.state = st
	s.hydrated = true
	s.mu.Unlock()
	s.logger.Info("state hydrated",
		slog.Int("forecasts", len(st.Forecasts)),
		slog.Int("requisitions", len(st.Requisitions)),
		slog.Int("queue_items", len(st.QueueItems)))
	return nil
}

// Close marks the service unusable.
func (s *Service) Close() {
	s.ensureOpen()
	if !s.closed.CompareAndSwap(false, true) {
		panic("procurement: service used after Close")
	}
}

// mutate runs fn on a copy of the state, persists it and swaps it in.
// Nothing changes when fn or the snapshot write fails.
func (s *Service) mutate(ctx context.Context, fn func(*State) ([]TransitionEvent, error)) error {
	s.ensureOpen()
	events, err := s.commit(ctx, fn)
	if err != nil {
		return err
	}
	s.publish(ctx, events)
	return nil
}

func (s *Service) commit(ctx context.Context, fn func(*State) ([]TransitionEvent, error)) ([]TransitionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	events, err := fn(&next)
	if err != nil {
		return nil, err
	}
	if s.hydrated {
		blob, err := EncodeState(next)
		if err != nil {
			return nil, err
		}
		if err := s.backend.Save(ctx, s.key, blob); err != nil {
			return nil, fmt.Errorf("procurement: save snapshot: %w", err)
		}
	}
	s.state = next
	return events, nil
}

func (s *Service) publish(ctx context.Context, events []TransitionEvent) {
	for _, evt := range events {
		if s.events != nil {
			if err := s.events.HandleTransition(ctx, evt); err != nil {
				s.logger.Error("transition handler", slog.String("entity", evt.Entity), slog.String("id", evt.ID), slog.Any("error", err))
			}
		}
		s.recordAudit(ctx, evt)
	}
}

func (s *Service) recordAudit(ctx context.Context, evt TransitionEvent) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{}
	if evt.From != "" {
		meta["from"] = evt.From
	}
	if evt.To != "" {
		meta["to"] = evt.To
	}
	action := strings.ToUpper(evt.Entity + "_" + evt.Action)
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: evt.Entity, EntityID: evt.ID, Meta: meta, At: evt.At}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) event(entity, id, action string, from, to string) TransitionEvent {
	return TransitionEvent{Entity: entity, ID: id, Action: action, From: from, To: to, At: s.now()}
}

// ForecastInput describes a forecast launched from the finance screen.
type ForecastInput struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Responsible string
	Amount      float64
	Scope       ForecastScope
}

// BuildForecast produces a projected forecast with display-formatted period labels.
func BuildForecast(input ForecastInput) CashForecast {
	scope := input.Scope
	if scope == "" {
		scope = ScopeGeneral
	}
	responsible := strings.TrimSpace(input.Responsible)
	if responsible == "" {
		responsible = defaultRequester
	}
	return CashForecast{
		ID:          "prev-" + uuid.NewString(),
		PeriodStart: input.PeriodStart.Format(periodLayout),
		PeriodEnd:   input.PeriodEnd.Format(periodLayout),
		Responsible: responsible,
		Amount:      input.Amount,
		Status:      ForecastProjected,
		Scope:       scope,
	}
}

// AddForecast appends a forecast as given. Only a missing id is filled in.
func (s *Service) AddForecast(ctx context.Context, forecast CashForecast) error {
	if forecast.ID == "" {
		forecast.ID = "prev-" + uuid.NewString()
	}
	return s.mutate(ctx, func(st *State) ([]TransitionEvent, error) {
		st.Forecasts = append(st.Forecasts, forecast)
		return []TransitionEvent{s.event(EntityForecast, forecast.ID, "create", "", string(forecast.Status))}, nil
	})
}

// NewRequisition carries the caller-supplied fields of a requisition.
type NewRequisition struct {
	Title         string
	Justification string
	CostCenter    string
	Items         []RequisitionLineItem
	Status        RequisitionStatus
}

// NextRequisitionID returns the id the next AddRequisition would assign.
func (s *Service) NextRequisitionID() string {
	s.ensureOpen()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nextRequisitionID(s.state.Requisitions)
}

// AddRequisition assigns the next id, stores the requisition first and returns it.
func (s *Service) AddRequisition(ctx context.Context, input NewRequisition) (Requisition, error) {
	status := input.Status
	if status == "" {
		status = StatusAwaitingApproval
	}
	if status != StatusDraft && status != StatusAwaitingApproval {
		return Requisition{}, fmt.Errorf("%w: new requisitions start as %s or %s", ErrValidation, StatusDraft, StatusAwaitingApproval)
	}
	items := make([]RequisitionLineItem, len(input.Items))
	for i, item := range input.Items {
		if item.ID == "" {
			item.ID = fmt.Sprintf("%d", i+1)
		}
		items[i] = item
	}
	var created Requisition
	err := s.mutate(ctx, func(st *State) ([]TransitionEvent, error) {
		now := s.now()
		created = Requisition{
			ID:            nextRequisitionID(st.Requisitions),
			Title:         input.Title,
			Justification: input.Justification,
			CostCenter:    input.CostCenter,
			Items:         items,
			TotalValue:    sumLines(items),
			Status:        status,
			Stage:         StageSubmission,
			CreatedDate:   now.Format(dateLayout),
			CreatedTime:   now.Format(timeLayout),
		}
		st.Requisitions = append([]Requisition{created}, st.Requisitions...)
		return []TransitionEvent{s.event(EntityRequisition, created.ID, "create", "", string(status))}, nil
	})
	if err != nil {
		return Requisition{}, err
	}
	return cloneRequisition(created), nil
}

// RequisitionPatch lists the fields a requester may edit. Status and stage
// only move through the named transitions.
type RequisitionPatch struct {
	Title         *string
	Justification *string
	CostCenter    *string
}

// UpdateRequisition merges the non-nil patch fields onto the requisition.
func (s *Service) UpdateRequisition(ctx context.Context, id string, patch RequisitionPatch) (Requisition, error) {
	var updated Requisition
	err := s.mutate(ctx, func(st *State) ([]TransitionEvent, error) {
		idx := st.requisitionIndex(id)
		if idx < 0 {
			return nil, fmt.Errorf("requisition %s: %w", id, ErrNotFound)
		}
		req := &st.Requisitions[idx]
		if patch.Title != nil {
			req.Title = *patch.Title
		}
		if patch.Justification != nil {
			req.Justification = *patch.Justification
		}
		if patch.CostCenter != nil {
			req.CostCenter = *patch.CostCenter
		}
		updated = cloneRequisition(*req)
		return []TransitionEvent{s.event(EntityRequisition, id, "update", "", "")}, nil
	})
	return updated, err
}

// transitionRequisition moves a requisition to status, optionally setting its stage.
func (s *Service) transitionRequisition(ctx context.Context, id, action string, to RequisitionStatus, stage int, extra func(*State, *Requisition) error) (Requisition, error) {
	var updated Requisition
	err := s.mutate(ctx, func(st *State) ([]TransitionEvent, error) {
		idx := st.requisitionIndex(id)
		if idx < 0 {
			return nil, fmt.Errorf("requisition %s: %w", id, ErrNotFound)
		}
		req := &st.Requisitions[idx]
		from := req.Status
		if !CanTransition(from, to) {
			return nil, fmt.Errorf("requisition %s %s -> %s: %w", id, from, to, ErrInvalidState)
		}
		if extra != nil {
			if err := extra(st, req); err != nil {
				return nil, err
			}
			// extra may append to collections; refresh the pointer.
			req = &st.Requisitions[st.requisitionIndex(id)]
		}
		req.Status = to
		if stage >= 0 {
			req.Stage = stage
		}
		updated = cloneRequisition(*req)
		return []TransitionEvent{s.event(EntityRequisition, id, action, string(from), string(to))}, nil
	})
	return updated, err
}

// SubmitRequisition sends a draft for executive approval.
func (s *Service) SubmitRequisition(ctx context.Context, id string) (Requisition, error) {
	return s.transitionRequisition(ctx, id, "submit", StatusAwaitingApproval, StageSubmission, nil)
}

// BeginReview marks a requisition as under executive analysis.
func (s *Service) BeginReview(ctx context.Context, id string) (Requisition, error) {
	return s.transitionRequisition(ctx, id, "review", StatusInReview, StageExecutive, nil)
}

// ApproveRequisition approves a requisition and appends its queue items in order.
// Items must reference the requisition; missing ids and statuses are filled in.
func (s *Service) ApproveRequisition(ctx context.Context, id string, items []ProcurementQueueItem) (Requisition, error) {
	prepared := make([]ProcurementQueueItem, len(items))
	for i, item := range items {
		item = cloneQueueItem(item)
		if item.RequisitionID == "" {
			item.RequisitionID = id
		}
		if item.RequisitionID != id {
			return Requisition{}, fmt.Errorf("%w: item %d belongs to %s", ErrValidation, i+1, item.RequisitionID)
		}
		if item.ID == "" {
			item.ID = QueueItemID(id, i+1)
		}
		if item.Status == "" {
			item.Status = QueueAwaitingQuote
		}
		if !validQueueStatus(item.Status) {
			return Requisition{}, fmt.Errorf("%w: item %s status %q", ErrValidation, item.ID, item.Status)
		}
		if item.ApprovedQuantity < 0 {
			return Requisition{}, fmt.Errorf("%w: item %s negative quantity", ErrValidation, item.ID)
		}
		prepared[i] = item
	}
	return s.transitionRequisition(ctx, id, "approve", StatusApproved, StageProcurement, func(st *State, _ *Requisition) error {
		return appendQueueItems(st, prepared)
	})
}

// ApproveWithQuantities drafts the queue items from approved line quantities
// (see BuildApproval) and approves the requisition in the same commit.
func (s *Service) ApproveWithQuantities(ctx context.Context, id string, approved map[string]float64) (Requisition, []ProcurementQueueItem, ApprovalSummary, error) {
	var (
		items   []ProcurementQueueItem
		summary ApprovalSummary
	)
	updated, err := s.transitionRequisition(ctx, id, "approve", StatusApproved, StageProcurement, func(st *State, req *Requisition) error {
		var err error
		items, summary, err = BuildApproval(*req, approved, GlobalAvailability(st.Forecasts))
		if err != nil {
			return err
		}
		return appendQueueItems(st, items)
	})
	if err != nil {
		return Requisition{}, nil, ApprovalSummary{}, err
	}
	return updated, items, summary, nil
}

func appendQueueItems(st *State, items []ProcurementQueueItem) error {
	for _, item := range items {
		if st.queueItemIndex(item.ID) >= 0 {
			return fmt.Errorf("%w: queue item %s already exists", ErrValidation, item.ID)
		}
	}
	for _, item := range items {
		st.QueueItems = append(st.QueueItems, cloneQueueItem(item))
	}
	return nil
}

// RejectRequisition rejects a requisition pending executive decision. The
// stored line items are kept as requested.
func (s *Service) RejectRequisition(ctx context.Context, id string) (Requisition, error) {
	return s.transitionRequisition(ctx, id, "reject", StatusRejected, -1, nil)
}

// FinalizeQuotation hands an approved requisition over for ratification.
// Queue item statuses are left as they are.
func (s *Service) FinalizeQuotation(ctx context.Context, id string) (Requisition, error) {
	return s.transitionRequisition(ctx, id, "finalize", StatusAwaitingRatification, StageDelivery, nil)
}

// RatifyOrder closes the requisition and returns the issued order summary.
func (s *Service) RatifyOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	var order PurchaseOrder
	_, err := s.transitionRequisition(ctx, id, "ratify", StatusRatified, -1, func(st *State, req *Requisition) error {
		order = buildPurchaseOrder(*req, itemsFor(st.QueueItems, id), s.now())
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return order, nil
}

func buildPurchaseOrder(req Requisition, items []ProcurementQueueItem, now time.Time) PurchaseOrder {
	active := make([]ProcurementQueueItem, 0, len(items))
	var suppliers []string
	seen := map[string]bool{}
	for _, item := range items {
		if item.Status == QueueCancelled {
			continue
		}
		active = append(active, cloneQueueItem(item))
		if item.Supplier != "" && !seen[item.Supplier] {
			seen[item.Supplier] = true
			suppliers = append(suppliers, item.Supplier)
		}
	}
	suffix := strings.TrimPrefix(req.ID, requisitionPrefix)
	return PurchaseOrder{
		ID:         fmt.Sprintf("#OC-%d/%s", now.Year(), suffix),
		Items:      active,
		Supplier:   strings.Join(suppliers, ", "),
		TotalValue: SummarizeRatification(active).BestOffer,
		IssuedAt:   now.Format(dateLayout),
		Status:     OrderIssued,
	}
}

// QueueItemPatch lists the mergeable queue item fields.
type QueueItemPatch struct {
	Supplier        *string
	NegotiatedPrice *float64
	Status          *QueueStatus
}

// UpdateQueueItem merges the non-nil patch fields. A status change must be legal.
func (s *Service) UpdateQueueItem(ctx context.Context, itemID string, patch QueueItemPatch) (ProcurementQueueItem, error) {
	var updated ProcurementQueueItem
	err := s.mutate(ctx, func(st *State) ([]TransitionEvent, error) {
		idx := st.queueItemIndex(itemID)
		if idx < 0 {
			return nil, fmt.Errorf("queue item %s: %w", itemID, ErrNotFound)
		}
		item := &st.QueueItems[idx]
		from := item.Status
		if patch.Status != nil && *patch.Status != from {
			if !CanTransitionQueue(from, *patch.Status) {
				return nil, fmt.Errorf("queue item %s %s -> %s: %w", itemID, from, *patch.Status, ErrInvalidState)
			}
			item.Status = *patch.Status
		}
		if patch.Supplier != nil {
			item.Supplier = *patch.Supplier
		}
		if patch.NegotiatedPrice != nil {
			price := *patch.NegotiatedPrice
			item.NegotiatedPrice = &price
		}
		updated = cloneQueueItem(*item)
		to := ""
		if item.Status != from {
			to = string(item.Status)
		}
		return []TransitionEvent{s.event(EntityQueueItem, itemID, "update", string(from), to)}, nil
	})
	return updated, err
}

// StartQuotation opens the quotation of a queue item.
func (s *Service) StartQuotation(ctx context.Context, itemID string) (ProcurementQueueItem, error) {
	status := QueueQuoting
	return s.UpdateQueueItem(ctx, itemID, QueueItemPatch{Status: &status})
}

// RegisterQuote records the collected quotes and moves the item to order
// processing with the winning supplier and price.
func (s *Service) RegisterQuote(ctx context.Context, itemID string, quotes []Quote, winner int) (ProcurementQueueItem, error) {
	if len(quotes) == 0 {
		return ProcurementQueueItem{}, fmt.Errorf("%w: at least one quote required", ErrValidation)
	}
	if winner < 0 || winner >= len(quotes) {
		return ProcurementQueueItem{}, fmt.Errorf("%w: winner index %d out of range", ErrValidation, winner)
	}
	for i, q := range quotes {
		if strings.TrimSpace(q.Supplier) == "" || q.UnitPrice <= 0 {
			return ProcurementQueueItem{}, fmt.Errorf("%w: quote %d needs supplier and price", ErrValidation, i+1)
		}
	}
	best := quotes[winner]
	var updated ProcurementQueueItem
	err := s.mutate(ctx, func(st *State) ([]TransitionEvent, error) {
		idx := st.queueItemIndex(itemID)
		if idx < 0 {
			return nil, fmt.Errorf("queue item %s: %w", itemID, ErrNotFound)
		}
		item := &st.QueueItems[idx]
		from := item.Status
		if from == QueueAwaitingQuote {
			// Registering quotes implies the quotation was opened.
			from = QueueQuoting
		}
		if !CanTransitionQueue(from, QueueProcessingOrder) {
			return nil, fmt.Errorf("queue item %s %s -> %s: %w", itemID, item.Status, QueueProcessingOrder, ErrInvalidState)
		}
		original := item.Status
		price := best.UnitPrice
		item.Supplier = best.Supplier
		item.NegotiatedPrice = &price
		item.Status = QueueProcessingOrder
		updated = cloneQueueItem(*item)
		return []TransitionEvent{s.event(EntityQueueItem, itemID, "quote", string(original), string(QueueProcessingOrder))}, nil
	})
	return updated, err
}

// Reset empties every collection and removes the persisted blob.
func (s *Service) Reset(ctx context.Context) error {
	s.ensureOpen()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("procurement: delete snapshot: %w", err)
	}
	s.state = emptyState()
	if s.audit != nil {
		if err := s.audit.Clear(ctx); err != nil {
			return fmt.Errorf("procurement: clear audit trail: %w", err)
		}
	}
	s.logger.Info("state reset", slog.String("key", s.key))
	return nil
}

// Snapshot returns a copy of every collection.
func (s *Service) Snapshot() State {
	s.ensureOpen()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Forecasts returns the cash forecasts in insertion order.
func (s *Service) Forecasts() []CashForecast {
	return s.Snapshot().Forecasts
}

// Requisitions returns requisitions, most recent first.
func (s *Service) Requisitions() []Requisition {
	return s.Snapshot().Requisitions
}

// QueueItems returns the procurement queue in append order.
func (s *Service) QueueItems() []ProcurementQueueItem {
	return s.Snapshot().QueueItems
}

// Requisition looks up a requisition by id.
func (s *Service) Requisition(id string) (Requisition, error) {
	s.ensureOpen()
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.state.requisitionIndex(id)
	if idx < 0 {
		return Requisition{}, fmt.Errorf("requisition %s: %w", id, ErrNotFound)
	}
	return cloneRequisition(s.state.Requisitions[idx]), nil
}

// QueueItem looks up a queue item by id.
func (s *Service) QueueItem(id string) (ProcurementQueueItem, error) {
	s.ensureOpen()
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.state.queueItemIndex(id)
	if idx < 0 {
		return ProcurementQueueItem{}, fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	return cloneQueueItem(s.state.QueueItems[idx]), nil
}

// QueueItemsFor returns the queue items spawned by a requisition.
func (s *Service) QueueItemsFor(requisitionID string) []ProcurementQueueItem {
	s.ensureOpen()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return itemsFor(s.state.QueueItems, requisitionID)
}

func itemsFor(items []ProcurementQueueItem, requisitionID string) []ProcurementQueueItem {
	out := []ProcurementQueueItem{}
	for _, item := range items {
		if item.RequisitionID == requisitionID {
			out = append(out, cloneQueueItem(item))
		}
	}
	return out
}

// GlobalAvailability sums every forecast amount.
func (s *Service) GlobalAvailability() float64 {
	s.ensureOpen()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return GlobalAvailability(s.state.Forecasts)
}

// Dashboard computes the executive dashboard figures.
func (s *Service) Dashboard() Dashboard {
	return BuildDashboard(s.Snapshot())
}

// QueueKPIs computes the procurement queue counters.
func (s *Service) QueueKPIs() QueueKPIs {
	return BuildQueueKPIs(s.QueueItems())
}

// ApprovalPreview drafts the approval matrix of a requisition without mutating state.
func (s *Service) ApprovalPreview(id string, approved map[string]float64) ([]ProcurementQueueItem, ApprovalSummary, error) {
	st := s.Snapshot()
	idx := st.requisitionIndex(id)
	if idx < 0 {
		return nil, ApprovalSummary{}, fmt.Errorf("requisition %s: %w", id, ErrNotFound)
	}
	return BuildApproval(st.Requisitions[idx], approved, GlobalAvailability(st.Forecasts))
}
