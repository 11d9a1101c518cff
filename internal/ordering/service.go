// Package ordering drives the ordering screen of one room: it keeps the
// edited and original selection of every visited date, gates edits by the
// meal-period cutoffs and submits the resulting change-set.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"residence-dining/internal/cutoff"
	"residence-dining/internal/dining"
	"residence-dining/internal/metrics"
	"residence-dining/internal/order"
)

var (
	ErrPeriodClosed     = errors.New("meal period is closed for changes")
	ErrNothingToSubmit  = errors.New("no changes to submit")
	ErrSubmitInProgress = errors.New("a submission is already in progress")
	ErrNotOpened        = errors.New("date has not been opened")
)

// API is the part of the dining client the service needs.
type API interface {
	FetchMenu(ctx context.Context, roomID int, date string) (*order.MealSnapshot, error)
	SubmitOrders(ctx context.Context, currentDate string, roomID int, orders []order.DateOrder) (*dining.SubmitResult, error)
}

// Recorder stores the outcome of each submission.
type Recorder interface {
	Record(ctx context.Context, m metrics.Submission) error
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRecorder logs every submission attempt to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service holds the selections of one room. It is safe for concurrent use.
type Service struct {
	api      API
	gate     *cutoff.Gate
	maxQty   int
	roomID   int
	now      func() time.Time
	recorder Recorder

	mu       sync.Mutex
	updated  map[string]*order.MealSelection
	original map[string]*order.MealSelection

	submitting atomic.Bool
}

// NewService creates a Service for roomID.
func NewService(api API, gate *cutoff.Gate, maxQty, roomID int, opts ...Option) *Service {
	s := &Service{
		api:      api,
		gate:     gate,
		maxQty:   maxQty,
		roomID:   roomID,
		now:      time.Now,
		updated:  make(map[string]*order.MealSelection),
		original: make(map[string]*order.MealSelection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RoomID returns the room the service orders for.
func (s *Service) RoomID() int {
	return s.roomID
}

// Open returns the selection for date. The first visit fetches the snapshot
// and seeds both the edited and the original selection; later visits return
// the edited selection as it is. The returned value is a copy.
func (s *Service) Open(ctx context.Context, date string) (*order.MealSelection, error) {
	if _, err := s.gate.State(order.Breakfast, date, s.now()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if sel, ok := s.updated[date]; ok {
		defer s.mu.Unlock()
		return sel.Clone(), nil
	}
	s.mu.Unlock()

	snap, err := s.api.FetchMenu(ctx, s.roomID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch menu for %s: %w", date, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another caller may have seeded the date while the fetch was running.
	if sel, ok := s.updated[date]; ok {
		return sel.Clone(), nil
	}
	s.original[date] = order.NewSelection(snap)
	s.updated[date] = order.NewSelection(snap)
	return s.updated[date].Clone(), nil
}

// Dates returns the opened dates in ascending order.
func (s *Service) Dates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	dates := make([]string, 0, len(s.updated))
	for d := range s.updated {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// States returns the cutoff state of every meal period on date.
func (s *Service) States(date string) (map[order.MealPeriod]cutoff.State, error) {
	return s.gate.States(date, s.now())
}

// SetQuantity changes an item's quantity on an opened date.
func (s *Service) SetQuantity(date string, k order.Key, qty int) error {
	return s.edit(date, k, func(sel *order.MealSelection) error {
		return sel.SetQuantity(k, qty, s.maxQty)
	})
}

// SelectOption picks the single option of an item.
func (s *Service) SelectOption(date string, k order.Key, optionID int) error {
	return s.edit(date, k, func(sel *order.MealSelection) error {
		return sel.SelectOption(k, optionID)
	})
}

// Resolve maps a bare item id (order id 0) to the key the item carries on
// date, so an item stays addressable after its order row was back-filled.
// Keys with an order id are returned unchanged.
func (s *Service) Resolve(date string, k order.Key) (order.Key, error) {
	if k.OrderID != 0 {
		return k, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, ok := s.updated[date]
	if !ok {
		return k, fmt.Errorf("%w: %s", ErrNotOpened, date)
	}
	if _, err := sel.Item(k); err == nil {
		return k, nil
	}
	it, err := sel.Find(k.ItemID)
	if err != nil {
		return k, err
	}
	return it.Key(), nil
}

// TogglePreference flips one preference of an item.
func (s *Service) TogglePreference(date string, k order.Key, prefID int) error {
	return s.edit(date, k, func(sel *order.MealSelection) error {
		return sel.TogglePreference(k, prefID)
	})
}

func (s *Service) edit(date string, k order.Key, apply func(*order.MealSelection) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, ok := s.updated[date]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOpened, date)
	}
	it, err := sel.Item(k)
	if err != nil {
		return err
	}
	state, err := s.gate.State(it.Period, date, s.now())
	if err != nil {
		return err
	}
	if state != cutoff.Editable {
		return fmt.Errorf("%w: %s on %s is %s", ErrPeriodClosed, it.Period, date, state)
	}
	return apply(sel)
}

// Pending returns the change-set that Submit would send now.
func (s *Service) Pending() []order.DateOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	gated := s.gatedLocked(s.now())
	return order.BuildChangeSet(gated, s.original, s.roomID)
}

// gatedLocked returns copies of the edited selections in which every period
// that is no longer editable carries its original items, so changes there
// are never submitted.
func (s *Service) gatedLocked(now time.Time) map[string]*order.MealSelection {
	out := make(map[string]*order.MealSelection, len(s.updated))
	for date, upd := range s.updated {
		sel := upd.Clone()
		orig := s.original[date]

		var closed []order.MealPeriod
		for _, p := range order.Periods {
			if !s.gate.Editable(p, date, now) {
				closed = append(closed, p)
			}
		}
		if len(closed) > 0 && orig != nil {
			isClosed := func(p order.MealPeriod) bool {
				for _, c := range closed {
					if c == p {
						return true
					}
				}
				return false
			}
			items := make([]order.LineItem, 0, len(sel.Items))
			for _, it := range sel.Items {
				if !isClosed(it.Period) {
					items = append(items, it)
				}
			}
			restored := orig.Clone()
			for _, it := range restored.Items {
				if isClosed(it.Period) {
					items = append(items, it)
				}
			}
			sel.Items = items
		}
		out[date] = sel
	}
	return out
}

// Submit sends the pending change-set. Only one submission may be in flight.
// On success the returned order ids are back-filled and the submitted state
// becomes the new original for each submitted date. On failure local edits
// are kept and the originals are untouched.
func (s *Service) Submit(ctx context.Context) (*dining.SubmitResult, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmitInProgress
	}
	defer s.submitting.Store(false)

	now := s.now()
	s.mu.Lock()
	gated := s.gatedLocked(now)
	orders := order.BuildChangeSet(gated, s.original, s.roomID)
	s.mu.Unlock()

	if len(orders) == 0 {
		return nil, ErrNothingToSubmit
	}

	items := 0
	for _, o := range orders {
		items += len(o.Items)
	}
	currentDate := s.gate.Today(now)

	start := time.Now()
	res, err := s.api.SubmitOrders(ctx, currentDate, s.roomID, orders)
	entry := metrics.Submission{
		RoomID:      s.roomID,
		CurrentDate: currentDate,
		Dates:       len(orders),
		Items:       items,
		Latency:     time.Since(start),
		Err:         err,
	}
	if res != nil {
		entry.RequestID = res.RequestID
	} else {
		entry.RequestID = dining.RequestID(err)
	}
	s.record(ctx, entry)

	if err != nil {
		log.Printf("Submission for room %d failed: %v", s.roomID, err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	order.BackFill(gated, orders, res.ItemIDs, res.OrderIDs)
	order.BackFill(s.updated, orders, res.ItemIDs, res.OrderIDs)
	for _, o := range orders {
		s.original[o.Date] = gated[o.Date]
	}
	log.Printf("Submitted %d item changes over %d dates for room %d", items, len(orders), s.roomID)
	return res, nil
}

func (s *Service) record(ctx context.Context, m metrics.Submission) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(context.WithoutCancel(ctx), m); err != nil {
		log.Printf("Warning: failed to record submission: %v", err)
	}
}
