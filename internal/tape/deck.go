package tape

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tapedeck/tapedeck/internal/observability"
)

// Deck tracks which tape is currently inserted. The active tape reference is
// read atomically by every concurrent exchange, while insert and eject are
// serialized against each other. It implements the dispatcher's Recorder
// collaborator.
type Deck struct {
	store  Store
	logger observability.Logger

	// swapMu serializes Insert/Eject; active is read lock-free.
	swapMu sync.Mutex
	active atomic.Pointer[MemoryTape]
}

// DeckOption is a functional option for configuring the deck.
type DeckOption func(*Deck)

// WithDeckLogger sets the logger for the deck.
func WithDeckLogger(logger observability.Logger) DeckOption {
	return func(d *Deck) {
		d.logger = logger
	}
}

// NewDeck creates a deck backed by the given store.
func NewDeck(store Store, opts ...DeckOption) *Deck {
	d := &Deck{
		store:  store,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ActiveTape returns the inserted tape, or nil when the deck is empty.
func (d *Deck) ActiveTape() Tape {
	t := d.active.Load()
	if t == nil {
		return nil
	}
	return t
}

// Insert loads the named tape from the store and makes it active. A tape
// absent from the store starts empty. Any previously inserted tape is
// ejected (and persisted) first.
func (d *Deck) Insert(ctx context.Context, name string, readOnly bool) error {
	if !validName(name) {
		return ErrInvalidTapeName
	}

	d.swapMu.Lock()
	defer d.swapMu.Unlock()

	if err := d.ejectLocked(ctx); err != nil {
		return err
	}

	interactions, err := d.store.Load(ctx, name)
	if err != nil && !errors.Is(err, ErrTapeNotFound) {
		return err
	}

	t := NewMemoryTape(name, interactions, readOnly)
	d.active.Store(t)

	d.logger.Info("tape inserted",
		observability.String("tape", name),
		observability.Int("interactions", len(interactions)),
		observability.Bool("read_only", readOnly),
	)
	return nil
}

// Eject removes the active tape, persisting unsaved recordings. Ejecting an
// empty deck returns ErrNoActiveTape.
func (d *Deck) Eject(ctx context.Context) error {
	d.swapMu.Lock()
	defer d.swapMu.Unlock()

	if d.active.Load() == nil {
		return ErrNoActiveTape
	}
	return d.ejectLocked(ctx)
}

// ejectLocked persists and clears the active tape. Caller holds swapMu.
func (d *Deck) ejectLocked(ctx context.Context) error {
	t := d.active.Load()
	if t == nil {
		return nil
	}

	if t.Dirty() && !t.ReadOnly() {
		if err := d.store.Save(ctx, t.Name(), t.Interactions()); err != nil {
			return err
		}
		t.markClean()
	}

	d.active.Store(nil)
	d.logger.Info("tape ejected", observability.String("tape", t.Name()))
	return nil
}

// Status describes the deck state for the control API.
type Status struct {
	Inserted     bool   `json:"inserted"`
	Tape         string `json:"tape,omitempty"`
	ReadOnly     bool   `json:"readOnly,omitempty"`
	Interactions int    `json:"interactions,omitempty"`
}

// Status returns the current deck state.
func (d *Deck) Status() Status {
	t := d.active.Load()
	if t == nil {
		return Status{}
	}
	return Status{
		Inserted:     true,
		Tape:         t.Name(),
		ReadOnly:     t.ReadOnly(),
		Interactions: len(t.Interactions()),
	}
}
