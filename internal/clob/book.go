// book.go - The order book: open swap notes grouped by pair tag.

package clob

import (
	"errors"
	"fmt"
	"sync"

	"noteswap/internal/note"
)

// Book failures.
var (
	ErrDuplicateOrder = errors.New("clob: order already on the book")
	ErrUnknownOrder   = errors.New("clob: order not on the book")
)

// Match is a pair of mirrored orders ready to settle in one transaction.
type Match struct {
	Bid *Order
	Ask *Order
}

// Book holds every order the matcher has accepted, open or otherwise.
type Book struct {
	mu     sync.Mutex
	orders map[note.NoteID]*Order
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{orders: make(map[note.NoteID]*Order)}
}

// Add puts an open order on the book.
func (b *Book) Add(o *Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.orders[o.ID()]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID())
	}
	b.orders[o.ID()] = o
	return nil
}

// Get returns an order by id.
func (b *Book) Get(id note.NoteID) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	return o, nil
}

// Open lists orders still awaiting a counterpart.
func (b *Book) Open() []*Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Order
	for _, o := range b.orders {
		if o.state == StateOpen {
			out = append(out, o)
		}
	}
	return out
}

// MatchOne finds one pair of mirrored open orders and marks both matched.
// Returns nil when nothing crosses.
func (b *Book) MatchOne() *Match {
	b.mu.Lock()
	defer b.mu.Unlock()
	var open []*Order
	for _, o := range b.orders {
		if o.state == StateOpen {
			open = append(open, o)
		}
	}
	for i, a := range open {
		for _, c := range open[i+1:] {
			if !a.counterpart(c) {
				continue
			}
			// advance cannot fail from StateOpen under b.mu.
			a.advance(StateMatched)
			c.advance(StateMatched)
			return &Match{Bid: a, Ask: c}
		}
	}
	return nil
}
