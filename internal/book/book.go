package book

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"vidar/internal/common"
)

// Entry pairs a resting order with its arrival priority. Priorities are
// strictly increasing across the whole Set, so within one price level
// ascending priority is arrival order.
type Entry struct {
	Order    *common.Order
	Priority uint64
}

// PriceLevel is the FIFO of entries resting at one price. Entries are
// appended on insert and consumed from the front on match.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*Entry
}

// remaining sums the open quantity resting at the level.
func (l *PriceLevel) remaining() decimal.Decimal {
	total := decimal.Zero
	for _, e := range l.Orders {
		total = total.Add(e.Order.RemainingQuantity)
	}
	return total
}

type PriceLevels = btree.BTreeG[*PriceLevel]

// Book is one symbol's two-sided order book. The mutex serializes every
// mutation and every matching walk on the symbol; it is held for the
// entire duration of one order's processing.
type Book struct {
	mu     sync.Mutex
	symbol string

	// Price levels with orders resting on them, sorted by price; within
	// a level orders keep their arrival order. Bids sort greatest first,
	// asks least first, so Min() is always the best level for matching.
	bids *PriceLevels
	asks *PriceLevels

	lastUpdate time.Time
}

func newBook(symbol string) *Book {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})
	return &Book{
		symbol: symbol,
		bids:   bids,
		asks:   asks,
	}
}

func (b *Book) levels(side common.Side) *PriceLevels {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// locator records where a resting order sits so cancellation does not
// have to search the book.
type locator struct {
	symbol string
	price  decimal.Decimal
	side   common.Side
}

// Set is the collection of per-symbol books together with the order
// locator index and the priority counter they share. Every resting
// order is discoverable via the index exactly once; removal from a book
// and from the index happen in the same logical step, under the
// symbol's book lock.
type Set struct {
	booksMu sync.RWMutex
	books   map[string]*Book

	indexMu sync.RWMutex
	index   map[uuid.UUID]locator

	// Process-wide strictly increasing priority. Only ever compared
	// within one (symbol, side, price) FIFO.
	priorityMu   sync.Mutex
	nextPriority uint64
}

func NewSet() *Set {
	return &Set{
		books: make(map[string]*Book),
		index: make(map[uuid.UUID]locator),
	}
}

// book returns the symbol's book, creating it on first use.
func (s *Set) book(symbol string) *Book {
	s.booksMu.RLock()
	b, ok := s.books[symbol]
	s.booksMu.RUnlock()
	if ok {
		return b
	}

	s.booksMu.Lock()
	defer s.booksMu.Unlock()
	if b, ok = s.books[symbol]; !ok {
		b = newBook(symbol)
		s.books[symbol] = b
	}
	return b
}

func (s *Set) claimPriority() uint64 {
	s.priorityMu.Lock()
	defer s.priorityMu.Unlock()
	s.nextPriority++
	return s.nextPriority
}

// insertLocked appends the order to its price level FIFO and indexes
// it. Caller holds the book lock and guarantees a limit price.
func (s *Set) insertLocked(b *Book, order *common.Order) {
	entry := &Entry{Order: order, Priority: s.claimPriority()}
	price := *order.Price

	levels := b.levels(order.Side)
	level, ok := levels.GetMut(&PriceLevel{Price: price})
	if ok {
		level.Orders = append(level.Orders, entry)
	} else {
		levels.Set(&PriceLevel{
			Price:  price,
			Orders: []*Entry{entry},
		})
	}

	s.indexMu.Lock()
	s.index[order.ID] = locator{symbol: order.Symbol, price: price, side: order.Side}
	s.indexMu.Unlock()

	b.lastUpdate = order.Timestamp
}

// dropIndexLocked removes the order's locator. Caller holds the book
// lock of the order's symbol.
func (s *Set) dropIndexLocked(orderID uuid.UUID) {
	s.indexMu.Lock()
	delete(s.index, orderID)
	s.indexMu.Unlock()
}

// Remove cancels a resting order out of the book. Returns the removed
// order, or nil if the id is not resting (unknown, already filled, or
// already cancelled). Empty price levels are pruned in the same step so
// best-price peeks never observe an empty level.
func (s *Set) Remove(orderID uuid.UUID) *common.Order {
	s.indexMu.RLock()
	loc, ok := s.index[orderID]
	s.indexMu.RUnlock()
	if !ok {
		return nil
	}

	b := s.book(loc.symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	// Re-check under the book lock: a concurrent fill may have consumed
	// the order between the index read and here.
	s.indexMu.RLock()
	loc, ok = s.index[orderID]
	s.indexMu.RUnlock()
	if !ok {
		return nil
	}

	levels := b.levels(loc.side)
	level, found := levels.GetMut(&PriceLevel{Price: loc.price})
	if !found {
		return nil
	}

	var removed *common.Order
	kept := level.Orders[:0]
	for _, e := range level.Orders {
		if e.Order.ID == orderID {
			removed = e.Order
			continue
		}
		kept = append(kept, e)
	}
	if removed == nil {
		return nil
	}
	level.Orders = kept
	if len(level.Orders) == 0 {
		levels.Delete(level)
	}

	s.dropIndexLocked(orderID)
	b.lastUpdate = time.Now()
	return removed
}

// BestBid returns the highest resting bid price for the symbol.
func (s *Set) BestBid(symbol string) (decimal.Decimal, bool) {
	return s.best(symbol, common.Buy)
}

// BestAsk returns the lowest resting ask price for the symbol.
func (s *Set) BestAsk(symbol string) (decimal.Decimal, bool) {
	return s.best(symbol, common.Sell)
}

func (s *Set) best(symbol string, side common.Side) (decimal.Decimal, bool) {
	b := s.book(symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	level, ok := b.levels(side).Min()
	if !ok {
		return decimal.Zero, false
	}
	return level.Price, true
}

// BestQuote returns the best resting price an order of the given side
// would execute against (buy orders lift the best ask, sell orders hit
// the best bid). Used by the risk gate as a market-order reference
// price.
func (s *Set) BestQuote(symbol string, side common.Side) (decimal.Decimal, bool) {
	return s.best(symbol, side.Opposite())
}

// Snapshot returns the aggregated depth of the symbol's book, bids
// descending and asks ascending.
func (s *Set) Snapshot(symbol string) common.BookSnapshot {
	b := s.book(symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	collect := func(levels *PriceLevels) []common.PriceLevelSnapshot {
		out := make([]common.PriceLevelSnapshot, 0, levels.Len())
		levels.Scan(func(level *PriceLevel) bool {
			out = append(out, common.PriceLevelSnapshot{
				Price:      level.Price,
				Quantity:   level.remaining(),
				OrderCount: len(level.Orders),
			})
			return true
		})
		return out
	}

	return common.BookSnapshot{
		Symbol:     symbol,
		Bids:       collect(b.bids),
		Asks:       collect(b.asks),
		LastUpdate: b.lastUpdate,
	}
}

// View runs fn while holding the symbol's book lock. Readers use it to
// copy order state without observing a half-applied fill.
func (s *Set) View(symbol string, fn func()) {
	b := s.book(symbol)
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

// RestingCount reports how many orders rest on the symbol's book.
func (s *Set) RestingCount(symbol string) int {
	b := s.book(symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	count := func(level *PriceLevel) bool {
		n += len(level.Orders)
		return true
	}
	b.bids.Scan(count)
	b.asks.Scan(count)
	return n
}
