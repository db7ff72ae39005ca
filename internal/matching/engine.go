// Package matching maintains per-instrument, per-side price-ordered order
// books, applies transaction commands sequentially, and matches resting
// orders against incoming market ticks.
package matching

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"exchange/internal/domain"
)

const (
	defaultQueueSize = 1024
	tradePushTimeout = 5 * time.Second
)

// resting tracks where a transaction currently lives.
type resting struct {
	resp  domain.TradeResponse
	isBuy bool
}

// Engine applies transaction commands strictly in submission order through
// a single worker goroutine, while price ticks are matched concurrently
// under per-instrument locks. Ticks for different instruments proceed in
// parallel; two ticks for the same instrument never race.
type Engine struct {
	log    *logrus.Entry
	trades domain.TradeService

	commands chan domain.TransactionCommand
	stopOnce sync.Once
	done     chan struct{}

	mu    sync.RWMutex // guards buy, sell, index
	buy   map[string]*sideBook
	sell  map[string]*sideBook
	index map[int64]resting // lookup + de-dup set; keys are resting tx ids

	locks sync.Map // instrumentID -> *sync.Mutex

	wg sync.WaitGroup // in-flight price updates and trade pushes
}

var _ domain.OrderMatchingPort = (*Engine)(nil)

// NewEngine starts the command worker and returns a ready engine.
func NewEngine(trades domain.TradeService, logger *logrus.Logger, queueSize int) *Engine {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	e := &Engine{
		log:      logger.WithField("component", "matching_engine"),
		trades:   trades,
		commands: make(chan domain.TransactionCommand, queueSize),
		done:     make(chan struct{}),
		buy:      make(map[string]*sideBook),
		sell:     make(map[string]*sideBook),
		index:    make(map[int64]resting),
	}
	go e.runCommandWorker()
	return e
}

// Stop drains the command queue and waits for in-flight work.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.commands)
	})
	<-e.done
	e.wg.Wait()
}

// ExecuteTransaction enqueues the command into the single-consumer FIFO.
// Commands are applied exactly one at a time, in submission order.
func (e *Engine) ExecuteTransaction(cmd domain.TransactionCommand) {
	e.commands <- cmd
}

// OnPriceUpdate dispatches a tick for asynchronous matching. Zero-priced
// ticks are keepalive noise and ignored.
func (e *Engine) OnPriceUpdate(instrumentID string, quote domain.MarketQuote) {
	if quote.LatestTradedPrice == 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.processPriceUpdate(instrumentID, quote)
	}()
}

// UpdateOrderPrice amends a resting order's asked price copy-on-write: the
// old entry is removed and an amended copy inserted under the instrument's
// lock. priceWhenUpdated becomes the new placement snapshot. Returns false
// when the transaction is not resting in any book.
func (e *Engine) UpdateOrderPrice(transactionID int64, newPrice, priceWhenUpdated float64) bool {
	e.mu.RLock()
	r, ok := e.index[transactionID]
	e.mu.RUnlock()
	if !ok {
		return false
	}

	lock := e.instrumentLock(r.resp.InstrumentID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok = e.index[transactionID]
	if !ok {
		return false
	}
	book := e.bookLocked(r.resp.InstrumentID, r.isBuy)
	if book == nil || !book.contains(keyFor(r.resp)) {
		return false
	}

	book.remove(keyFor(r.resp))
	amended := r.resp
	amended.Request = amended.Request.WithAskedPrice(newPrice)
	amended.PriceWhenOrderPlaced = priceWhenUpdated
	book.insert(amended)
	e.index[transactionID] = resting{resp: amended, isBuy: r.isBuy}

	e.log.WithField("transaction_id", transactionID).
		WithField("asked_price", newPrice).
		Debug("order price amended")
	return true
}

func (e *Engine) runCommandWorker() {
	defer close(e.done)
	for cmd := range e.commands {
		e.apply(cmd)
	}
}

func (e *Engine) apply(cmd domain.TransactionCommand) {
	switch c := cmd.(type) {
	case domain.PlaceBuy:
		e.admit(c.Response, true)
	case domain.PlaceSell:
		e.admit(c.Response, false)
	case domain.UpdateStatus:
		e.pushUpdate(domain.TransactionUpdateRecord{
			ID:     c.TransactionID,
			Price:  c.Price,
			Status: c.Status,
		})
	default:
		e.log.Warnf("unhandled transaction command %T", cmd)
	}
}

// admit validates the request against its category's rules, places it, and
// runs the category's post-processing hook. Validation failure drops the
// order: a local, non-fatal error.
func (e *Engine) admit(resp domain.TradeResponse, isBuy bool) {
	rule, err := ruleFor(resp.Request.OrderCategory)
	if err != nil {
		e.log.WithField("transaction_id", resp.TransactionID).Warnf("order dropped: %v", err)
		return
	}
	if err := rule.validate(resp.Request); err != nil {
		e.log.WithField("transaction_id", resp.TransactionID).Warnf("order dropped: %v", err)
		return
	}

	e.place(resp, isBuy)

	if rule.postProcess != nil {
		rule.postProcess(e, resp)
	}
}

func (e *Engine) placeBuyOrder(resp domain.TradeResponse)  { e.place(resp, true) }
func (e *Engine) placeSellOrder(resp domain.TradeResponse) { e.place(resp, false) }

// place inserts the order into the instrument's side book. A transaction id
// already tracked is a silent no-op, making re-submission idempotent.
func (e *Engine) place(resp domain.TradeResponse, isBuy bool) {
	lock := e.instrumentLock(resp.InstrumentID)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.index[resp.TransactionID]; exists {
		return
	}

	books := e.buy
	if !isBuy {
		books = e.sell
	}
	book, ok := books[resp.InstrumentID]
	if !ok {
		book = newSideBook(isBuy)
		books[resp.InstrumentID] = book
	}
	book.insert(resp)
	e.index[resp.TransactionID] = resting{resp: resp, isBuy: isBuy}

	side := "sell"
	if isBuy {
		side = "buy"
	}
	e.log.WithField("instrument_id", resp.InstrumentID).
		WithField("transaction_id", resp.TransactionID).
		Debugf("placed %s order", side)
}

// processPriceUpdate scans both sides of the instrument's book under its
// exclusive lock. Completed fills are pushed downstream asynchronously.
func (e *Engine) processPriceUpdate(instrumentID string, quote domain.MarketQuote) {
	lock := e.instrumentLock(instrumentID)
	lock.Lock()
	records := append(
		e.matchSide(instrumentID, true, quote),
		e.matchSide(instrumentID, false, quote)...,
	)
	lock.Unlock()

	for _, record := range records {
		e.wg.Add(1)
		go func(rec domain.TransactionUpdateRecord) {
			defer e.wg.Done()
			e.pushUpdate(rec)
		}(record)
	}
}

// matchSide walks one side of the book best-price-first, completing every
// order whose category fill predicate crosses. The whole side is scanned:
// fill eligibility is not monotonic along the sort order for every
// category, so a non-matching order must never shadow a fillable one
// resting behind it.
func (e *Engine) matchSide(instrumentID string, isBuy bool, quote domain.MarketQuote) []domain.TransactionUpdateRecord {
	e.mu.RLock()
	book := e.bookLocked(instrumentID, isBuy)
	e.mu.RUnlock()
	if book == nil || book.len() == 0 {
		return nil
	}

	price := quote.CrossingPrice(isBuy)
	var records []domain.TransactionUpdateRecord

	filled := book.scan(func(resp domain.TradeResponse) bool {
		rule, err := ruleFor(resp.Request.OrderCategory)
		if err != nil {
			return false
		}
		if !rule.shouldFill(resp.Request, resp.PriceWhenOrderPlaced, price, isBuy) {
			return false
		}
		records = append(records, domain.TransactionUpdateRecord{
			ID:     resp.TransactionID,
			Price:  price,
			Status: domain.StatusCompleted,
		})
		return true
	})

	if len(filled) > 0 {
		e.mu.Lock()
		for _, rec := range records {
			delete(e.index, rec.ID)
		}
		e.mu.Unlock()
	}
	return records
}

// pushUpdate notifies the downstream trade service. Fire-and-forget:
// failures are logged, never propagated.
func (e *Engine) pushUpdate(record domain.TransactionUpdateRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), tradePushTimeout)
	defer cancel()
	if err := e.trades.UpdateTradeTransaction(ctx, record); err != nil {
		e.log.WithField("transaction_id", record.ID).Errorf("trade service push failed: %v", err)
		return
	}
	e.log.WithField("transaction_id", record.ID).
		WithField("status", string(record.Status)).
		Debug("transaction update pushed")
}

// bookLocked returns the instrument's side book, or nil when none exists.
// The caller must hold e.mu.
func (e *Engine) bookLocked(instrumentID string, isBuy bool) *sideBook {
	books := e.buy
	if !isBuy {
		books = e.sell
	}
	return books[instrumentID]
}

// restingCount reports how many transactions are currently tracked.
func (e *Engine) restingCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.index)
}

func (e *Engine) instrumentLock(instrumentID string) *sync.Mutex {
	actual, _ := e.locks.LoadOrStore(instrumentID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
