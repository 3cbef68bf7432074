package book

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/swapbook/pkg/asset"
	"github.com/uhyunpark/swapbook/pkg/util"
)

// Fee rates are fixed numerator/denominator constants, not per-call
// parameters. Fees are taken off the top with truncating division, so
// fee + payout always reconstructs the original amount exactly.
const (
	FeeDenominator     = 10000
	DefaultMakerFeeBps = 150 // 1.5% on the requested leg
	DefaultTakerFeeBps = 80  // 0.8% on the offered leg

	// MaxOrderAmount bounds both legs of an order so the fee products
	// stay within int64 for any rate up to FeeDenominator.
	MaxOrderAmount = math.MaxInt64 / FeeDenominator
)

// Config carries the engine's fixed parameters.
type Config struct {
	MakerFeeBps int64
	TakerFeeBps int64

	// Admin may change the fee recipient; nobody else.
	Admin common.Address

	// FeeRecipient receives both fee legs of every settlement.
	FeeRecipient common.Address

	// Custody is the collaborator's escrow account identity; used to
	// reject it as a fee recipient.
	Custody common.Address
}

// DefaultConfig returns a config with the standard fee pair
func DefaultConfig() Config {
	return Config{
		MakerFeeBps: DefaultMakerFeeBps,
		TakerFeeBps: DefaultTakerFeeBps,
	}
}

// Engine owns the open-order book and its three state transitions.
//
// Mutating operations are strictly serialized: an atomic in-flight gate is
// taken before the store lock, so a transfer callback that re-enters the
// engine fails with ErrReentrantCall instead of deadlocking, and a second
// concurrent mutating call fails the same way rather than observing
// half-applied state. Reads run under the read lock and never see a
// mid-swap-remove store.
type Engine struct {
	mu       sync.RWMutex
	inFlight atomic.Bool

	store    *Store
	transfer AssetTransfer
	registry *asset.Registry

	seq          uint64
	makerFeeBps  int64
	takerFeeBps  int64
	admin        common.Address
	feeRecipient common.Address
	custody      common.Address

	// Journal, when set, persists orders/trades and the seq counter.
	Journal *Journal

	// OnEvent receives every notification synchronously, in commit order.
	OnEvent func(Event)

	Logger *zap.SugaredLogger
	Clock  util.Clock
}

// NewEngine builds an engine over the given custody collaborator and
// recognized-asset registry.
func NewEngine(transfer AssetTransfer, registry *asset.Registry, cfg Config) *Engine {
	if cfg.MakerFeeBps == 0 && cfg.TakerFeeBps == 0 {
		cfg.MakerFeeBps = DefaultMakerFeeBps
		cfg.TakerFeeBps = DefaultTakerFeeBps
	}
	// Rates outside [0, FeeDenominator] are config errors; fall back.
	if cfg.MakerFeeBps < 0 || cfg.MakerFeeBps > FeeDenominator {
		cfg.MakerFeeBps = DefaultMakerFeeBps
	}
	if cfg.TakerFeeBps < 0 || cfg.TakerFeeBps > FeeDenominator {
		cfg.TakerFeeBps = DefaultTakerFeeBps
	}
	return &Engine{
		store:        NewStore(),
		transfer:     transfer,
		registry:     registry,
		makerFeeBps:  cfg.MakerFeeBps,
		takerFeeBps:  cfg.TakerFeeBps,
		admin:        cfg.Admin,
		feeRecipient: cfg.FeeRecipient,
		custody:      cfg.Custody,
		Clock:        util.RealClock{},
	}
}

// Restore rebuilds the in-memory store and seq counter from the journal.
// Call once at startup, before serving.
func (e *Engine) Restore() error {
	if e.Journal == nil {
		return nil
	}

	orders, err := e.Journal.LoadOrders()
	if err != nil {
		return fmt.Errorf("failed to load orders: %w", err)
	}
	seq, err := e.Journal.LoadSeq()
	if err != nil {
		return fmt.Errorf("failed to load seq: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range orders {
		e.store.Insert(o)
	}
	e.seq = seq

	if e.Logger != nil {
		e.Logger.Infow("book_restored", "open_orders", len(orders), "seq", seq)
	}
	return nil
}

// begin takes the in-flight gate, then the write lock. The gate comes
// first so a reentrant call sees it set and fails instead of blocking on
// the lock it can never acquire.
func (e *Engine) begin() error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	e.mu.Lock()
	return nil
}

func (e *Engine) end() {
	e.mu.Unlock()
	e.inFlight.Store(false)
}

func (e *Engine) emit(ev Event) {
	if e.OnEvent != nil {
		e.OnEvent(ev)
	}
}

// CreateOrder escrows offeredAmount of offeredAsset from maker and opens
// an order asking requestedAmount of requestedAsset in return. The
// deposit pull and the insertion are one unit: a failed pull records no
// order, and the order id is announced only through the OrderCreated
// notification.
func (e *Engine) CreateOrder(maker common.Address, offeredAsset string, offeredAmount int64, requestedAsset string, requestedAmount int64) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	// All preconditions before any fund movement.
	if maker == (common.Address{}) {
		return fmt.Errorf("%w: zero maker", ErrInvalidInput)
	}
	if offeredAsset == requestedAsset {
		return fmt.Errorf("%w: offered and requested asset are both %s", ErrInvalidInput, offeredAsset)
	}
	a, err := e.registry.Get(offeredAsset)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !a.Accepts(offeredAmount) {
		return fmt.Errorf("%w: %d %s below minimum %d or asset delisted", ErrInvalidInput, offeredAmount, offeredAsset, a.MinOrderAmount)
	}
	if requestedAmount <= 0 {
		return fmt.Errorf("%w: requested amount must be positive, got %d", ErrInvalidInput, requestedAmount)
	}
	if offeredAmount > MaxOrderAmount || requestedAmount > MaxOrderAmount {
		return fmt.Errorf("%w: amount exceeds maximum %d", ErrInvalidInput, int64(MaxOrderAmount))
	}

	// Deposit first: no order may exist for a failed transfer.
	if err := e.transfer.Pull(offeredAsset, maker, offeredAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}

	e.seq++
	now := e.Clock.Now().UnixMilli()
	order := Order{
		ID:              newOrderID(e.seq, maker, now, offeredAsset, requestedAsset),
		OfferedAsset:    offeredAsset,
		OfferedAmount:   offeredAmount,
		RequestedAsset:  requestedAsset,
		RequestedAmount: requestedAmount,
		Maker:           maker,
		CreatedAt:       now,
	}
	e.store.Insert(order)
	e.journalSave(order)
	e.journalSeq()

	if e.Logger != nil {
		e.Logger.Infow("order_created",
			"id", order.ID.Hex(),
			"maker", maker.Hex(),
			"offered", fmt.Sprintf("%d %s", offeredAmount, offeredAsset),
			"requested", fmt.Sprintf("%d %s", requestedAmount, requestedAsset))
	}
	e.emit(OrderCreated{Order: order})
	return nil
}

// CancelOrder removes the order and refunds the maker's deposit. Only the
// maker may cancel. The order leaves the store before funds move, closing
// the reentrancy window.
func (e *Engine) CancelOrder(caller common.Address, id common.Hash) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	pos, ok := e.store.FindPosition(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id.Hex())
	}
	order := e.store.Get(pos)

	if caller != order.Maker {
		return fmt.Errorf("%w: only maker %s may cancel", ErrPermissionDenied, order.Maker.Hex())
	}
	if e.transfer.Custody(order.OfferedAsset) < order.OfferedAmount {
		return fmt.Errorf("%w: custody below escrowed %d %s", ErrInsufficientFunds, order.OfferedAmount, order.OfferedAsset)
	}

	// Mutate authoritative state, then perform external effects.
	if err := e.store.RemoveAt(pos); err != nil {
		return err
	}

	if err := e.transfer.Push(order.OfferedAsset, order.Maker, order.OfferedAmount); err != nil {
		// Refund rejected: put the order back and report. No funds moved.
		e.store.Insert(order)
		return fmt.Errorf("%w: refund rejected: %v", ErrInsufficientFunds, err)
	}
	e.journalDelete(order.ID)

	if e.Logger != nil {
		e.Logger.Infow("order_canceled", "id", order.ID.Hex(), "maker", order.Maker.Hex())
	}
	e.emit(OrderCanceled{Order: order})
	return nil
}

// ExecuteOrder settles the order against taker: taker pays the requested
// leg (net of the maker fee), custody releases the offered leg (net of
// the taker fee). The order leaves the store before any fund movement;
// settlement is all-or-nothing.
func (e *Engine) ExecuteOrder(taker common.Address, id common.Hash) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	pos, ok := e.store.FindPosition(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id.Hex())
	}
	order := e.store.Get(pos)

	// A zero maker means a corrupted slot; never settle against it.
	if order.Maker == (common.Address{}) {
		return fmt.Errorf("%w: order %s has zero maker", ErrPermissionDenied, id.Hex())
	}
	if e.transfer.Custody(order.OfferedAsset) < order.OfferedAmount {
		return fmt.Errorf("%w: custody below escrowed %d %s", ErrInsufficientFunds, order.OfferedAmount, order.OfferedAsset)
	}

	if err := e.store.RemoveAt(pos); err != nil {
		return err
	}

	// Fees off the top, floor division. fee + payout == amount on both legs.
	requestedFee := order.RequestedAmount * e.makerFeeBps / FeeDenominator
	requestedPayout := order.RequestedAmount - requestedFee
	offeredFee := order.OfferedAmount * e.takerFeeBps / FeeDenominator
	offeredPayout := order.OfferedAmount - offeredFee

	movements := []Movement{
		{Kind: MovePull, Asset: order.RequestedAsset, Party: taker, Amount: order.RequestedAmount},
		{Kind: MovePush, Asset: order.RequestedAsset, Party: e.feeRecipient, Amount: requestedFee},
		{Kind: MovePush, Asset: order.RequestedAsset, Party: order.Maker, Amount: requestedPayout},
		{Kind: MovePush, Asset: order.OfferedAsset, Party: e.feeRecipient, Amount: offeredFee},
		{Kind: MovePush, Asset: order.OfferedAsset, Party: taker, Amount: offeredPayout},
	}

	restorable, err := e.settle(movements)
	if err != nil {
		if restorable {
			// Nothing moved: restore the order and report.
			e.store.Insert(order)
		} else {
			// A push leg completed before the failure, so part of the
			// escrow already left custody and the order cannot return
			// to the book. Drop it and flag for reconciliation.
			e.journalDelete(order.ID)
			if e.Logger != nil {
				e.Logger.Errorw("settlement_partial",
					"id", order.ID.Hex(), "taker", taker.Hex(), "err", err)
			}
		}
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}

	executedAt := e.Clock.Now().UnixMilli()
	e.journalSettle(Trade{
		OrderID:         order.ID,
		OfferedAsset:    order.OfferedAsset,
		OfferedAmount:   order.OfferedAmount,
		RequestedAsset:  order.RequestedAsset,
		RequestedAmount: order.RequestedAmount,
		Maker:           order.Maker,
		Taker:           taker,
		RequestedFee:    requestedFee,
		OfferedFee:      offeredFee,
		ExecutedAt:      executedAt,
	})

	if e.Logger != nil {
		e.Logger.Infow("order_executed",
			"id", order.ID.Hex(),
			"maker", order.Maker.Hex(),
			"taker", taker.Hex(),
			"requested_fee", requestedFee,
			"offered_fee", offeredFee)
	}
	e.emit(OrderExecuted{
		Order:           order,
		Taker:           taker,
		RequestedFee:    requestedFee,
		RequestedPayout: requestedPayout,
		OfferedFee:      offeredFee,
		OfferedPayout:   offeredPayout,
		ExecutedAt:      executedAt,
	})
	return nil
}

// settle applies the movement set through the collaborator's atomic
// Settle when offered, else sequentially with a compensating unwind of
// completed legs on failure. restorable reports whether a failure left
// custody whole: the atomic path always does, the sequential path only
// when every completed leg could be reversed. With the shipped ledger
// the sequential path is unreachable: Settle covers execute, and
// sufficiency is checked before any leg runs.
func (e *Engine) settle(movements []Movement) (restorable bool, err error) {
	if s, ok := e.transfer.(Settler); ok {
		return true, s.Settle(movements)
	}

	var done []Movement
	for _, m := range movements {
		if m.Amount == 0 {
			continue
		}
		var err error
		switch m.Kind {
		case MovePull:
			err = e.transfer.Pull(m.Asset, m.Party, m.Amount)
		case MovePush:
			err = e.transfer.Push(m.Asset, m.Party, m.Amount)
		}
		if err != nil {
			return e.unwind(done), err
		}
		done = append(done, m)
	}
	return true, nil
}

// unwind reverses completed legs, newest first, and reports whether the
// escrow came out whole. A pull reverses as a push back to the holder; a
// completed push cannot be pulled back without the recipient's allowance,
// so it is logged for reconciliation and poisons the result.
func (e *Engine) unwind(done []Movement) bool {
	whole := true
	for i := len(done) - 1; i >= 0; i-- {
		m := done[i]
		switch m.Kind {
		case MovePull:
			if err := e.transfer.Push(m.Asset, m.Party, m.Amount); err != nil {
				whole = false
				if e.Logger != nil {
					e.Logger.Errorw("settlement_unwind_failed",
						"asset", m.Asset, "party", m.Party.Hex(), "amount", m.Amount, "err", err)
				}
			}
		case MovePush:
			whole = false
			if e.Logger != nil {
				e.Logger.Errorw("settlement_push_not_reversible",
					"asset", m.Asset, "party", m.Party.Hex(), "amount", m.Amount)
			}
		}
	}
	return whole
}

// SetFeeRecipient changes where fee legs are paid. Admin only; the zero
// address and the custody account are rejected. Enters through the same
// in-flight gate as the order transitions, so a call from inside a
// transfer callback fails with ErrReentrantCall instead of deadlocking.
func (e *Engine) SetFeeRecipient(caller, recipient common.Address) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	if caller != e.admin {
		return fmt.Errorf("%w: only admin may set fee recipient", ErrPermissionDenied)
	}
	if recipient == (common.Address{}) || recipient == e.custody {
		return fmt.Errorf("%w: %s", ErrInvalidFeeAddress, recipient.Hex())
	}

	e.feeRecipient = recipient
	if e.Logger != nil {
		e.Logger.Infow("fee_recipient_set", "recipient", recipient.Hex())
	}
	return nil
}

// FeeRecipient returns the current fee recipient
func (e *Engine) FeeRecipient() common.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.feeRecipient
}

// GetOrder returns the open order with the given id
func (e *Engine) GetOrder(id common.Hash) (Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pos, ok := e.store.FindPosition(id)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id.Hex())
	}
	return e.store.Get(pos), nil
}

// NumOrders returns the number of open orders
func (e *Engine) NumOrders() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Len()
}

// GetOrders returns a bounded page of open orders in current store order,
// which reflects prior swap-removes, not creation order.
func (e *Engine) GetOrders(limit, offset int) ([]Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Slice(offset, limit)
}

// Journal helpers: durability failures are logged, not surfaced — the
// in-memory book already committed and stays authoritative.

func (e *Engine) journalSave(o Order) {
	if e.Journal == nil {
		return
	}
	if err := e.Journal.SaveOrder(o); err != nil && e.Logger != nil {
		e.Logger.Errorw("journal_save_failed", "id", o.ID.Hex(), "err", err)
	}
}

func (e *Engine) journalDelete(id common.Hash) {
	if e.Journal == nil {
		return
	}
	if err := e.Journal.DeleteOrder(id); err != nil && e.Logger != nil {
		e.Logger.Errorw("journal_delete_failed", "id", id.Hex(), "err", err)
	}
}

func (e *Engine) journalSettle(t Trade) {
	if e.Journal == nil {
		return
	}
	if err := e.Journal.SettleOrder(t); err != nil && e.Logger != nil {
		e.Logger.Errorw("journal_settle_failed", "id", t.OrderID.Hex(), "err", err)
	}
}

func (e *Engine) journalSeq() {
	if e.Journal == nil {
		return
	}
	if err := e.Journal.SaveSeq(e.seq); err != nil && e.Logger != nil {
		e.Logger.Errorw("journal_seq_failed", "seq", e.seq, "err", err)
	}
}
