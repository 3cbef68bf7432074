package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/swapbook/pkg/asset"
	"github.com/uhyunpark/swapbook/pkg/book"
	"github.com/uhyunpark/swapbook/pkg/ledger"
)

// Server exposes the swap book over REST plus a WebSocket event stream.
type Server struct {
	engine   *book.Engine
	ledger   *ledger.Ledger
	registry *asset.Registry
	router   *mux.Router
	hub      *Hub
	logger   *zap.SugaredLogger

	// The engine announces new order ids only through OrderCreated events,
	// so the create handler captures its own event: creates are serialized
	// here, and the engine emits synchronously before CreateOrder returns.
	createMu    sync.Mutex
	lastCreated chan book.OrderCreated
}

// NewServer creates the API server. Wire engine.OnEvent to
// (*Server).OnEngineEvent so the stream and id capture work.
func NewServer(engine *book.Engine, l *ledger.Ledger, registry *asset.Registry, logger *zap.SugaredLogger) *Server {
	s := &Server{
		engine:      engine,
		ledger:      l,
		registry:    registry,
		router:      mux.NewRouter(),
		hub:         NewHub(),
		logger:      logger,
		lastCreated: make(chan book.OrderCreated, 1),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order book
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/count", s.handleGetOrderCount).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/execute", s.handleExecuteOrder).Methods("POST")

	// Trade history
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")

	// Assets & accounts
	api.HandleFunc("/assets", s.handleGetAssets).Methods("GET")
	api.HandleFunc("/accounts/{address}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/accounts/{address}/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/accounts/{address}/approve", s.handleApprove).Methods("POST")
	api.HandleFunc("/accounts/{address}/withdraw", s.handleWithdraw).Methods("POST")

	// Admin
	api.HandleFunc("/admin/fee-recipient", s.handleSetFeeRecipient).Methods("POST")

	// WebSocket event stream
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.logger.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// Handler returns the routed handler, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// OnEngineEvent broadcasts engine notifications to WebSocket subscribers
// and feeds the create handler's id capture.
func (s *Server) OnEngineEvent(ev book.Event) {
	if created, ok := ev.(book.OrderCreated); ok {
		select {
		case s.lastCreated <- created:
		default:
		}
	}

	frame := WSEvent{Type: ev.Type(), Data: ev}
	s.hub.BroadcastToChannel("orders", frame)
	if _, ok := ev.(book.OrderExecuted); ok {
		s.hub.BroadcastToChannel("trades", frame)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	count := s.engine.NumOrders()
	if count == 0 {
		respondJSON(w, []OrderInfo{})
		return
	}

	limit := count
	offset := 0
	var err error
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			respondError(w, http.StatusBadRequest, "invalid offset", v)
			return
		}
	}

	orders, err := s.engine.GetOrders(limit, offset)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	response := make([]OrderInfo, len(orders))
	for i, o := range orders {
		response[i] = orderInfo(o)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrderCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, CountResponse{Count: s.engine.NumOrders()})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := common.HexToHash(mux.Vars(r)["id"])

	order, err := s.engine.GetOrder(id)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, orderInfo(order))
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Maker) {
		respondError(w, http.StatusBadRequest, "invalid maker address", req.Maker)
		return
	}
	maker := common.HexToAddress(req.Maker)

	s.createMu.Lock()
	defer s.createMu.Unlock()

	// Drain a stale capture, then create; the engine emits synchronously,
	// so a successful create leaves exactly our event in the channel.
	select {
	case <-s.lastCreated:
	default:
	}

	err := s.engine.CreateOrder(maker, req.OfferedAsset, req.OfferedAmount, req.RequestedAsset, req.RequestedAmount)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}

	var orderID string
	select {
	case created := <-s.lastCreated:
		orderID = created.Order.ID.Hex()
	default:
		// Engine has no event hook wired; the id is only on the stream.
	}

	respondJSON(w, CreateOrderResponse{Status: "created", OrderID: orderID})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := common.HexToHash(mux.Vars(r)["id"])

	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Caller) {
		respondError(w, http.StatusBadRequest, "invalid caller address", req.Caller)
		return
	}

	if err := s.engine.CancelOrder(common.HexToAddress(req.Caller), id); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "canceled", "orderId": id.Hex()})
}

func (s *Server) handleExecuteOrder(w http.ResponseWriter, r *http.Request) {
	id := common.HexToHash(mux.Vars(r)["id"])

	var req ExecuteOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Taker) {
		respondError(w, http.StatusBadRequest, "invalid taker address", req.Taker)
		return
	}

	if err := s.engine.ExecuteOrder(common.HexToAddress(req.Taker), id); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "executed", "orderId": id.Hex()})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = n
	}

	if s.engine.Journal == nil {
		respondJSON(w, []TradeInfo{})
		return
	}

	trades, err := s.engine.Journal.LoadRecentTrades(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load trades", err.Error())
		return
	}

	response := make([]TradeInfo, len(trades))
	for i, t := range trades {
		response[i] = TradeInfo{
			OrderID:         t.OrderID.Hex(),
			OfferedAsset:    t.OfferedAsset,
			OfferedAmount:   t.OfferedAmount,
			RequestedAsset:  t.RequestedAsset,
			RequestedAmount: t.RequestedAmount,
			Maker:           t.Maker.Hex(),
			Taker:           t.Taker.Hex(),
			RequestedFee:    t.RequestedFee,
			OfferedFee:      t.OfferedFee,
			ExecutedAt:      t.ExecutedAt,
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleGetAssets(w http.ResponseWriter, r *http.Request) {
	assets := s.registry.List()

	response := make([]AssetInfo, len(assets))
	for i, a := range assets {
		response[i] = AssetInfo{
			Symbol:         a.Symbol,
			MinOrderAmount: a.MinOrderAmount,
			Decimals:       a.Decimals,
			Status:         a.Status.String(),
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	addressStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", addressStr)
		return
	}
	addr := common.HexToAddress(addressStr)

	respondJSON(w, BalancesResponse{
		Address:  addr.Hex(),
		Balances: s.ledger.Balances(addr),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleLedgerOp(w, r, s.ledger.Deposit, "deposited")
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.handleLedgerOp(w, r, s.ledger.Approve, "approved")
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleLedgerOp(w, r, s.ledger.Withdraw, "withdrawn")
}

func (s *Server) handleLedgerOp(w http.ResponseWriter, r *http.Request, op func(common.Address, string, int64) error, status string) {
	addressStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addressStr) {
		respondError(w, http.StatusBadRequest, "invalid address", addressStr)
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := op(common.HexToAddress(addressStr), req.Asset, req.Amount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			respondError(w, http.StatusPaymentRequired, "insufficient balance", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "transfer rejected", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": status})
}

func (s *Server) handleSetFeeRecipient(w http.ResponseWriter, r *http.Request) {
	var req FeeRecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Caller) || !common.IsHexAddress(req.Recipient) {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}

	err := s.engine.SetFeeRecipient(common.HexToAddress(req.Caller), common.HexToAddress(req.Recipient))
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "updated", "recipient": req.Recipient})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func orderInfo(o book.Order) OrderInfo {
	return OrderInfo{
		ID:              o.ID.Hex(),
		OfferedAsset:    o.OfferedAsset,
		OfferedAmount:   o.OfferedAmount,
		RequestedAsset:  o.RequestedAsset,
		RequestedAmount: o.RequestedAmount,
		Maker:           o.Maker.Hex(),
		CreatedAt:       o.CreatedAt,
	}
}

// respondEngineError maps engine failure kinds onto HTTP statuses
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, book.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order not found", err.Error())
	case errors.Is(err, book.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "permission denied", err.Error())
	case errors.Is(err, book.ErrInsufficientFunds):
		respondError(w, http.StatusPaymentRequired, "insufficient funds", err.Error())
	case errors.Is(err, book.ErrInvalidInput), errors.Is(err, book.ErrInvalidFeeAddress):
		respondError(w, http.StatusBadRequest, "invalid input", err.Error())
	case errors.Is(err, book.ErrReentrantCall):
		respondError(w, http.StatusConflict, "engine busy", err.Error())
	default:
		s.logger.Errorw("internal_error", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
