package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"paper-trader/internal/catalog"
	terrors "paper-trader/internal/errors"
	"paper-trader/internal/logging"
	"paper-trader/internal/models"
	"paper-trader/internal/trading"
	"paper-trader/pkg/utils"
)

// Instruments is the catalog view the API serves.
type Instruments interface {
	Instruments() []catalog.Instrument
	Instrument(symbol string) (catalog.Instrument, error)
	Quote(key models.InstrumentKey) (models.Quote, error)
	DerivativeContracts(symbol string) (models.Contracts, error)
	OptionChain(symbol, expiry string) ([]catalog.ChainRow, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	desk        *trading.Desk
	instruments Instruments
	logger      zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(desk *trading.Desk, instruments Instruments, logger zerolog.Logger) *Handler {
	return &Handler{
		desk:        desk,
		instruments: instruments,
		logger:      logging.WithComponent(logger, "api"),
	}
}

// orderBody is the POST /orders payload. Lots, when set for a derivative,
// replaces Quantity with lots × lot size.
type orderBody struct {
	models.OrderRequest
	Lots int `json:"lots,omitempty"`
}

type errorBody struct {
	Error string        `json:"error"`
	Code  string        `json:"code"`
	Order *models.Order `json:"order,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"accounts": h.desk.IDs(),
	})
}

// SubmitOrder handles POST /accounts/{account}/orders
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var body orderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, terrors.NewValidationError("body", nil, "invalid request body: "+err.Error(), terrors.ErrInvalidOrderParameters), nil)
		return
	}

	req := body.OrderRequest
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if body.Lots > 0 && req.Segment.IsDerivative() {
		inst, err := h.instruments.Instrument(req.Symbol)
		if err != nil {
			respondError(w, err, nil)
			return
		}
		if req.Quantity, err = trading.LotQuantity(body.Lots, inst.LotSize); err != nil {
			respondError(w, err, nil)
			return
		}
	}

	order, err := h.openAccount(r).SubmitOrder(r.Context(), req)
	if err != nil {
		respondError(w, err, order)
		return
	}
	logger := logging.WithOrderID(logging.FromContext(r.Context()), order.ID)
	logger.Debug().
		Str("status", string(order.Status)).
		Msg("Order accepted")
	respondJSON(w, http.StatusCreated, order)
}

// ListOrders handles GET /accounts/{account}/orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.OrderFilter{
		Status: models.OrderStatus(strings.ToUpper(q.Get("status"))),
		Symbol: strings.ToUpper(q.Get("symbol")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondError(w, terrors.NewValidationError("status", q.Get("status"), "unknown order status", terrors.ErrInvalidOrderParameters), nil)
		return
	}
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, acct.Orders(filter))
}

// GetOrder handles GET /accounts/{account}/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	order, err := acct.Order(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// CancelOrder handles DELETE /accounts/{account}/orders/{id}
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	order, err := acct.CancelOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// ListPositions handles GET /accounts/{account}/positions
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, acct.Positions())
}

// SquareOff handles POST /accounts/{account}/positions/{id}/squareoff
func (h *Handler) SquareOff(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	pnl, err := acct.SquareOff(r.Context(), id)
	if err != nil {
		respondError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"position_id":  id,
		"realized_pnl": pnl,
	})
}

// SquareOffAll handles POST /accounts/{account}/positions/squareoff
func (h *Handler) SquareOffAll(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	pnl, err := acct.SquareOffAll(r.Context())
	if err != nil {
		respondError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]decimal.Decimal{"realized_pnl": pnl})
}

// ListHoldings handles GET /accounts/{account}/holdings
func (h *Handler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, acct.Holdings())
}

// GetFunds handles GET /accounts/{account}/funds
func (h *Handler) GetFunds(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, acct.Funds())
}

// Reset handles POST /accounts/{account}/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.account(w, r)
	if !ok {
		return
	}
	funds, err := acct.Reset(r.Context())
	if err != nil {
		respondError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, funds)
}

// ListInstruments handles GET /instruments
func (h *Handler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.instruments.Instruments())
}

// GetInstrument handles GET /instruments/{symbol}
func (h *Handler) GetInstrument(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	inst, err := h.instruments.Instrument(symbol)
	if err != nil {
		respondErrorStatus(w, http.StatusNotFound, err, nil)
		return
	}
	quote, err := h.instruments.Quote(models.InstrumentKey{Symbol: symbol, Segment: models.SegmentEQ})
	if err != nil {
		respondError(w, err, nil)
		return
	}

	resp := map[string]interface{}{
		"instrument": inst,
		"quote":      quote,
	}
	if contracts, err := h.instruments.DerivativeContracts(symbol); err == nil {
		resp["contracts"] = contracts
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetOptionChain handles GET /instruments/{symbol}/chain/{expiry}
func (h *Handler) GetOptionChain(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rows, err := h.instruments.OptionChain(strings.ToUpper(vars["symbol"]), vars["expiry"])
	if err != nil {
		respondErrorStatus(w, http.StatusNotFound, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// ApplyTick handles POST /ticks
func (h *Handler) ApplyTick(w http.ResponseWriter, r *http.Request) {
	var tick models.Tick
	if err := json.NewDecoder(r.Body).Decode(&tick); err != nil {
		respondError(w, terrors.NewValidationError("body", nil, "invalid request body: "+err.Error(), terrors.ErrInvalidOrderParameters), nil)
		return
	}
	tick.Key.Symbol = strings.ToUpper(tick.Key.Symbol)
	if tick.Key.Segment == "" {
		tick.Key.Segment = models.SegmentEQ
	}
	if tick.Timestamp.IsZero() {
		tick.Timestamp = time.Now()
	}

	filled, err := h.desk.ApplyTick(r.Context(), tick)
	if err != nil {
		respondError(w, err, nil)
		return
	}
	if filled == nil {
		filled = []models.Order{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"filled": filled})
}

// openAccount returns the path's account, opening it on first use. Only
// order submission opens accounts.
func (h *Handler) openAccount(r *http.Request) *trading.Account {
	return h.desk.Account(mux.Vars(r)["account"])
}

// account returns an existing account or writes a 404.
func (h *Handler) account(w http.ResponseWriter, r *http.Request) (*trading.Account, bool) {
	acct, err := h.desk.Lookup(mux.Vars(r)["account"])
	if err != nil {
		respondError(w, err, nil)
		return nil, false
	}
	return acct, true
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, terrors.ErrInsufficientMargin), errors.Is(err, terrors.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity
	case errors.Is(err, terrors.ErrInvalidQuantity),
		errors.Is(err, terrors.ErrInvalidOrderParameters),
		errors.Is(err, terrors.ErrUnknownSymbol),
		errors.Is(err, terrors.ErrUnknownInstrument):
		return http.StatusBadRequest
	case errors.Is(err, terrors.ErrOrderNotFound),
		errors.Is(err, terrors.ErrPositionNotFound),
		errors.Is(err, terrors.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, terrors.ErrInvalidCancelState):
		return http.StatusConflict
	case errors.Is(err, terrors.ErrPriceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(w http.ResponseWriter, err error, order *models.Order) {
	respondErrorStatus(w, statusFor(err), err, order)
}

func respondErrorStatus(w http.ResponseWriter, status int, err error, order *models.Order) {
	respondJSON(w, status, errorBody{
		Error: err.Error(),
		Code:  terrors.Code(err),
		Order: order,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = utils.NewID()
		}
		w.Header().Set("X-Request-ID", reqID)
		logger := h.logger.With().Str(string(logging.RequestIDKey), reqID).Logger()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(logging.WithLogger(r.Context(), logger)))
		logging.LogRequest(logger, r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
