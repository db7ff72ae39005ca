package http

import (
	"context"
	"errors"
	"net/http"

	"exchange/internal/domain"
	"exchange/internal/infrastructure/dhan"

	"github.com/gin-gonic/gin"
)

const gatewayBasePath = "/api/v1"

var (
	errEmptyInstruments = errors.New("at least one instrument required")
	errUnknownAction    = errors.New("action must be subscribe or unsubscribe")
	errUnknownOrderType = errors.New("order_type must be BUY or SELL")
)

// GatewayService is the application surface exposed over HTTP.
type GatewayService interface {
	Subscribe(instruments []domain.InstrumentInfo) error
	Unsubscribe(instruments []domain.InstrumentInfo) error
	GetQuotes(ctx context.Context, instruments []domain.InstrumentInfo) (map[string]domain.MarketQuote, error)
	PlaceOrder(cmd domain.TransactionCommand)
	RestartSocket() error
}

// StatusSource reports live connection state for the ops endpoints.
type StatusSource interface {
	Status() []dhan.ConnectionInfo
}

type Handler struct {
	router  *gin.Engine
	gateway GatewayService
	status  StatusSource
}

func NewHandler(gateway GatewayService, status StatusSource) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:  router,
		gateway: gateway,
		status:  status,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/healthz", h.healthz)

	api := h.router.Group(gatewayBasePath)
	{
		ws := api.Group("/ws")
		{
			ws.GET("/status", h.getSocketStatus)
			ws.POST("/restart", h.restartSocket)
		}

		api.POST("/subscriptions", h.changeSubscriptions)
		api.POST("/quotes", h.getQuotes)
		api.POST("/orders", h.placeOrder)
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getSocketStatus reports per-connection state, load and heartbeat timestamps.
func (h *Handler) getSocketStatus(c *gin.Context) {
	if h.status == nil {
		c.JSON(http.StatusOK, gin.H{"connections": []dhan.ConnectionInfo{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": h.status.Status()})
}

// restartSocket tears down and redials every feed connection.
func (h *Handler) restartSocket(c *gin.Context) {
	if err := h.gateway.RestartSocket(); err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type instrumentPayload struct {
	Token           int64  `json:"token" binding:"required"`
	ExchangeSegment string `json:"exchange_segment" binding:"required"`
	TradingSymbol   string `json:"trading_symbol"`
}

func (p instrumentPayload) toDomain() domain.InstrumentInfo {
	return domain.InstrumentInfo{
		Token:           p.Token,
		ExchangeSegment: p.ExchangeSegment,
		TradingSymbol:   p.TradingSymbol,
	}
}

type subscriptionPayload struct {
	Action      string              `json:"action" binding:"required"`
	Instruments []instrumentPayload `json:"instruments" binding:"required"`
}

// changeSubscriptions subscribes or unsubscribes a batch of instruments on
// the live feed.
func (h *Handler) changeSubscriptions(c *gin.Context) {
	var payload subscriptionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	instruments := toInstruments(payload.Instruments)
	if len(instruments) == 0 {
		writeError(c, http.StatusBadRequest, errEmptyInstruments)
		return
	}

	var err error
	switch payload.Action {
	case "subscribe":
		err = h.gateway.Subscribe(instruments)
	case "unsubscribe":
		err = h.gateway.Unsubscribe(instruments)
	default:
		writeError(c, http.StatusBadRequest, errUnknownAction)
		return
	}
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type quotesPayload struct {
	Instruments []instrumentPayload `json:"instruments" binding:"required"`
}

// getQuotes fetches a point-in-time snapshot over the vendor REST API and
// refreshes the streaming subscription for the same instruments.
func (h *Handler) getQuotes(c *gin.Context) {
	var payload quotesPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	instruments := toInstruments(payload.Instruments)
	if len(instruments) == 0 {
		writeError(c, http.StatusBadRequest, errEmptyInstruments)
		return
	}

	quotes, err := h.gateway.GetQuotes(c.Request.Context(), instruments)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, quotes)
}

type orderPayload struct {
	Request              domain.TradeRequest `json:"request" binding:"required"`
	TransactionID        int64               `json:"transaction_id" binding:"required"`
	InstrumentID         string              `json:"instrument_id" binding:"required"`
	IsShortSell          bool                `json:"is_short_sell"`
	PriceWhenOrderPlaced float64             `json:"price_when_order_placed"`
}

func (p orderPayload) toDomain() domain.TradeResponse {
	return domain.TradeResponse{
		Request:              p.Request,
		TransactionID:        p.TransactionID,
		InstrumentID:         p.InstrumentID,
		IsShortSell:          p.IsShortSell,
		PriceWhenOrderPlaced: p.PriceWhenOrderPlaced,
	}
}

// placeOrder enqueues a buy or sell order on the matching engine. The engine
// consumes asynchronously, so acceptance only means the order was queued.
func (h *Handler) placeOrder(c *gin.Context) {
	var payload orderPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	resp := payload.toDomain()
	switch payload.Request.OrderType {
	case domain.OrderTypeBuy:
		h.gateway.PlaceOrder(domain.PlaceBuy{Response: resp})
	case domain.OrderTypeSell:
		h.gateway.PlaceOrder(domain.PlaceSell{Response: resp})
	default:
		writeError(c, http.StatusBadRequest, errUnknownOrderType)
		return
	}
	c.Status(http.StatusAccepted)
}

func toInstruments(payloads []instrumentPayload) []domain.InstrumentInfo {
	instruments := make([]domain.InstrumentInfo, 0, len(payloads))
	for _, p := range payloads {
		instruments = append(instruments, p.toDomain())
	}
	return instruments
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
