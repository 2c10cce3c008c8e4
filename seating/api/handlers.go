// Package api HTTP маршруты сервиса резервирования мест.
package api

import (
	"net/http"
	"strconv"

	resttransport "github.com/akriventsev/theater/framework/adapters/transport"
	"github.com/akriventsev/theater/framework/core"
	"github.com/akriventsev/theater/framework/transport"
	"github.com/akriventsev/theater/seating/application"
	"github.com/gin-gonic/gin"
)

// Handlers HTTP обработчики поверх шин команд и запросов
type Handlers struct {
	commands transport.CommandBus
	queries  transport.QueryBus
}

// NewHandlers создает обработчики
func NewHandlers(commands transport.CommandBus, queries transport.QueryBus) *Handlers {
	return &Handlers{commands: commands, queries: queries}
}

// Register регистрирует маршруты в группе
func (h *Handlers) Register(group *gin.RouterGroup) {
	theaters := group.Group("/theaters/:theater")
	theaters.POST("/reservations", h.Reserve)
	theaters.GET("/seats", h.SeatMap)
	theaters.GET("/events", h.History)
	group.GET("/events", h.Feed)
}

type reserveRequest struct {
	Number *uint32 `json:"number" binding:"required"`
	Row    *uint32 `json:"row" binding:"required"`
}

type reserveResponse struct {
	application.ReserveResult
	Published bool `json:"published"`
}

// Reserve POST /theaters/:theater/reservations
func (h *Handlers) Reserve(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resttransport.AbortWithError(c, core.Wrap(err, core.ErrValidationFailed, "invalid request body"))
		return
	}

	cmd := &application.ReserveSeatCommand{
		TheaterID: c.Param("theater"),
		Number:    *req.Number,
		Row:       *req.Row,
	}
	err := h.commands.Send(c.Request.Context(), cmd)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, reserveResponse{ReserveResult: cmd.Result, Published: true})
	case core.HasCode(err, core.ErrPublishFailed):
		// события записаны, брокер недоступен
		_ = c.Error(err)
		c.JSON(http.StatusCreated, reserveResponse{ReserveResult: cmd.Result, Published: false})
	default:
		resttransport.AbortWithError(c, err)
	}
}

// SeatMap GET /theaters/:theater/seats
func (h *Handlers) SeatMap(c *gin.Context) {
	h.ask(c, application.SeatMapQuery{TheaterID: c.Param("theater")})
}

// History GET /theaters/:theater/events
func (h *Handlers) History(c *gin.Context) {
	h.ask(c, application.HistoryQuery{TheaterID: c.Param("theater")})
}

// Feed GET /events?from=&limit=
func (h *Handlers) Feed(c *gin.Context) {
	from, err := strconv.ParseInt(c.DefaultQuery("from", "0"), 10, 64)
	if err != nil {
		resttransport.AbortWithError(c, core.Wrap(err, core.ErrValidationFailed, "invalid from"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(application.DefaultFeedLimit)))
	if err != nil {
		resttransport.AbortWithError(c, core.Wrap(err, core.ErrValidationFailed, "invalid limit"))
		return
	}

	h.ask(c, application.FeedQuery{From: from, Limit: limit})
}

func (h *Handlers) ask(c *gin.Context, q transport.Query) {
	result, err := h.queries.Ask(c.Request.Context(), q)
	if err != nil {
		resttransport.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
