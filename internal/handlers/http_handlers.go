package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"logane/internal/errs"
	"logane/internal/models"
	"logane/internal/networks"
	"logane/internal/services"
	"logane/internal/session"
)

// HTTPHandler holds the dependencies for the HTTP handlers, like the raffle service.
type HTTPHandler struct {
	service  *services.RaffleService
	registry *networks.Registry
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.RaffleService, registry *networks.Registry) *HTTPHandler {
	return &HTTPHandler{
		service:  service,
		registry: registry,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/debug", h.Debug)

	api.GET("/session", h.GetSession)
	api.POST("/session/connect", h.Connect)
	api.POST("/session/disconnect", h.Disconnect)
	api.POST("/session/balance", h.RefreshBalance)

	api.GET("/raffles", h.ListRaffles)
	api.POST("/raffles", h.CreateRaffle)
	api.GET("/raffles/:id", h.GetRaffle)
	api.POST("/raffles/:id/participate", h.Participate)
	api.POST("/raffles/:id/participate/check", h.CheckParticipation)
	api.POST("/raffles/:id/draw", h.Draw)
	api.POST("/raffles/:id/claim", h.Claim)
	api.GET("/raffles/:id/results.csv", h.ExportResultsCSV)
}

// raffleView adds display fields to a raffle.
type raffleView struct {
	*models.Raffle
	Token                models.TokenInfo `json:"token"`
	TicketPriceFormatted string           `json:"ticketPriceFormatted"`
	ParticipantCount     int              `json:"participantCount"`
}

func viewOf(r *models.Raffle) raffleView {
	return raffleView{
		Raffle:               r,
		Token:                r.PaymentToken.Info(),
		TicketPriceFormatted: models.FormatAmount(r.TicketPrice, r.PaymentToken),
		ParticipantCount:     len(r.Participants),
	}
}

func viewsOf(raffles []*models.Raffle) []raffleView {
	out := make([]raffleView, 0, len(raffles))
	for _, r := range raffles {
		out = append(out, viewOf(r))
	}
	return out
}

// sessionView adds derived flags to a session snapshot.
type sessionView struct {
	session.Snapshot
	ShortAddress     string `json:"shortAddress,omitempty"`
	IsConnected      bool   `json:"isConnected"`
	IsConnecting     bool   `json:"isConnecting"`
	IsCorrectNetwork bool   `json:"isCorrectNetwork"`
	HasBalance       bool   `json:"hasBalance"`
	FaucetURL        string `json:"faucetUrl,omitempty"`
}

func (h *HTTPHandler) sessionView(snap session.Snapshot) sessionView {
	v := sessionView{
		Snapshot:         snap,
		IsConnected:      snap.IsConnected(),
		IsConnecting:     snap.IsConnecting(),
		IsCorrectNetwork: snap.IsCorrectNetwork(),
		HasBalance:       snap.HasBalance(),
	}
	if snap.Address != "" {
		v.ShortAddress = session.FormatAddress(snap.Address)
		if n, ok := h.registry.Lookup(snap.ChainID()); ok && !v.HasBalance {
			v.FaucetURL = n.FaucetURL(snap.Address)
		}
	}
	return v
}

// statusOf maps a failure kind to an HTTP status.
func statusOf(err error) int {
	if errors.Is(err, services.ErrRaffleNotFound) {
		return http.StatusNotFound
	}
	switch errs.KindOf(err) {
	case errs.ValidationError:
		return http.StatusBadRequest
	case errs.InsufficientBalance:
		return http.StatusPaymentRequired
	case errs.NoSigner:
		return http.StatusForbidden
	case errs.UserRejected, errs.NetworkMismatch:
		return http.StatusConflict
	case errs.ProviderUnavailable, errs.NotReady, errs.NetworkUnconfigured:
		return http.StatusServiceUnavailable
	case errs.ChainCallFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.Wrap(errs.ChainCallFailure, err, "request failed")
	}
	c.JSON(status, gin.H{"success": false, "error": e})
}

func respondResult(c *gin.Context, res models.Result, okStatus int) {
	if !res.Success {
		respondError(c, res.Err())
		return
	}
	c.JSON(okStatus, gin.H{"success": true, "data": res})
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, errs.Newf(errs.ValidationError, "invalid raffle id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

// Health reports liveness together with the ledger mode.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"status":    "healthy",
			"ledger":    h.service.Mode(),
			"wallet":    h.service.Session().State,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Debug exposes the resolved network configuration.
func (h *HTTPHandler) Debug(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"mode":           h.service.Mode(),
			"defaultNetwork": h.registry.Default(),
			"networks":       h.registry.All(),
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// GetSession returns the wallet session.
func (h *HTTPHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.sessionView(h.service.Session())})
}

// Connect asks the wallet for account access.
func (h *HTTPHandler) Connect(c *gin.Context) {
	snap, err := h.service.Connect(c.Request.Context())
	if errors.Is(err, session.ErrConnectPending) {
		c.JSON(http.StatusAccepted, gin.H{"success": true, "data": h.sessionView(snap)})
		return
	}
	if errors.Is(err, session.ErrConnectAborted) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error(), "data": h.sessionView(snap)})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.sessionView(snap)})
}

// Disconnect forgets the connected account.
func (h *HTTPHandler) Disconnect(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.sessionView(h.service.Disconnect())})
}

// RefreshBalance re-reads the wallet balance.
func (h *HTTPHandler) RefreshBalance(c *gin.Context) {
	snap, err := h.service.RefreshBalance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.sessionView(snap)})
}

// ListRaffles returns the active raffles, or those created by ?user=.
func (h *HTTPHandler) ListRaffles(c *gin.Context) {
	ctx := c.Request.Context()
	var raffles []*models.Raffle
	if user := c.Query("user"); user != "" {
		raffles = h.service.UserRaffles(ctx, user)
	} else {
		raffles = h.service.ActiveRaffles(ctx)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": viewsOf(raffles)})
}

// GetRaffle returns one raffle.
func (h *HTTPHandler) GetRaffle(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	r, err := h.service.Raffle(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": viewOf(r)})
}

// CreateRaffle handles a creation request.
func (h *HTTPHandler) CreateRaffle(c *gin.Context) {
	var req models.CreateRaffleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.Wrap(errs.ValidationError, err, "invalid raffle data"))
		return
	}
	respondResult(c, h.service.CreateRaffle(c.Request.Context(), req), http.StatusCreated)
}

type participantRequest struct {
	UserAddress string `json:"userAddress"`
}

type claimRequest struct {
	UserAddress string `json:"userAddress"`
	PrizeIndex  *int   `json:"prizeIndex"`
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c *gin.Context, out any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(out); err != nil {
		respondError(c, errs.Wrap(errs.ValidationError, err, "invalid request body"))
		return false
	}
	return true
}

// CheckParticipation runs the entry checks and returns what the join will cost.
func (h *HTTPHandler) CheckParticipation(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req participantRequest
	if !bindOptional(c, &req) {
		return
	}
	r, err := h.service.CheckParticipation(c.Request.Context(), id, req.UserAddress)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
		"message":     "ready to participate",
		"raffleId":    r.ID,
		"ticketPrice": models.FormatAmount(r.TicketPrice, r.PaymentToken),
		"userAddress": req.UserAddress,
	}})
}

// Participate joins a raffle.
func (h *HTTPHandler) Participate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req participantRequest
	if !bindOptional(c, &req) {
		return
	}
	respondResult(c, h.service.Participate(c.Request.Context(), id, req.UserAddress), http.StatusOK)
}

// Draw submits a winner draw.
func (h *HTTPHandler) Draw(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	respondResult(c, h.service.Draw(c.Request.Context(), id), http.StatusOK)
}

// Claim collects one prize slot.
func (h *HTTPHandler) Claim(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req claimRequest
	if !bindOptional(c, &req) {
		return
	}
	if req.PrizeIndex == nil {
		respondError(c, errs.New(errs.ValidationError, "prizeIndex is required"))
		return
	}
	respondResult(c, h.service.Claim(c.Request.Context(), id, *req.PrizeIndex, req.UserAddress), http.StatusOK)
}

// ExportResultsCSV handles the request to download the winners of a raffle as a CSV file.
func (h *HTTPHandler) ExportResultsCSV(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	r, err := h.service.Raffle(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment;filename=raffle_%d_results.csv", r.ID))

	// Add BOM to ensure UTF-8 compatibility in Excel
	if _, err := c.Writer.Write([]byte("\xef\xbb\xbf")); err != nil {
		logger.Infof("Error writing CSV BOM: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
		return
	}

	w := csv.NewWriter(c.Writer)
	if err := w.Write([]string{"slot", "prize", "value", "winner"}); err != nil {
		logger.Infof("Error writing CSV header: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
		return
	}
	for i, p := range r.ActivePrizes() {
		row := []string{strconv.Itoa(i + 1), p.Name, models.FormatAmount(p.Value, r.PaymentToken), r.Winners[i]}
		if err := w.Write(row); err != nil {
			logger.Infof("Error writing CSV row: %v", err)
			c.String(http.StatusInternalServerError, "Error writing CSV")
			return
		}
	}
	w.Flush()

	if err := w.Error(); err != nil {
		logger.Infof("Error flushing CSV writer: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
	}
}
