// Package http exposes the token distribution service as a JSON API.
package http

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	tokenmint "github.com/b402-foundation/tokenmint"
	"github.com/b402-foundation/tokenmint/service"
)

// Config configures the API server.
type Config struct {
	Service *service.Service

	// AdminKey guards destructive admin endpoints. When empty, those
	// endpoints are disabled entirely.
	AdminKey string
}

// Server wraps a gin engine with the service routes mounted.
type Server struct {
	cfg    Config
	engine *gin.Engine
}

// New creates the API server and registers all routes.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, tokenmint.NewConfigurationError("service is required")
	}

	s := &Server{cfg: cfg, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.registerRoutes()
	return s, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts serving on addr and blocks.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		m := api.Group("/mint")
		m.GET("/health", s.handleHealth)
		m.GET("/allocation", s.handleAllocationStatus)
		m.GET("/status", s.handleDistributionStatus)
		m.POST("", s.handleMintPublic)
		m.POST("/airdrop", s.handleMintPool(tokenmint.PoolAirdrop))
		m.POST("/bayc", s.handleMintPool(tokenmint.PoolBayc))
		m.POST("/liquidity", s.handleMintPool(tokenmint.PoolLiquidity))
		m.POST("/airdrop/batch", s.handleBatchMint(tokenmint.PoolAirdrop))
		m.POST("/verify", s.handleVerifyPayment)
		if s.cfg.AdminKey != "" {
			m.POST("/disable", s.requireAdmin, s.handleDisableMinting)
		}

		p := api.Group("/purchase")
		p.POST("/gasless", s.handlePurchase)
		p.POST("/:id/resume", s.handleResumePurchase)
		p.GET("/:id", s.handleGetPurchase)
	}
}

// requireAdmin rejects requests without the configured admin key.
func (s *Server) requireAdmin(c *gin.Context) {
	if c.GetHeader("X-Admin-Key") != s.cfg.AdminKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope(
			tokenmint.NewError("unauthorized", "invalid admin key", false)))
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	health := s.cfg.Service.Health(c.Request.Context())
	status := http.StatusOK
	if !health.RPCConnected || !health.ContractConnected {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"success": status == http.StatusOK, "data": health})
}

func (s *Server) handleAllocationStatus(c *gin.Context) {
	allocation, err := s.cfg.Service.GetAllocationStatus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, allocation)
}

func (s *Server) handleDistributionStatus(c *gin.Context) {
	totalMinted, progress, err := s.cfg.Service.GetDistributionStatus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, gin.H{"totalMinted": totalMinted, "progressPercent": progress})
}

type mintRequest struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type publicMintRequest struct {
	mintRequest
	PaymentTxHash string `json:"paymentTxHash"`
}

func (s *Server) handleMintPublic(c *gin.Context) {
	var req publicMintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, tokenmint.NewValidationError("invalid JSON body"))
		return
	}
	result, err := s.cfg.Service.MintPublicWithPayment(c.Request.Context(), req.To, req.Amount, req.PaymentTxHash)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, result)
}

func (s *Server) handleMintPool(pool tokenmint.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, tokenmint.NewValidationError("invalid JSON body"))
			return
		}
		var (
			result *tokenmint.MintResult
			err    error
		)
		switch pool {
		case tokenmint.PoolAirdrop:
			result, err = s.cfg.Service.MintAirdrop(c.Request.Context(), req.To, req.Amount)
		case tokenmint.PoolBayc:
			result, err = s.cfg.Service.MintBayc(c.Request.Context(), req.To, req.Amount)
		case tokenmint.PoolLiquidity:
			result, err = s.cfg.Service.MintLiquidity(c.Request.Context(), req.To, req.Amount)
		}
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, result)
	}
}

type batchMintRequest struct {
	Recipients []tokenmint.BatchRecipient `json:"recipients"`
}

func (s *Server) handleBatchMint(pool tokenmint.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeError(c, tokenmint.NewValidationError("failed to read request body"))
			return
		}
		var req batchMintRequest
		if err := decodeValidated(batchMintSchema, raw, &req); err != nil {
			writeError(c, tokenmint.NewValidationError(err.Error()))
			return
		}
		summary, err := s.cfg.Service.MintBatch(c.Request.Context(), pool, req.Recipients)
		if err != nil {
			writeError(c, err)
			return
		}
		writeOK(c, summary)
	}
}

type verifyPaymentRequest struct {
	TxHash string `json:"txHash"`
}

func (s *Server) handleVerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, tokenmint.NewValidationError("invalid JSON body"))
		return
	}
	receipt, err := s.cfg.Service.VerifyPaymentTransaction(c.Request.Context(), req.TxHash)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, receipt)
}

func (s *Server) handleDisableMinting(c *gin.Context) {
	receipt, err := s.cfg.Service.DisableMinting(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, receipt)
}

type purchaseRequest struct {
	Recipient   string `json:"recipient"`
	TokenSymbol string `json:"tokenSymbol"`
	Amount      int64  `json:"amount"`
}

func (s *Server) handlePurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, tokenmint.NewValidationError("invalid JSON body"))
		return
	}
	p, err := s.cfg.Service.Purchase(c.Request.Context(), req.Recipient, req.TokenSymbol, req.Amount)
	if err != nil {
		// A suspended or failed purchase record still matters to the
		// caller; return it alongside the error when it exists.
		if p != nil {
			writeErrorWithData(c, err, p)
			return
		}
		writeError(c, err)
		return
	}
	writeOK(c, p)
}

type resumePurchaseRequest struct {
	ApprovalTxHash string `json:"approvalTxHash"`
}

func (s *Server) handleResumePurchase(c *gin.Context) {
	var req resumePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, tokenmint.NewValidationError("invalid JSON body"))
		return
	}
	p, err := s.cfg.Service.ResumePurchase(c.Request.Context(), c.Param("id"), req.ApprovalTxHash)
	if err != nil {
		if p != nil {
			writeErrorWithData(c, err, p)
			return
		}
		writeError(c, err)
		return
	}
	writeOK(c, p)
}

func (s *Server) handleGetPurchase(c *gin.Context) {
	p, ok := s.cfg.Service.GetPurchase(c.Param("id"))
	if !ok {
		writeError(c, tokenmint.NewValidationError("unknown purchase"))
		return
	}
	writeOK(c, p)
}

func writeOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), errorEnvelope(err))
}

func writeErrorWithData(c *gin.Context, err error, data interface{}) {
	envelope := errorEnvelope(err)
	envelope["data"] = data
	c.JSON(statusFor(err), envelope)
}

func errorEnvelope(err error) gin.H {
	var payload interface{}
	if e, ok := err.(*tokenmint.Error); ok {
		payload = e
	} else {
		payload = gin.H{"message": err.Error()}
	}
	return gin.H{"success": false, "error": payload}
}

// statusFor maps error codes onto HTTP statuses.
func statusFor(err error) int {
	switch tokenmint.ErrorCode(err) {
	case tokenmint.ErrCodeValidation:
		return http.StatusBadRequest
	case tokenmint.ErrCodeReplayRejected:
		return http.StatusConflict
	case tokenmint.ErrCodeVerificationRejected, tokenmint.ErrCodeSettlementFailed,
		tokenmint.ErrCodeAllowanceInsufficient, tokenmint.ErrCodeApprovalNotReflected:
		return http.StatusPaymentRequired
	case tokenmint.ErrCodeMintingDisabled:
		return http.StatusForbidden
	case tokenmint.ErrCodeConnectivity, tokenmint.ErrCodeAllEndpointsUnreachable:
		return http.StatusServiceUnavailable
	case "unauthorized":
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
