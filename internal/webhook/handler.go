package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"whatsapp-hub/internal/config"
	"whatsapp-hub/pkg/models"
)

type Handler struct {
	Config *config.Config
	Router *Router
	log    *zap.Logger
}

func NewHandler(cfg *config.Config, router *Router, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Config: cfg,
		Router: router,
		log:    logger,
	}
}

// VerifyWebhook answers the provider's subscription handshake.
func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "" && token != "" {
		if mode == "subscribe" && token == h.Config.VerifyToken {
			h.log.Info("webhook verified")
			c.String(http.StatusOK, challenge)
		} else {
			c.Status(http.StatusForbidden)
		}
	} else {
		c.Status(http.StatusBadRequest)
	}
}

// HandleEvent ingests a provider webhook delivery. The provider expects a
// fast 200; routing failures are operational telemetry and are never
// surfaced back.
func (h *Handler) HandleEvent(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	if ok, reason := h.verifySignature(c, raw); !ok {
		h.log.Warn("webhook signature rejected", zap.String("reason", reason))
		c.Status(http.StatusForbidden)
		return
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.log.Warn("malformed webhook payload", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	c.String(http.StatusOK, "EVENT_RECEIVED")

	for _, ev := range models.ParseEvents(payload) {
		if _, err := h.Router.Route(ev); err != nil {
			h.log.Error("webhook event routing failed",
				zap.String("kind", string(ev.Kind)),
				zap.String("phone_number_id", ev.PhoneNumberID),
				zap.Error(err))
		}
	}
}

// verifySignature validates the raw body against X-Hub-Signature-256.
// With no app secret configured the check is skipped, which keeps local
// development working without provider credentials.
func (h *Handler) verifySignature(c *gin.Context, rawBody []byte) (bool, string) {
	secret := strings.TrimSpace(h.Config.AppSecret)
	if secret == "" {
		return true, ""
	}

	sig := strings.TrimSpace(c.GetHeader("X-Hub-Signature-256"))
	if sig == "" {
		return false, "missing X-Hub-Signature-256"
	}
	if !strings.HasPrefix(sig, "sha256=") {
		return false, "invalid X-Hub-Signature-256 format"
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return false, "invalid signature hex"
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return false, "signature mismatch"
	}

	return true, ""
}
