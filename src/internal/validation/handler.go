package validation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expense-validation-svc/src/internal/config"
	"expense-validation-svc/src/internal/models"
	"expense-validation-svc/src/internal/qr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Handler interface {
	CreateSession(c *gin.Context)
	GetSession(c *gin.Context)
	Analyze(c *gin.Context)
	GetActiveSessions(c *gin.Context)
	GetRecentValidations(c *gin.Context)
}

type handler struct {
	config   *config.Configuration
	service  Service
	store    *Store
	renderer qr.Renderer
}

func NewHandler(cfg *config.Configuration, service Service, store *Store, renderer qr.Renderer) Handler {
	return &handler{
		config:   cfg,
		service:  service,
		store:    store,
		renderer: renderer,
	}
}

// SessionResponse is the bootstrap payload for a fresh pairing session. The
// session is not registered in the store yet; that happens when the admin
// client sends createSession over the pairing channel.
type SessionResponse struct {
	SessionID    string    `json:"sessionId"`
	QrCodeBase64 string    `json:"qrCodeBase64"`
	MobileUrl    string    `json:"mobileUrl"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ErrorResponse is the structured error envelope; mobile clients render the
// suggested action directly.
type ErrorResponse struct {
	ErrorCode       string    `json:"errorCode"`
	Message         string    `json:"message"`
	SessionID       string    `json:"sessionId,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	IsRecoverable   bool      `json:"isRecoverable"`
	SuggestedAction string    `json:"suggestedAction,omitempty"`
}

func (h *handler) CreateSession(c *gin.Context) {
	sessionID := strings.ReplaceAll(uuid.New().String(), "-", "")

	logrus.WithField("session_id", sessionID).Info("Creating validation session")

	mobileUrl := fmt.Sprintf("%s%s?session=%s", h.config.App.BaseUrl, h.config.Session.MobilePath, sessionID)

	qrImage, err := h.renderer.Render(mobileUrl)
	if err != nil {
		logrus.WithError(err).Error("Failed to generate QR code")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			ErrorCode:       "CREATE_SESSION_ERROR",
			Message:         "Failed to create the validation session",
			Timestamp:       time.Now().UTC(),
			IsRecoverable:   true,
			SuggestedAction: "Please try again",
		})
		return
	}

	now := time.Now().UTC()
	c.JSON(http.StatusOK, SessionResponse{
		SessionID:    sessionID,
		QrCodeBase64: base64.StdEncoding.EncodeToString(qrImage),
		MobileUrl:    mobileUrl,
		Status:       StatusCreated,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(h.config.Session.ExpirationMinutes) * time.Minute),
	})
}

func (h *handler) GetSession(c *gin.Context) {
	sessionID := c.Param("id")

	logrus.WithField("session_id", sessionID).Debug("Session lookup requested")

	session, err := h.store.Get(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			ErrorCode:       CodeSessionNotFound,
			Message:         "Session not found",
			SessionID:       sessionID,
			Timestamp:       time.Now().UTC(),
			IsRecoverable:   false,
			SuggestedAction: "Scan a new QR code",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID,
		"exists":    true,
		"status":    session.Status(),
		"message":   "Session found",
	})
}

func (h *handler) Analyze(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Duration(h.config.App.Timeout)*time.Second)
	defer cancel()

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.analyzeError(c, http.StatusBadRequest, &req, CodeInvalidImage,
			"Invalid request body", "Please take a photo of the product")
		return
	}

	logrus.WithField("session_id", req.SessionID).Info("Analyzing product")

	verdict, err := h.service.Analyze(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidImage):
			h.analyzeError(c, http.StatusBadRequest, &req, CodeInvalidImage,
				"An image is required", "Please take a photo of the product")
		case errors.Is(err, models.ErrSessionNotFound):
			h.analyzeError(c, http.StatusNotFound, &req, CodeSessionNotFound,
				"Session not found", "Scan a new QR code")
		default:
			logrus.WithError(err).WithField("session_id", req.SessionID).Error("Failed to analyze product")
			h.analyzeError(c, http.StatusInternalServerError, &req, "ANALYSIS_ERROR",
				"Failed to analyze the product", "Please try again with another image")
		}
		return
	}

	c.JSON(http.StatusOK, verdict)
}

func (h *handler) analyzeError(c *gin.Context, status int, req *AnalyzeRequest, code, message, action string) {
	c.JSON(status, ErrorResponse{
		ErrorCode:       code,
		Message:         message,
		SessionID:       req.SessionID,
		Timestamp:       time.Now().UTC(),
		IsRecoverable:   status != http.StatusNotFound,
		SuggestedAction: action,
	})
}

func (h *handler) GetActiveSessions(c *gin.Context) {
	userID, _ := c.Get("user_id")
	logrus.WithField("admin_user_id", userID).Debug("Admin listing active sessions")

	sessions := h.service.ActiveSessions()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    sessions,
		"message": "Active sessions retrieved successfully",
	})
}

func (h *handler) GetRecentValidations(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Duration(h.config.App.Timeout)*time.Second)
	defer cancel()

	limit := parseIntParam(c, "limit", 50)

	records, err := h.service.RecentValidations(ctx, limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to list recent validations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to retrieve validations",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    records,
		"message": "Validations retrieved successfully",
	})
}

func parseIntParam(c *gin.Context, param string, defaultValue int) int {
	value := c.Query(param)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"param": param,
			"value": value,
		}).Warn("Invalid integer parameter, using default")
		return defaultValue
	}
	return parsed
}
