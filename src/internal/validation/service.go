package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"expense-validation-svc/src/internal/analyzer"
	"expense-validation-svc/src/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Thumbnails are a bounded truncation of the input, not a true resize.
const thumbnailMaxChars = 70000

// VerdictCache is a fast-path lookup keyed by image digest; a hit skips the
// Analyzer entirely.
type VerdictCache interface {
	GetVerdict(ctx context.Context, digest string) (*Verdict, error)
	SaveVerdict(ctx context.Context, digest string, verdict *Verdict) error
}

// EventPublisher pushes completed validations to downstream consumers.
// Best-effort: failures are logged, never surfaced.
type EventPublisher interface {
	PublishValidationCompleted(sessionID string, verdict *Verdict) error
}

// AuditRepository persists completed verdicts for reporting.
type AuditRepository interface {
	Insert(ctx context.Context, record *AuditRecord) error
	ListRecent(ctx context.Context, limit int) ([]*AuditRecord, error)
}

// AuditRecord is the persisted projection of a completed verdict.
type AuditRecord struct {
	ValidationID         string    `json:"validationId" bson:"validation_id"`
	SessionID            string    `json:"sessionId" bson:"session_id"`
	ProductName          string    `json:"productName" bson:"product_name"`
	Category             string    `json:"category" bson:"category"`
	IsDeductible         bool      `json:"isDeductible" bson:"is_deductible"`
	Confidence           float64   `json:"confidence" bson:"confidence"`
	Reason               string    `json:"reason" bson:"reason"`
	AnalysisMethod       string    `json:"analysisMethod" bson:"analysis_method"`
	RequiresManualReview bool      `json:"requiresManualReview" bson:"requires_manual_review"`
	CreatedAt            time.Time `json:"createdAt" bson:"created_at"`
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	SessionID   string `json:"sessionId"`
	ImageBase64 string `json:"imageBase64"`
	Description string `json:"description,omitempty"`
}

type Service interface {
	Analyze(ctx context.Context, req *AnalyzeRequest) (*Verdict, error)
	ActiveSessions() []*Info
	RecentValidations(ctx context.Context, limit int) ([]*AuditRecord, error)
}

type validationService struct {
	store     *Store
	hub       *Hub
	analyzer  analyzer.Analyzer
	cache     VerdictCache
	publisher EventPublisher
	audit     AuditRepository
}

func NewValidationService(store *Store, hub *Hub, az analyzer.Analyzer,
	cache VerdictCache, publisher EventPublisher, audit AuditRepository) Service {
	return &validationService{
		store:     store,
		hub:       hub,
		analyzer:  az,
		cache:     cache,
		publisher: publisher,
		audit:     audit,
	}
}

// Analyze runs the full pipeline for one image: mark the session processing,
// resolve a verdict (cache, Analyzer, or manual-review fallback), fan it out
// to both devices, and record it downstream. The verdict is also returned so
// the HTTP caller gets the same payload the push channel delivers.
func (s *validationService) Analyze(ctx context.Context, req *AnalyzeRequest) (*Verdict, error) {
	if strings.TrimSpace(req.ImageBase64) == "" {
		return nil, models.ErrInvalidImage
	}

	if _, err := s.store.TouchProcessing(req.SessionID); err != nil {
		return nil, err
	}

	s.hub.NotifyProcessing(req.SessionID)

	cleaned := analyzer.CleanBase64(req.ImageBase64)
	verdict := s.resolveVerdict(ctx, cleaned, req.Description)
	verdict.ThumbnailBase64 = thumbnail(cleaned)

	if err := s.hub.SendResult(req.SessionID, verdict); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"session_id":   req.SessionID,
		"product_name": verdict.ProductName,
		"deductible":   verdict.IsDeductible,
		"method":       verdict.AnalysisMethod,
	}).Info("Analysis completed")

	if err := s.publisher.PublishValidationCompleted(req.SessionID, verdict); err != nil {
		logrus.WithError(err).WithField("session_id", req.SessionID).Error("Failed to publish validation event")
	}

	if err := s.audit.Insert(ctx, auditRecord(req.SessionID, verdict)); err != nil {
		logrus.WithError(err).WithField("session_id", req.SessionID).Error("Failed to record validation audit entry")
	}

	return verdict, nil
}

// resolveVerdict tries the cache, then the Analyzer. An Analyzer failure is
// converted into a manual-review verdict; the raw error never reaches a
// client.
func (s *validationService) resolveVerdict(ctx context.Context, cleaned, description string) *Verdict {
	digest := imageDigest(cleaned)

	cached, err := s.cache.GetVerdict(ctx, digest)
	if err == nil && cached != nil {
		logrus.WithField("digest", digest).Debug("Verdict cache hit")
		verdict := *cached
		verdict.ValidationID = uuid.New().String()
		verdict.Timestamp = time.Now().UTC()
		verdict.AnalysisMethod = analyzer.MethodCache
		return &verdict
	}

	result, err := s.analyzer.Analyze(ctx, cleaned, description)
	if err != nil {
		logrus.WithError(err).Error("Product analysis failed")
		return &Verdict{
			ValidationID:         uuid.New().String(),
			ProductName:          "Analysis error",
			Category:             "Unknown",
			IsDeductible:         false,
			Confidence:           0,
			Reason:               "The image could not be analyzed",
			Timestamp:            time.Now().UTC(),
			AnalysisMethod:       analyzer.MethodError,
			RequiresManualReview: true,
			AdditionalNotes:      "Please try again or perform a manual review.",
		}
	}

	verdict := &Verdict{
		ValidationID:         uuid.New().String(),
		ProductName:          result.ProductName,
		Category:             result.Category,
		IsDeductible:         result.IsDeductible,
		Confidence:           result.Confidence,
		Reason:               result.Reason,
		Timestamp:            time.Now().UTC(),
		AnalysisMethod:       result.Method,
		RequiresManualReview: result.RequiresManualReview,
		AdditionalNotes:      result.AdditionalNotes,
	}

	if err := s.cache.SaveVerdict(ctx, digest, verdict); err != nil {
		logrus.WithError(err).Debug("Failed to cache verdict")
	}

	return verdict
}

func (s *validationService) ActiveSessions() []*Info {
	return s.store.Snapshot()
}

func (s *validationService) RecentValidations(ctx context.Context, limit int) ([]*AuditRecord, error) {
	return s.audit.ListRecent(ctx, limit)
}

func auditRecord(sessionID string, v *Verdict) *AuditRecord {
	return &AuditRecord{
		ValidationID:         v.ValidationID,
		SessionID:            sessionID,
		ProductName:          v.ProductName,
		Category:             v.Category,
		IsDeductible:         v.IsDeductible,
		Confidence:           v.Confidence,
		Reason:               v.Reason,
		AnalysisMethod:       v.AnalysisMethod,
		RequiresManualReview: v.RequiresManualReview,
		CreatedAt:            time.Now().UTC(),
	}
}

func imageDigest(cleaned string) string {
	sum := sha256.Sum256([]byte(cleaned))
	return hex.EncodeToString(sum[:])
}

func thumbnail(cleaned string) string {
	if len(cleaned) > thumbnailMaxChars {
		return cleaned[:thumbnailMaxChars]
	}
	return cleaned
}
