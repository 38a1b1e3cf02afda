package events

import (
	"encoding/json"
	"fmt"
	"time"

	"expense-validation-svc/src/internal/config"
	"expense-validation-svc/src/internal/validation"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// ValidationCompletedMessage is published after every completed analysis so
// downstream consumers (reporting, notifications) can react.
type ValidationCompletedMessage struct {
	ValidationID         string    `json:"validation_id"`
	SessionID            string    `json:"session_id"`
	ProductName          string    `json:"product_name"`
	Category             string    `json:"category"`
	IsDeductible         bool      `json:"is_deductible"`
	Confidence           float64   `json:"confidence"`
	AnalysisMethod       string    `json:"analysis_method"`
	RequiresManualReview bool      `json:"requires_manual_review"`
	Timestamp            time.Time `json:"timestamp"`
}

type publisher struct {
	channel *amqp.Channel
	cfg     *config.RabbitMQConfig
}

// NewPublisher returns an EventPublisher backed by RabbitMQ.
func NewPublisher(channel *amqp.Channel, cfg *config.Configuration) validation.EventPublisher {
	return &publisher{
		channel: channel,
		cfg:     &cfg.Queue.RabbitMQ,
	}
}

func (p *publisher) PublishValidationCompleted(sessionID string, verdict *validation.Verdict) error {
	message := ValidationCompletedMessage{
		ValidationID:         verdict.ValidationID,
		SessionID:            sessionID,
		ProductName:          verdict.ProductName,
		Category:             verdict.Category,
		IsDeductible:         verdict.IsDeductible,
		Confidence:           verdict.Confidence,
		AnalysisMethod:       verdict.AnalysisMethod,
		RequiresManualReview: verdict.RequiresManualReview,
		Timestamp:            time.Now().UTC(),
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal validation message: %w", err)
	}

	err = p.channel.Publish(
		p.cfg.Exchange,
		p.cfg.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish validation message: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"validation_id": verdict.ValidationID,
		"session_id":    sessionID,
		"exchange":      p.cfg.Exchange,
		"routing_key":   p.cfg.RoutingKey,
	}).Debug("Validation message published")

	return nil
}
