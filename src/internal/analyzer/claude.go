package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"expense-validation-svc/src/internal/config"

	"github.com/sirupsen/logrus"
)

const policyPrompt = `Analyze this product and determine whether it is a deductible expense under the following business policies:

DEDUCTIBLE EXPENSES:
- Bottled water and basic coffee
- Office supplies (stationery, folders, etc.)
- Work technology (up to $5,000 MXN): cables, chargers, USB drives, keyboards, mice
- Work-related transport (ride hailing, taxis, fuel)
- Business meals (no luxury restaurants)

NON-DEDUCTIBLE EXPENSES:
- Alcohol of any kind
- Expensive or luxury restaurants
- Personal entertainment (cinema, video games, etc.)
- Luxury or personal items
- Fast food and snacks (unless a formal business meal)
- Expensive technology (>$5,000 MXN)

Respond ONLY with a JSON object in the following format:
{
  "productName": "name of the identified product",
  "category": "main category (Food, Technology, Transport, Office, etc.)",
  "subcategory": "optional subcategory",
  "isDeductible": true or false,
  "confidence": 0.0 to 1.0,
  "reason": "clear explanation of why it is or is not deductible",
  "estimatedPrice": null or estimated price if visible
}`

// Verdicts below this confidence are flagged for manual review.
const manualReviewThreshold = 0.7

// ClaudeAnalyzer implements Analyzer against the Claude Vision API.
type ClaudeAnalyzer struct {
	cfg        *config.ClaudeConfig
	httpClient *http.Client
}

func NewClaudeAnalyzer(cfg *config.Configuration) *ClaudeAnalyzer {
	return &ClaudeAnalyzer{
		cfg: &cfg.Claude,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Claude.Timeout) * time.Second,
		},
	}
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string        `json:"role"`
	Content []interface{} `json:"content"`
}

type claudeImageBlock struct {
	Type   string            `json:"type"`
	Source claudeImageSource `json:"source"`
}

type claudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type visionVerdict struct {
	ProductName  string  `json:"productName"`
	Category     string  `json:"category"`
	Subcategory  string  `json:"subcategory,omitempty"`
	IsDeductible bool    `json:"isDeductible"`
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason"`
}

func (a *ClaudeAnalyzer) Analyze(ctx context.Context, imageBase64, description string) (*Result, error) {
	prompt := policyPrompt
	if description != "" {
		prompt += "\n\nAdditional description provided by the user: " + description
	}

	body := claudeRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		Messages: []claudeMessage{
			{
				Role: "user",
				Content: []interface{}{
					claudeImageBlock{
						Type: "image",
						Source: claudeImageSource{
							Type:      "base64",
							MediaType: "image/jpeg",
							Data:      CleanBase64(imageBase64),
						},
					},
					claudeTextBlock{
						Type: "text",
						Text: prompt,
					},
				},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.ApiUrl, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.cfg.ApiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	logrus.WithField("model", a.cfg.Model).Debug("Sending analysis request to Claude API")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Claude API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Claude response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(respBody),
		}).Error("Claude API returned error")
		return nil, fmt.Errorf("claude API returned status %d", resp.StatusCode)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode Claude response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return nil, fmt.Errorf("claude response contained no content")
	}

	verdict, err := extractVerdict(parsed.Content[0].Text)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ProductName:          verdict.ProductName,
		Category:             verdict.Category,
		IsDeductible:         verdict.IsDeductible,
		Confidence:           verdict.Confidence,
		Reason:               verdict.Reason,
		Method:               MethodClaude,
		RequiresManualReview: verdict.Confidence < manualReviewThreshold,
	}
	if verdict.Subcategory != "" {
		result.AdditionalNotes = "Subcategory: " + verdict.Subcategory
	}

	logrus.WithFields(logrus.Fields{
		"product_name": result.ProductName,
		"deductible":   result.IsDeductible,
		"confidence":   result.Confidence,
	}).Info("Product categorized by Claude")

	return result, nil
}

// extractVerdict pulls the JSON object out of the model's text reply; the
// reply may wrap it in prose.
func extractVerdict(text string) (*visionVerdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in Claude response")
	}

	var verdict visionVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("failed to parse verdict JSON: %w", err)
	}
	return &verdict, nil
}
