package analyzer

import (
	"context"
	"strings"
)

// Analysis method constants
const (
	MethodClaude = "Claude"
	MethodCache  = "Cache"
	MethodError  = "Error"
)

// Result is the structured deductibility verdict produced for one image.
type Result struct {
	ProductName          string  `json:"productName"`
	Category             string  `json:"category"`
	IsDeductible         bool    `json:"isDeductible"`
	Confidence           float64 `json:"confidence"`
	Reason               string  `json:"reason"`
	Method               string  `json:"method"`
	RequiresManualReview bool    `json:"requiresManualReview"`
	AdditionalNotes      string  `json:"additionalNotes,omitempty"`
}

// Analyzer turns a product image into a deductibility verdict.
type Analyzer interface {
	Analyze(ctx context.Context, imageBase64, description string) (*Result, error)
}

// CleanBase64 strips a leading "data:image/...;base64," prefix if present.
func CleanBase64(imageBase64 string) string {
	if idx := strings.Index(imageBase64, ","); idx >= 0 && strings.HasPrefix(imageBase64, "data:") {
		return imageBase64[idx+1:]
	}
	return imageBase64
}
