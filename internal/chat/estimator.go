package chat

import (
	"sync"
)

const (
	initialCharsPerToken = 4.0
	calibrationSmoothing = 0.3
)

// Estimator approximates token counts from character counts. It starts at the
// common 4-chars-per-token ratio and calibrates itself from real provider
// usage reports via an exponential moving average.
type Estimator struct {
	mu            sync.Mutex
	charsPerToken float64
}

// NewEstimator returns an Estimator with the default ratio.
func NewEstimator() *Estimator {
	return &Estimator{charsPerToken: initialCharsPerToken}
}

// Estimate returns the approximate token count for text. Never returns less
// than 1 for non-empty text.
func (e *Estimator) Estimate(text string) int {
	if text == "" {
		return 0
	}

	e.mu.Lock()
	ratio := e.charsPerToken
	e.mu.Unlock()

	n := int(float64(len(text)) / ratio)
	if n < 1 {
		n = 1
	}
	return n
}

// Calibrate folds an observed chars/tokens pair into the running ratio.
func (e *Estimator) Calibrate(chars, tokens int) {
	if chars <= 0 || tokens <= 0 {
		return
	}
	observed := float64(chars) / float64(tokens)

	e.mu.Lock()
	e.charsPerToken = (1-calibrationSmoothing)*e.charsPerToken + calibrationSmoothing*observed
	e.mu.Unlock()
}
