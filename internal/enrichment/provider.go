// Package enrichment integrates the optional external sentiment analyzer.
// It lives in a separate process; the core talks to it over a narrow JSON
// request/response. Absence is not an error.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

// Provider supplies sentiment context for a symbol. Implementations must
// treat unavailability as a nil summary, not a failure of the engine.
type Provider interface {
	Enrich(ctx context.Context, symbol string) (*domain.SentimentSummary, error)
}

// HTTPProvider calls the analyzer's HTTP endpoint.
type HTTPProvider struct {
	endpoint string
	model    string
	client   *http.Client
	log      *zap.Logger
}

// NewHTTPProvider creates the HTTP enrichment client.
func NewHTTPProvider(endpoint, model string, timeout time.Duration, log *zap.Logger) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPProvider{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

type enrichRequest struct {
	Symbol string `json:"symbol"`
	Model  string `json:"model,omitempty"`
}

type enrichResponse struct {
	Action     string  `json:"action"`
	Sentiment  float64 `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	RiskScore  float64 `json:"risk_score"`
	Rationale  string  `json:"rationale"`
	Model      string  `json:"model"`
}

// Enrich requests a summary. Transport failures return (nil, nil): the
// enrichment is optional and strategies proceed without it.
func (p *HTTPProvider) Enrich(ctx context.Context, symbol string) (*domain.SentimentSummary, error) {
	body, err := json.Marshal(enrichRequest{Symbol: symbol, Model: p.model})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("enrichment unavailable", zap.Error(err))
		return nil, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		p.log.Debug("enrichment unavailable",
			zap.Int("status", resp.StatusCode), zap.Error(err))
		return nil, nil
	}

	var parsed enrichResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: enrichment: %v", domain.ErrParse, err)
	}

	return &domain.SentimentSummary{
		Symbol:     symbol,
		Action:     parsed.Action,
		Sentiment:  parsed.Sentiment,
		Confidence: parsed.Confidence,
		RiskScore:  parsed.RiskScore,
		Rationale:  parsed.Rationale,
		Model:      parsed.Model,
		CreatedAt:  time.Now(),
	}, nil
}

var _ Provider = (*HTTPProvider)(nil)
