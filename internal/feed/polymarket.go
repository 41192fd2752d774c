package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"WhaleSentinel/internal/model"

	"golang.org/x/time/rate"
)

// PolymarketSource implements Source using the Polymarket data API.
// Outbound requests are rate limited so a large tracked-account set
// does not trip the API's abuse limits.
type PolymarketSource struct {
	BaseURL string
	Client  *http.Client
	limiter *rate.Limiter
}

// NewPolymarketSource creates a data-API source with optional proxy support.
func NewPolymarketSource(baseURL, proxyURL string, requestsPerSec float64) *PolymarketSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if requestsPerSec <= 0 {
		requestsPerSec = 5
	}
	return &PolymarketSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), 1),
	}
}

func (p *PolymarketSource) Name() string { return "polymarket-data-api" }

// apiTrade is the data-API trade shape.
type apiTrade struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"`
	ConditionID     string  `json:"conditionId"`
	OutcomeIndex    int     `json:"outcomeIndex"`
	Outcome         string  `json:"outcome"`
	Title           string  `json:"title"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	USDCSize        float64 `json:"usdcSize"`
	Timestamp       int64   `json:"timestamp"` // Unix seconds
	TransactionHash string  `json:"transactionHash"`
}

// apiPosition is the data-API position shape.
type apiPosition struct {
	ConditionID     string  `json:"conditionId"`
	OutcomeIndex    int     `json:"outcomeIndex"`
	Outcome         string  `json:"outcome"`
	OppositeOutcome string  `json:"oppositeOutcome"`
	Title           string  `json:"title"`
	Size            float64 `json:"size"`
	TotalBought     float64 `json:"totalBought"`
	AvgPrice        float64 `json:"avgPrice"`
	CurPrice        float64 `json:"curPrice"`
	PercentPnl      float64 `json:"percentPnl"`
	RealizedPnl     float64 `json:"realizedPnl"`
}

func (p *PolymarketSource) ListRecentTrades(ctx context.Context, wallet string, limit int) ([]model.RawTrade, error) {
	if limit <= 0 {
		limit = 100
	}
	endpoint := fmt.Sprintf("%s/trades?user=%s&limit=%d&takerOnly=true", p.BaseURL, url.QueryEscape(wallet), limit)

	var raw []apiTrade
	if err := p.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}

	trades := make([]model.RawTrade, 0, len(raw))
	for _, t := range raw {
		usd := t.USDCSize
		if usd == 0 {
			usd = t.Size * t.Price
		}
		trades = append(trades, model.RawTrade{
			Wallet:          wallet,
			Side:            model.TradeSide(t.Side),
			ConditionID:     t.ConditionID,
			OutcomeIndex:    t.OutcomeIndex,
			Outcome:         t.Outcome,
			Title:           t.Title,
			Size:            t.Size,
			Price:           t.Price,
			USDValue:        usd,
			Timestamp:       time.Unix(t.Timestamp, 0),
			TransactionHash: t.TransactionHash,
		})
	}
	// Ensure chronological order; the API returns newest-first.
	sort.Slice(trades, func(i, j int) bool { return trades[i].Timestamp.Before(trades[j].Timestamp) })
	return trades, nil
}

func (p *PolymarketSource) ListOpenPositions(ctx context.Context, wallet string, conditionIDs []string) ([]OpenPosition, error) {
	endpoint := fmt.Sprintf("%s/positions?user=%s", p.BaseURL, url.QueryEscape(wallet))
	if len(conditionIDs) > 0 {
		endpoint += "&market=" + url.QueryEscape(strings.Join(conditionIDs, ","))
	}

	var raw []apiPosition
	if err := p.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}

	out := make([]OpenPosition, 0, len(raw))
	for _, pos := range raw {
		if pos.Size <= 0 {
			continue
		}
		out = append(out, OpenPosition{
			ConditionID:  pos.ConditionID,
			OutcomeIndex: pos.OutcomeIndex,
			Outcome:      pos.Outcome,
			Title:        pos.Title,
			Size:         pos.Size,
			AvgPrice:     pos.AvgPrice,
			CurPrice:     pos.CurPrice,
			PercentPnl:   pos.PercentPnl,
		})
	}
	return out, nil
}

func (p *PolymarketSource) ListClosedPositions(ctx context.Context, wallet string, conditionIDs []string) ([]ClosedPosition, error) {
	endpoint := fmt.Sprintf("%s/closed-positions?user=%s", p.BaseURL, url.QueryEscape(wallet))
	if len(conditionIDs) > 0 {
		endpoint += "&market=" + url.QueryEscape(strings.Join(conditionIDs, ","))
	}

	var raw []apiPosition
	if err := p.getJSON(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("list closed positions: %w", err)
	}

	out := make([]ClosedPosition, 0, len(raw))
	for _, pos := range raw {
		out = append(out, ClosedPosition{
			ConditionID:     pos.ConditionID,
			OutcomeIndex:    pos.OutcomeIndex,
			Outcome:         pos.Outcome,
			OppositeOutcome: pos.OppositeOutcome,
			Title:           pos.Title,
			TotalBought:     pos.TotalBought,
			AvgPrice:        pos.AvgPrice,
			RealizedPnl:     pos.RealizedPnl,
		})
	}
	return out, nil
}

func (p *PolymarketSource) getJSON(ctx context.Context, endpoint string, dst any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
