package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const systemPrompt = `You are a strict financial event extractor. Only extract FUTURE events with explicit dates. Respond with JSON only. If in doubt, return {"event_title": null}.`

const userPrompt = `You are a financial event analyst. Extract only an event that is SCHEDULED FOR THE FUTURE from the news item below.

Ticker: %s
News title: %s
News summary: %s

Today: %s
Target window: %s to %s (2 to 6 months ahead)

All of the following must hold:
1. The text uses future tense or a schedule marker: "예정", "계획", "출시 예정", "will", "scheduled", "upcoming", "expected".
2. Events that already happened ("출시했다", "발표했다", "launched", "announced", "revealed") -> return null.
3. A concrete date, month, quarter, half or season must be mentioned ("2025년 3월", "Q2 2025", "상반기", "하반기", "autumn").
4. No date information -> return null.
5. Plain price moves or earnings results are not events -> return null.

Date estimation rules:
- Q1 -> YYYY-02-15, Q2 -> YYYY-05-15, Q3 -> YYYY-08-15, Q4 -> YYYY-11-15
- first half (상반기) -> YYYY-04-01, second half (하반기) -> YYYY-10-01
- spring -> YYYY-04-15, summer -> YYYY-07-15, autumn -> YYYY-10-15, winter -> (YYYY+1)-01-15
- month X -> YYYY-X-15

When a future event is found respond with:
{"event_title": "short event name (max 30 chars)", "event_date": "YYYY-MM-DD", "confidence": 0.8, "event_type": "TYPE_A", "date_source": "the original date expression from the news"}

Otherwise respond with:
{"event_title": null}

Respond with JSON only.`

// LLMOracle judges news items with an OpenAI- or Anthropic-compatible API.
type LLMOracle struct {
	client   *http.Client
	provider string // "openai" or "anthropic"
	model    string
	apiKey   string
	baseURL  string
}

// NewLLMOracle creates a new LLM-backed oracle.
func NewLLMOracle(provider, model, apiKey, baseURL string, timeout time.Duration) *LLMOracle {
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LLMOracle{
		client:   &http.Client{Timeout: timeout},
		provider: provider,
		model:    model,
		apiKey:   apiKey,
		baseURL:  baseURL,
	}
}

// Judge implements Oracle.
func (o *LLMOracle) Judge(ctx context.Context, ticker, title, summary string, today time.Time) (*Judgment, error) {
	if o.apiKey == "" {
		return nil, errors.New("llm api key not configured")
	}

	prompt := fmt.Sprintf(userPrompt, ticker, title, summary,
		today.Format(time.DateOnly),
		today.AddDate(0, 0, MinDaysAhead).Format(time.DateOnly),
		today.AddDate(0, 0, MaxDaysAhead).Format(time.DateOnly))

	var raw string
	var err error

	switch o.provider {
	case "anthropic":
		raw, err = o.callAnthropic(ctx, prompt)
	default:
		raw, err = o.callOpenAI(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}

	return parseJudgment(raw)
}

// parseJudgment decodes the model output, tolerating markdown code fences.
func parseJudgment(raw string) (*Judgment, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw[3:], "\n"); idx >= 0 {
			raw = raw[3+idx+1:]
		} else {
			raw = strings.TrimPrefix(strings.TrimPrefix(raw, "```"), "json")
		}
		raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "```"))
	}

	var j Judgment
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, fmt.Errorf("parse llm response: %w (raw: %s)", err, truncateStr(raw, 200))
	}
	if j.EventTitle == nil {
		return nil, nil
	}
	return &j, nil
}

func (o *LLMOracle) callOpenAI(ctx context.Context, prompt string) (string, error) {
	baseURL := o.baseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	payload := map[string]any{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
		"max_tokens":  250,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openai status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

func (o *LLMOracle) callAnthropic(ctx context.Context, prompt string) (string, error) {
	baseURL := o.baseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	payload := map[string]any{
		"model":      o.model,
		"max_tokens": 250,
		"system":     systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", o.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("anthropic status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("anthropic: no content returned")
	}
	return result.Content[0].Text, nil
}

func truncateStr(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
