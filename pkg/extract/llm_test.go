package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestParseJudgment(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantNil bool
		wantErr bool
	}{
		{"plain", `{"event_title":"Vision Pro 2","event_date":"2027-01-15","confidence":0.8,"event_type":"TYPE_A"}`, false, false},
		{"fenced", "```json\n{\"event_title\":\"Vision Pro 2\",\"event_date\":\"2027-01-15\",\"confidence\":0.8}\n```", false, false},
		{"null title", `{"event_title": null}`, true, false},
		{"garbage", `I cannot answer that`, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := parseJudgment(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (j == nil) != tt.wantNil {
				t.Fatalf("judgment = %+v, wantNil %v", j, tt.wantNil)
			}
			if j != nil && (*j.EventTitle != "Vision Pro 2" || *j.Confidence != 0.8) {
				t.Errorf("judgment = %+v", j)
			}
		})
	}
}

func TestLLMOracleOpenAI(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != "gpt-4o-mini" || len(req.Messages) != 2 {
			t.Errorf("request = %+v", req)
			return
		}
		gotPrompt = req.Messages[1].Content

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{
					"content": "```json\n{\"event_title\":\"HBM4 mass production\",\"event_date\":\"2027-02-15\",\"confidence\":0.75,\"event_type\":\"TYPE_B\",\"date_source\":\"Q1 2027\"}\n```",
				}},
			},
		})
	}))
	defer srv.Close()

	o := NewLLMOracle("openai", "", "sk-test", srv.URL, time.Second)
	j, err := o.Judge(context.Background(), "SK하이닉스", "SK하이닉스 HBM4 양산 예정", "요약", today)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if j == nil || *j.EventTitle != "HBM4 mass production" || j.EventType != "TYPE_B" || j.DateSource != "Q1 2027" {
		t.Fatalf("judgment = %+v", j)
	}

	for _, want := range []string{"SK하이닉스 HBM4 양산 예정", "2026-10-15", "2026-12-14", "2027-04-13"} {
		if !strings.Contains(gotPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestLLMOracleAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ak-test" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic headers")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"text": `{"event_title": null}`}},
		})
	}))
	defer srv.Close()

	o := NewLLMOracle("anthropic", "", "ak-test", srv.URL, time.Second)
	j, err := o.Judge(context.Background(), "AAPL", "Apple shares rise", "", today)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if j != nil {
		t.Errorf("judgment = %+v, want nil", j)
	}
}

func TestLLMOracleErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	if _, err := NewLLMOracle("openai", "", "sk-test", srv.URL, time.Second).
		Judge(context.Background(), "T", "t", "s", today); err == nil {
		t.Error("expected error on non-200")
	}
	if _, err := NewLLMOracle("openai", "", "", srv.URL, time.Second).
		Judge(context.Background(), "T", "t", "s", today); err == nil {
		t.Error("expected error without api key")
	}
}

func TestTruncateStrKeepsRunes(t *testing.T) {
	if got := truncateStr("삼성전자 실적", 3); got != "삼성전..." {
		t.Errorf("truncateStr = %q", got)
	}
	if got := truncateStr("short", 10); got != "short" {
		t.Errorf("truncateStr = %q", got)
	}

	_, err := parseJudgment(strings.Repeat("삼성전자 하반기 발표 ", 40))
	if err == nil {
		t.Fatal("expected parse error for non-JSON output")
	}
	if !utf8.ValidString(err.Error()) {
		t.Errorf("error text split a rune: %q", err.Error())
	}
}
