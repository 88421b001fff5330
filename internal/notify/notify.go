// Package notify posts a run summary to chat and webhook sinks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/devblac/cctp-stats/internal/config"
	"github.com/shopspring/decimal"
)

const defaultTemplate = `CCTP fetch {{.RunID}}: {{count .Transfers}} transfers, ${{usd .TotalUSD}}
{{- range .Chains}}
{{.Chain}}: {{count .Transfers}} transfers, ${{usd .TotalUSD}}{{if .Truncated}} (truncated){{end}}
{{- end}}`

// RunSummary is the data passed to sink templates.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Transfers  int
	TotalUSD   decimal.Decimal
	Chains     []ChainSummary
}

// ChainSummary is one chain's line in a run summary.
type ChainSummary struct {
	Chain        cctp.Chain
	NativeSymbol string
	Transfers    int
	TotalUSD     decimal.Decimal
	TotalFee     decimal.Decimal
	Truncated    bool
}

// Truncated lists chains whose pagination stopped early.
func (s RunSummary) Truncated() []cctp.Chain {
	var out []cctp.Chain
	for _, c := range s.Chains {
		if c.Truncated {
			out = append(out, c.Chain)
		}
	}
	return out
}

type Sender interface {
	Send(ctx context.Context, summary RunSummary) (int, error)
}

type httpSender struct {
	url     string
	method  string
	render  *template.Template
	client  *http.Client
	headers map[string]string
}

// NewWebhookSender builds a generic HTTP sink.
func NewWebhookSender(url, method, tmpl string, headers map[string]string) (Sender, error) {
	if url == "" {
		return nil, errors.New("webhook url required")
	}
	if method == "" {
		method = http.MethodPost
	}
	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	return &httpSender{
		url:     url,
		method:  strings.ToUpper(method),
		render:  t,
		client:  defaultClient(),
		headers: headers,
	}, nil
}

// NewSlackSender builds a Slack-compatible webhook sink.
func NewSlackSender(url, tmpl string) (Sender, error) {
	return NewWebhookSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

// NewTeamsSender builds a Teams-compatible webhook sink.
func NewTeamsSender(url, tmpl string) (Sender, error) {
	// Teams accepts simple {text: "..."} payloads.
	return NewWebhookSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

// FromConfig builds one sender per configured sink, keyed by sink id.
func FromConfig(sinks []config.Sink) (map[string]Sender, error) {
	out := make(map[string]Sender, len(sinks))
	for _, s := range sinks {
		var (
			sender Sender
			err    error
		)
		switch strings.ToLower(s.Type) {
		case "slack":
			sender, err = NewSlackSender(s.WebhookURL, s.Template)
		case "teams":
			sender, err = NewTeamsSender(s.WebhookURL, s.Template)
		case "webhook":
			sender, err = NewWebhookSender(s.URL, s.Method, s.Template, nil)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", s.ID, err)
		}
		out[s.ID] = sender
	}
	return out, nil
}

// Send renders the template and posts it as {"text": ...}. It returns the response status code.
func (s *httpSender) Send(ctx context.Context, summary RunSummary) (int, error) {
	bodyStr, err := executeTemplate(s.render, summary)
	if err != nil {
		return 0, err
	}
	reqBody, err := json.Marshal(map[string]string{
		"text": bodyStr,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("sink http status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func parseTemplate(tmpl string) (*template.Template, error) {
	if tmpl == "" {
		tmpl = defaultTemplate
	}
	funcs := template.FuncMap{
		"pretty_json": func(v any) string {
			out, _ := json.MarshalIndent(v, "", "  ")
			return string(out)
		},
		"usd":   cctp.FormatUSD,
		"count": func(n int) string { return cctp.FormatCount(int64(n)) },
		"fee":   func(d decimal.Decimal) string { return d.StringFixed(8) },
	}
	t, err := template.New("msg").Funcs(funcs).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return t, nil
}

func executeTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 8 * time.Second,
	}
}
