package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// listEndpoints maps a provider name to its model-list URL. A GET with a
// Bearer token is the cheapest call that proves the key works.
var listEndpoints = map[string]string{
	"groq":        "https://api.groq.com/openai/v1/models",
	"openrouter":  "https://openrouter.ai/api/v1/models",
	"cerebras":    "https://api.cerebras.ai/v1/models",
	"together":    "https://api.together.xyz/v1/models",
	"mistral":     "https://api.mistral.ai/v1/models",
	"cohere":      "https://api.cohere.com/v1/models",
	"huggingface": "https://huggingface.co/api/whoami-v2",
}

type ProbeResult struct {
	Success   bool
	Skipped   bool
	Message   string
	ElapsedMs int64
}

// Status maps the result onto the three stored test states.
func (r ProbeResult) Status() string {
	switch {
	case r.Skipped:
		return "unknown"
	case r.Success:
		return "success"
	default:
		return "failed"
	}
}

type Prober struct {
	client    *http.Client
	endpoints map[string]string
}

func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Prober{
		client:    &http.Client{Timeout: timeout},
		endpoints: listEndpoints,
	}
}

// Probe checks connectivity for one provider key with a single attempt.
// Callers must not hold storage locks across this call.
func (p *Prober) Probe(ctx context.Context, name, key string) ProbeResult {
	endpoint, ok := p.endpoints[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return ProbeResult{Skipped: true, Message: "no test endpoint for this provider"}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ProbeResult{Message: fmt.Sprintf("build request: %v", err), ElapsedMs: elapsedMs(start)}
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := p.client.Do(req)
	if err != nil {
		return ProbeResult{Message: truncate(err.Error(), 100), ElapsedMs: elapsedMs(start)}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	elapsed := elapsedMs(start)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return ProbeResult{Success: true, Message: "Working!", ElapsedMs: elapsed}
	case resp.StatusCode == http.StatusUnauthorized:
		return ProbeResult{Message: "Invalid API key", ElapsedMs: elapsed}
	default:
		return ProbeResult{Message: fmt.Sprintf("HTTP %d", resp.StatusCode), ElapsedMs: elapsed}
	}
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
