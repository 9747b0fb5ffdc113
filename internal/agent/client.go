package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bhrochdi/parentguard/internal/metrics"
	"github.com/rs/zerolog"
)

// ClientConfig holds parameters for constructing the agent HTTP client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Debug   bool
}

// httpAgent implements Agent over the agent's local JSON API.
type httpAgent struct {
	cfg  ClientConfig
	http *http.Client
	log  zerolog.Logger
}

// NewClient constructs an Agent client. No connection is attempted here:
// the agent may come and go while the daemon runs, and every call is
// individually best-effort at the sync bridge boundary.
func NewClient(cfg ClientConfig, log zerolog.Logger) Agent {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          5,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &httpAgent{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		log: log,
	}
}

func (a *httpAgent) ReplaceRuleSet(ctx context.Context, rs RuleSet) error {
	return a.do(ctx, http.MethodPost, "/api/rules", "replace_rule_set", rs, nil)
}

func (a *httpAgent) StartMonitoring(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/monitor/start", "start_monitoring", nil, nil)
}

func (a *httpAgent) StopMonitoring(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/api/monitor/stop", "stop_monitoring", nil, nil)
}

func (a *httpAgent) BlockSite(ctx context.Context, domain string) error {
	body := map[string]string{"domain": domain}
	return a.do(ctx, http.MethodPost, "/api/sites/block", "block_site", body, nil)
}

func (a *httpAgent) UnblockSite(ctx context.Context, domain string) error {
	body := map[string]string{"domain": domain}
	return a.do(ctx, http.MethodPost, "/api/sites/unblock", "unblock_site", body, nil)
}

func (a *httpAgent) ListActiveProcesses(ctx context.Context) ([]string, error) {
	var out struct {
		Processes []string `json:"processes"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/processes", "list_processes", nil, &out); err != nil {
		return nil, err
	}
	return out.Processes, nil
}

func (a *httpAgent) Ping(ctx context.Context) error {
	return a.do(ctx, http.MethodGet, "/api/ping", "ping", nil, nil)
}

func (a *httpAgent) Close() error {
	a.http.CloseIdleConnections()
	return nil
}

// do executes one agent API call, handling encoding, metrics, and typed
// error translation. Transport failures map to ErrUnavailable.
func (a *httpAgent) do(ctx context.Context, method, path, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", endpoint, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", a.cfg.APIKey)
	}

	if a.cfg.Debug {
		a.log.Debug().Str("method", method).Str("url", req.URL.String()).Msg("agent api request")
	}

	start := time.Now()
	resp, err := a.http.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		metrics.AgentCalls.WithLabelValues(endpoint, "error").Inc()
		return &ErrUnavailable{Cause: err}
	}
	defer resp.Body.Close()

	statusLabel := fmt.Sprintf("%dxx", resp.StatusCode/100)
	metrics.AgentCalls.WithLabelValues(endpoint, statusLabel).Inc()
	metrics.AgentDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &ErrUnauthorized{Msg: readBodyPrefix(resp.Body)}
	case resp.StatusCode >= 400:
		return fmt.Errorf("agent %s returned %d: %s", endpoint, resp.StatusCode, readBodyPrefix(resp.Body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return nil
}

// readBodyPrefix drains up to 512 bytes of a response body for error messages.
func readBodyPrefix(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(bytes.TrimSpace(data))
}
