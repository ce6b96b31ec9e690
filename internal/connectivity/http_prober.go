package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPProber считает сеть доступной, если по адресу отвечает хоть что-то, кроме 5xx.
type HTTPProber struct {
	url        string
	httpClient *http.Client
}

// NewHTTPProber создает проверку доступности по HEAD-запросу к url.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe request failed: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}
