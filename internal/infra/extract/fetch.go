package extract

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
)

const maxPageBytes = 4 << 20

// Fetcher downloads pages for extraction.
type Fetcher struct {
	HTTP      *http.Client
	UserAgent string
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{
		HTTP: &http.Client{
			Transport: &http.Transport{
				Proxy:        http.ProxyFromEnvironment,
				MaxIdleConns: 20,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
			Timeout: timeout,
		},
		UserAgent: "trapscan/1.0 (+https://github.com/bryanwahyu/trapscan)",
	}
}

// Fetch downloads pageURL and returns its raw HTML.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, "invalid url", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.HTTP.Do(req)
	if err != nil {
		kind := apperr.KindOf(err)
		if kind == apperr.KindUnknown {
			kind = apperr.KindNetwork
		}
		return nil, apperr.Wrap(kind, "fetch page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		kind := apperr.KindNetwork
		if resp.StatusCode == http.StatusNotFound {
			kind = apperr.KindNotFound
		}
		return nil, &apperr.Error{Kind: kind, Message: fmt.Sprintf("fetch page: status %d", resp.StatusCode), Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, "read page", err)
	}
	return body, nil
}

// FetchPage downloads and extracts in one step.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string, opts Options) (Page, error) {
	html, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return Page{}, err
	}
	return Extract(html, pageURL, opts)
}

// FetchText returns only the extracted text, for change detection.
func (f *Fetcher) FetchText(ctx context.Context, pageURL string) (string, error) {
	p, err := f.FetchPage(ctx, pageURL, Options{})
	if err != nil {
		return "", err
	}
	return p.Text, nil
}
