package middleware

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/bryanwahyu/trapscan/internal/domain/ai"
	"github.com/bryanwahyu/trapscan/internal/domain/usage"
)

// Input validation and sanitization utilities

// ValidateURL accepts absolute http(s) URLs.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// ValidateFetchURL is ValidateURL plus SSRF protection, for URLs the daemon
// fetches itself.
func ValidateFetchURL(rawURL string) error {
	if err := ValidateURL(rawURL); err != nil {
		return err
	}
	u, _ := url.Parse(rawURL)
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("localhost/internal IPs are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return fmt.Errorf("localhost/internal IPs are not allowed")
		}
		if ip.IsPrivate() {
			return fmt.Errorf("private IP ranges are not allowed")
		}
	}
	return nil
}

// ValidateAnalysisMode accepts the empty mode, meaning the saved setting.
func ValidateAnalysisMode(mode string) error {
	if mode == "" {
		return nil
	}
	_, err := ai.ParseMode(strings.ToLower(mode))
	return err
}

func ValidateTier(tier string) (usage.Tier, error) {
	return usage.ParseTier(strings.ToLower(strings.TrimSpace(tier)))
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// ValidateDays clamps the history summary window.
func ValidateDays(days int) int {
	if days <= 0 {
		return 30
	}
	if days > 365 {
		return 365
	}
	return days
}
