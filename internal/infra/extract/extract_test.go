package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
)

func longParagraph() string {
	return strings.Repeat("By using the service you agree to these terms. ", 15)
}

func TestExtractPrefersMainContent(t *testing.T) {
	html := `<html><head><title>Terms of Service</title><style>p{}</style></head><body>
<nav>Home | Pricing</nav>
<div class="cookie-banner">We use cookies</div>
<main><h1>Terms</h1><p>` + longParagraph() + `</p>
<ol><li>First rule</li><li>Second rule</li></ol>
<ul><li>Bullet</li></ul>
<script>alert(1)</script><p hidden>secret</p></main>
<footer>Copyright</footer></body></html>`

	p, err := Extract([]byte(html), "https://example.com/terms", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Terms of Service", p.Title)
	assert.Equal(t, "example.com", p.Domain)
	assert.True(t, strings.HasPrefix(p.Text, "Terms of Service\n\nTerms\n"))
	assert.Contains(t, p.Text, "1. First rule\n2. Second rule")
	assert.Contains(t, p.Text, "• Bullet")
	for _, gone := range []string{"Home | Pricing", "cookies", "alert", "secret", "Copyright"} {
		assert.NotContains(t, p.Text, gone)
	}
	assert.Equal(t, []string{"terms"}, p.PageTypes)
}

func TestExtractFallsBackToBody(t *testing.T) {
	html := `<html><head><title>Refunds</title></head><body><main>short</main><p>No   refunds
	after 30 days.</p></body></html>`
	p, err := Extract([]byte(html), "https://shop.test/help", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Refunds\n\nshort\nNo refunds\nafter 30 days.", p.Text)
}

func TestExtractEmpty(t *testing.T) {
	_, err := Extract([]byte(`<html><body><script>x</script></body></html>`), "", Options{})
	assert.True(t, apperr.Is(err, apperr.KindNoContent))
}

func TestRedactPII(t *testing.T) {
	in := "Mail legal@example.com or call (555) 123-4567. SSN 123-45-6789, card 4111 1111 1111 1111, ip 10.0.0.1."
	assert.Equal(t, "Mail [EMAIL] or call [PHONE]. SSN [SSN], card [CARD], ip [IP].", RedactPII(in))
}

func TestExtractRedacts(t *testing.T) {
	p, err := Extract([]byte(`<body><p>Contact privacy@corp.io</p></body>`), "", Options{RedactPII: true})
	require.NoError(t, err)
	assert.Contains(t, p.Text, "Contact [EMAIL]")
}

func TestDetectPageTypes(t *testing.T) {
	assert.Equal(t, []string{"terms", "privacy"}, DetectPageTypes("https://x.com/legal", "Terms and Privacy", ""))
	assert.Equal(t, []string{"billing"}, DetectPageTypes("https://x.com/pricing", "", ""))
	assert.Equal(t, []string{"unknown"}, DetectPageTypes("https://x.com/blog", "Hello", "World"))
	assert.True(t, IsRelevant([]string{"cookie", "privacy"}))
	assert.False(t, IsRelevant([]string{"unknown"}))
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><head><title>Privacy Policy</title></head><body><p>We collect data.</p></body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(0)
	p, err := f.FetchPage(context.Background(), srv.URL+"/privacy", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Privacy Policy\n\nWe collect data.", p.Text)

	_, err = f.FetchPage(context.Background(), srv.URL+"/missing", Options{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
