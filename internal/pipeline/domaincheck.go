package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mbirkedal/vendorledger/internal/domain/confidence"
)

// DomainVerifier checks whether a domain plausibly belongs to a company.
type DomainVerifier interface {
	// Verify returns validity and a confidence score for the pairing. The
	// domain argument may be a comma-separated list; the first valid
	// domain wins.
	Verify(ctx context.Context, domain, companyName string) (bool, float64)
}

// maxVerifyBodyBytes caps how much of a landing page is scanned for company
// name words.
const maxVerifyBodyBytes = 512 * 1024

type verifyResult struct {
	valid      bool
	confidence float64
}

// HTTPDomainVerifier fetches a domain's landing page and scores how well
// its content matches the company name. Results are cached per
// domain/company pair.
type HTTPDomainVerifier struct {
	client *http.Client
	cache  *ttlCache[verifyResult]
	logger *slog.Logger
}

// NewHTTPDomainVerifier creates a verifier. The timeout bounds each fetch;
// slow vendors should not stall the whole pipeline.
func NewHTTPDomainVerifier(timeout time.Duration, cacheTTL time.Duration, logger *slog.Logger) *HTTPDomainVerifier {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDomainVerifier{
		client: &http.Client{Timeout: timeout},
		cache:  newTTLCache[verifyResult](cacheTTL),
		logger: logger,
	}
}

// Verify checks each comma-separated domain in turn and returns the first
// valid result, or the last failure when none verify.
func (v *HTTPDomainVerifier) Verify(ctx context.Context, domain, companyName string) (bool, float64) {
	if strings.TrimSpace(domain) == "" {
		return false, 0.0
	}

	result := verifyResult{}
	for _, single := range strings.Split(domain, ",") {
		single = strings.TrimSpace(single)
		if single == "" {
			continue
		}

		cacheKey := single + "||" + strings.ToLower(companyName)
		if cached, ok := v.cache.get(cacheKey); ok {
			if cached.valid {
				return cached.valid, cached.confidence
			}
			result = cached
			continue
		}

		result = v.verifyOne(ctx, single, companyName)
		v.cache.set(cacheKey, result)

		if result.valid {
			return result.valid, result.confidence
		}
	}

	return result.valid, result.confidence
}

func (v *HTTPDomainVerifier) verifyOne(ctx context.Context, domain, companyName string) verifyResult {
	url := domain
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return verifyResult{}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; VendorVerifier/1.0)")

	start := time.Now()
	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Debug("domain verification failed", "domain", domain, "error", err)
		return verifyResult{}
	}
	defer func() { _ = resp.Body.Close() }()
	responseTime := time.Since(start)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVerifyBodyBytes))
	if err != nil {
		v.logger.Debug("domain verification read failed", "domain", domain, "error", err)
		return verifyResult{}
	}

	matches, totalWords := countNameMatches(string(body), companyName)
	valid, conf := confidence.DomainConfidence(domain, responseTime, matches, totalWords, resp.StatusCode)
	return verifyResult{valid: valid, confidence: conf}
}

// countNameMatches counts how many words of the company name (longer than
// two characters) appear in the page content.
func countNameMatches(content, companyName string) (matches, totalWords int) {
	content = strings.ToLower(content)
	words := strings.Fields(strings.ToLower(companyName))
	for _, word := range words {
		if len(word) > 2 && strings.Contains(content, word) {
			matches++
		}
	}
	return matches, len(words)
}
