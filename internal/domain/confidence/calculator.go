// Package confidence converts raw signals (string similarity, text entropy,
// domain response metrics, field completeness) into bounded confidence
// scores. Every function is pure and deterministic so tests can assert
// exact or bounded values.
package confidence

import (
	"math"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mbirkedal/vendorledger/internal/domain/category"
	"github.com/mbirkedal/vendorledger/internal/domain/model"
)

// financialIndicators are substrings whose presence in transaction text
// raises the category pattern score.
var financialIndicators = []string{"payment", "transfer", "charge", "fee", "purchase", "deposit"}

// TransactionQualityScore rates data completeness and validity of a
// transaction in [0,1]. An entirely empty transaction scores 0.
//
// Weighted blend: description length 30%, log-scaled amount 20%, optional
// field completeness 30%, message length 20%.
func TransactionQualityScore(t model.ParsedTransaction) float64 {
	score, maxScore := 0.0, 0.0

	if t.Text != "" {
		textScore := math.Min(float64(utf8.RuneCountInString(t.Text))/50.0, 1.0)
		textScore *= 0.7 + 0.3*(float64(len(strings.Fields(t.Text)))/10.0)
		score += textScore * 0.3
	}
	maxScore += 0.3

	if !t.Amount.IsZero() {
		absAmount := t.Amount.Abs().InexactFloat64()
		logAmount := math.Log10(math.Max(absAmount, 1))
		amountScore := math.Min(logAmount/4.0, 1.0)
		// Any nonzero amount is worth at least the floor.
		amountScore = math.Max(amountScore, 0.3)
		score += amountScore * 0.2
	}
	maxScore += 0.2

	filled := 0
	if !t.Date.IsZero() {
		filled++
	}
	for _, f := range []string{t.Sender, t.Receiver, t.Message, t.Currency} {
		if f != "" {
			filled++
		}
	}
	score += float64(filled) / 5.0 * 0.3
	maxScore += 0.3

	if strings.TrimSpace(t.Message) != "" {
		messageScore := math.Min(float64(utf8.RuneCountInString(t.Message))/30.0, 1.0)
		score += messageScore * 0.2
	}
	maxScore += 0.2

	if maxScore == 0 {
		return 0.0
	}
	return score / maxScore
}

// CategoryConfidence scores a category assignment in [0.1, 1.0] from text
// entropy, label similarity and category-specific amount/keyword patterns,
// optionally blended with an oracle-supplied confidence (70% oracle,
// 30% pattern-derived).
func CategoryConfidence(t model.ParsedTransaction, cat string, oracleConfidence *float64) float64 {
	text := t.SearchText()

	entropy := textEntropy(text)
	similarity := Ratio(category.Label(cat), text)
	pattern := categoryPatternScore(text, cat, t)

	patternConfidence := 0.3*similarity + 0.4*pattern + 0.3*math.Min(entropy/3.0, 1.0)

	final := patternConfidence
	if oracleConfidence != nil {
		final = 0.7**oracleConfidence + 0.3*patternConfidence
	}

	adjusted := final * (0.7 + 0.3*TransactionQualityScore(t))
	return clamp(adjusted, 0.1, 1.0)
}

// VendorConfidence scores how well vendorName explains the transaction's
// text, in [0,1]. Sequence similarity (overall and best per-word) is passed
// through a sigmoid centered at 0.4 with steepness 8; an optional
// identification confidence is blended 60/40.
//
// An empty vendor name scores exactly 0.
func VendorConfidence(vendorName string, t model.ParsedTransaction, identificationConfidence *float64) float64 {
	if vendorName == "" {
		return 0.0
	}

	text := t.SearchText()
	vendorLower := strings.ToLower(vendorName)

	similarity := Ratio(vendorLower, text)

	bestPartial := 0.0
	for _, word := range strings.Fields(text) {
		if utf8.RuneCountInString(word) > 2 {
			bestPartial = math.Max(bestPartial, Ratio(vendorLower, word))
		}
	}

	combined := math.Max(similarity, bestPartial*0.8)
	similarityConfidence := sigmoid(combined, 0.4, 8)

	final := similarityConfidence
	if identificationConfidence != nil {
		final = 0.6*similarityConfidence + 0.4**identificationConfidence
	}
	return clamp(final, 0.0, 1.0)
}

// DomainConfidence rates a domain-verification probe. It returns whether the
// domain verified and a confidence for the answer. Non-200 responses and
// unparseable domains are never valid; their confidence stays at or below
// 0.1.
func DomainConfidence(domain string, responseTime time.Duration, contentMatches, totalWords, statusCode int) (bool, float64) {
	if domain == "" {
		return false, 0.0
	}

	raw := domain
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false, 0.0
	}

	if statusCode != 200 {
		return false, math.Max(0.05, 0.1-math.Abs(float64(statusCode-200))/1000.0)
	}

	timeFactor := 1.0
	if secs := responseTime.Seconds(); secs > 0 {
		switch {
		case secs < 1.0:
			timeFactor = 1.0
		case secs < 3.0:
			timeFactor = 0.9
		default:
			timeFactor = 0.8
		}
	}

	// 0.2 base for responding at all, rising smoothly to 0.8 with the
	// fraction of company-name words found in the page.
	contentScore := 0.2
	if contentMatches > 0 && totalWords > 0 {
		matchRatio := float64(contentMatches) / float64(totalWords)
		contentScore = 0.2 + 0.6*sigmoid(matchRatio, 0.3, 5)
	}

	return true, clamp(contentScore*timeFactor, 0.1, 1.0)
}

// LLMFallbackConfidence produces a conservative confidence in [0.2, 0.8]
// when the oracle fails or does not report one.
func LLMFallbackConfidence(t model.ParsedTransaction, cat string) float64 {
	base := 0.3 + 0.4*TransactionQualityScore(t)

	switch cat {
	case category.InternalTransfer, category.SalaryPayment, category.BankFee:
		// Easily identified categories.
		base += 0.1
	case category.VendorPayment:
		// Vendor payments require more certainty.
		base -= 0.05
	}

	return clamp(base, 0.2, 0.8)
}

// DomainPenaltyFactor converts a domain-verification outcome into a
// multiplier for enrichment confidence: verified domains boost, failed ones
// penalize without zeroing out.
func DomainPenaltyFactor(isValid bool, domainConfidence float64) float64 {
	if isValid {
		return 0.5 + 0.5*domainConfidence
	}
	switch {
	case domainConfidence > 0.5:
		return 0.8
	case domainConfidence > 0.1:
		return 0.7
	default:
		return 0.6
	}
}

// textEntropy is the Shannon entropy over character frequencies.
func textEntropy(text string) float64 {
	if text == "" {
		return 0.0
	}

	counts := make(map[rune]int)
	total := 0
	for _, r := range text {
		counts[r]++
		total++
	}

	entropy := 0.0
	for _, count := range counts {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// categoryPatternScore derives a score from the transaction's amount
// distribution and financial keyword overlap, capped at 1.0.
func categoryPatternScore(text, cat string, t model.ParsedTransaction) float64 {
	score := 0.0

	amount := t.Amount.Abs().InexactFloat64()
	if amount > 0 {
		logAmount := math.Log10(amount)
		switch cat {
		case category.VendorPayment:
			// Vendor payments vary widely; any amount counts.
			score += 0.5
		case category.SalaryPayment:
			if logAmount > 3 { // > $1000
				score += 0.8
			} else {
				score += 0.3
			}
		case category.BankFee:
			if logAmount < 2 { // < $100
				score += 0.7
			} else {
				score += 0.4
			}
		}
	}

	words := strings.Fields(text)
	if len(words) > 0 {
		matches := 0
		for _, word := range words {
			for _, indicator := range financialIndicators {
				if strings.Contains(word, indicator) {
					matches++
					break
				}
			}
		}
		score += math.Min(float64(matches)/float64(len(words)), 0.5)
	}

	return math.Min(score, 1.0)
}

func sigmoid(x, center, steepness float64) float64 {
	return 1.0 / (1.0 + math.Exp(-steepness*(x-center)))
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(x, hi))
}
