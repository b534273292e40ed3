// Package extract holds the pure pattern-matching functions that scan
// message text for order references, shipment status, tracking data, and
// invoice metadata. Everything here is stateless and deterministic; a
// missed pattern leaves the field unset, never an error.
package extract

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/nhle/ordertrack/internal/model"
)

// DefaultContextWindow is the number of characters captured on each side
// of a matched status keyword.
const DefaultContextWindow = 50

// StatusMatch records one detected status keyword and the text window
// around it. The window scopes the follow-up tracking-number search.
type StatusMatch struct {
	Status  model.ShippingStatus
	Keyword string
	Context string
}

// Signals is everything the engine recognized in one message's text.
type Signals struct {
	OrderReferences   []string
	StatusMatches     []StatusMatch
	TrackingNumber    string
	EstimatedDelivery *time.Time
	Location          string
	InvoiceNumber     string
	InvoiceAmount     *decimal.Decimal
}

// statusEntry pairs a status with its trigger phrases. Order matters only
// for determinism of StatusMatches output; priority resolution happens in
// PrimaryStatus.
type statusEntry struct {
	status   model.ShippingStatus
	keywords []string
}

// statusKeywords maps each status to the phrases that signal it. The first
// phrase found wins for that status; a message may still match several
// statuses at once.
var statusKeywords = []statusEntry{
	{model.StatusShipped, []string{
		"shipped", "dispatched", "on its way", "in transit",
		"delivery initiated",
	}},
	{model.StatusInTransit, []string{
		"out for delivery", "on the way",
	}},
	{model.StatusDelivered, []string{
		"delivered", "received", "completed", "fulfilled",
	}},
	{model.StatusDelayed, []string{
		"delayed", "postponed", "on hold", "backorder",
	}},
	{model.StatusCancelled, []string{
		"cancelled", "canceled", "order cancelled", "terminated",
	}},
	{model.StatusPartial, []string{
		"partial", "partially fulfilled", "partial shipment",
	}},
	{model.StatusInvoiceGenerated, []string{
		"invoice sent",
	}},
}

// statusPriority resolves messages matching several statuses at once: a
// cancellation or delivery confirmation outweighs an earlier-stage status
// mentioned in the same message (forwarded threads often carry both).
var statusPriority = []model.ShippingStatus{
	model.StatusCancelled,
	model.StatusDelivered,
	model.StatusShipped,
	model.StatusPartial,
	model.StatusDelayed,
}

var orderReferencePattern = regexp.MustCompile(`(?i)\bPO-\d{4}-\d{6}-\d{4}\b`)

var trackingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btracking\s*(?:number|no\.?|code|#)?\s*:?\s*([A-Z0-9]{8,30})\b`),
	regexp.MustCompile(`(?i)\btrack\s*(?:number|#)?\s*:?\s*([A-Z0-9]{8,30})\b`),
	regexp.MustCompile(`(?i)\bshipment\s*(?:number|id|#)?\s*:?\s*([A-Z0-9]{8,30})\b`),
	regexp.MustCompile(`(?i)\bpackage\s*(?:number|id|#)?\s*:?\s*([A-Z0-9]{8,30})\b`),
}

var deliveryDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:estimated|expected|scheduled)(?:\s+delivery)?(?:\s+date)?\s*(?::|is)?\s*(\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4})`),
	regexp.MustCompile(`(?i)\bdelivery\s*(?:on)?\s*(?::|is)?\s*(\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4})`),
	regexp.MustCompile(`(?i)\bdeliver\s*(?:by)?\s*(?::|is)?\s*(\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4})`),
}

var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:location|facility|warehouse|center)\s*(?::|is)?\s*([A-Za-z][A-Za-z ]*(?:Center|Warehouse|Facility|Hub))`),
	regexp.MustCompile(`(?i)\b(?:your package is in|arrived at|departed from)\s+([A-Za-z][A-Za-z ]*(?:Center|Warehouse|Facility|Hub|City))`),
}

var invoiceNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:invoice|inv)(?:\s+number)?(?:\s*[:#]\s*|\s*no\.?\s*|\s+)([A-Z0-9][A-Z0-9_-]{2,19})\b`),
	regexp.MustCompile(`(?i)\b(INV[A-Z0-9_-]{3,15})\b`),
}

var invoiceAmountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:total|invoice)(?:\s+amount)?(?:\s+due)?\s*(?::|is)?\s*[$£€]?\s*(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)\b`),
	regexp.MustCompile(`(?i)\b(?:amount|sum)(?:\s+due)?\s*(?::|is)?\s*[$£€]?\s*(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)\b`),
}

// Scan runs every extractor over the given text and returns the combined
// signals. window controls the context width around status keywords.
func Scan(text string, window int) Signals {
	sig := Signals{
		OrderReferences: OrderReferences(text),
		StatusMatches:   StatusMatches(text, window),
	}
	sig.TrackingNumber = TrackingNumber(sig.StatusMatches, text)
	sig.EstimatedDelivery = EstimatedDelivery(text)
	sig.Location = Location(text)
	sig.InvoiceNumber = InvoiceNumber(text)
	sig.InvoiceAmount = InvoiceAmount(text)
	return sig
}

// OrderReferences returns the de-duplicated order reference codes found in
// the text, normalized to upper case, in order of first appearance.
func OrderReferences(text string) []string {
	matches := orderReferencePattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var refs []string
	for _, m := range matches {
		ref := strings.ToUpper(m)
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}

// StatusMatches scans for each status's keyword phrases. The first phrase
// hit per status is recorded along with the surrounding text window taken
// from the original-case text. Matching and windowing both work in runes,
// so case folding on non-ASCII text cannot shift the window off the match.
func StatusMatches(text string, window int) []StatusMatch {
	if window <= 0 {
		window = DefaultContextWindow
	}

	runes := []rune(text)
	lowered := make([]rune, len(runes))
	for i, r := range runes {
		lowered[i] = unicode.ToLower(r)
	}

	var matches []StatusMatch
	for _, entry := range statusKeywords {
		for _, keyword := range entry.keywords {
			kw := []rune(keyword)
			idx := indexRunes(lowered, kw)
			if idx < 0 {
				continue
			}
			matches = append(matches, StatusMatch{
				Status:  entry.status,
				Keyword: keyword,
				Context: contextWindow(runes, idx, len(kw), window),
			})
			break
		}
	}
	return matches
}

// PrimaryStatus picks the single status an order update should carry when
// a message matched several. Falls back to the first detected status when
// none of the priority statuses matched.
func PrimaryStatus(matches []StatusMatch) *StatusMatch {
	if len(matches) == 0 {
		return nil
	}

	for _, status := range statusPriority {
		for i := range matches {
			if matches[i].Status == status {
				return &matches[i]
			}
		}
	}
	return &matches[0]
}

// TrackingNumber applies the label-anchored tracking patterns to the
// status-match context windows first, falling back to the full text.
func TrackingNumber(matches []StatusMatch, text string) string {
	for _, m := range matches {
		if m.Context == "" {
			continue
		}
		if num := firstSubmatch(trackingPatterns, m.Context); num != "" {
			return num
		}
	}
	return firstSubmatch(trackingPatterns, text)
}

// EstimatedDelivery finds a label-anchored delivery date and normalizes it
// to a calendar date. Unparsable dates are discarded.
func EstimatedDelivery(text string) *time.Time {
	raw := firstSubmatch(deliveryDatePatterns, text)
	if raw == "" {
		return nil
	}

	normalized := strings.NewReplacer("-", "/", ".", "/").Replace(raw)
	for _, layout := range []string{"1/2/2006", "1/2/06"} {
		if t, err := time.Parse(layout, normalized); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// Location finds a label-anchored facility or city string.
func Location(text string) string {
	return strings.TrimSpace(firstSubmatch(locationPatterns, text))
}

// InvoiceNumber finds a label-anchored invoice token. Tokens without any
// digit are rejected; the label patterns would otherwise capture ordinary
// words following "invoice".
func InvoiceNumber(text string) string {
	for _, pattern := range invoiceNumberPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			token := m[1]
			if strings.ContainsAny(token, "0123456789") {
				return strings.ToUpper(token)
			}
		}
	}
	return ""
}

// InvoiceAmount finds a label-anchored currency amount, tolerating
// thousands separators, and parses it as a decimal.
func InvoiceAmount(text string) *decimal.Decimal {
	raw := firstSubmatch(invoiceAmountPatterns, text)
	if raw == "" {
		return nil
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return nil
	}
	return &amount
}

// firstSubmatch returns the first capture group of the first pattern that
// matches, in pattern order.
func firstSubmatch(patterns []*regexp.Regexp, text string) string {
	for _, pattern := range patterns {
		if m := pattern.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	return ""
}

// indexRunes returns the index of the first occurrence of needle within
// haystack, or -1.
func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		j := 0
		for ; j < len(needle); j++ {
			if haystack[i+j] != needle[j] {
				break
			}
		}
		if j == len(needle) {
			return i
		}
	}
	return -1
}

// contextWindow returns the runes within width of the match at
// [idx, idx+length), clamped to the text bounds.
func contextWindow(runes []rune, idx, length, width int) string {
	start := idx - width
	if start < 0 {
		start = 0
	}
	end := idx + length + width
	if end > len(runes) {
		end = len(runes)
	}
	return strings.TrimSpace(string(runes[start:end]))
}
