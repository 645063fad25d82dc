package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/SloanRudderham/tl-quotes-relay/pkg/models"
)

// Upstream type taxonomies drift between vendors, so classification is a
// substring heuristic rather than an enum: anything that names itself
// quote-ish, or that carries a nested "quote" object, is treated as a quote.
var quoteTypeHints = []string{"QUOTE", "TICK", "PRIC", "MARKET"}

// Candidate locations for the quote body, most specific first.
var bodyPaths = []string{"quote", "data.quote", "payload.quote", "payload"}

// Ordered key aliases per logical field. First present, non-empty value wins.
// Extending coverage to a new upstream shape is a data change, not code.
var (
	symbolKeys = []string{"symbol", "instrument", "symbolName", "s", "Symbol"}
	bidKeys    = []string{"bid", "b", "Bid", "BidPrice"}
	askKeys    = []string{"ask", "a", "Ask", "AskPrice"}
	lastKeys   = []string{"last", "price", "p", "mark", "Last", "LastPrice"}
	timeKeys   = []string{"time", "ts", "timestamp", "Time", "Timestamp"}
)

// Normalize maps a raw upstream event and its declared type tag to a quote
// delta. The second return is false when the event is not quote-like or no
// symbol could be resolved; both are normal upstream noise, not errors.
func Normalize(typeTag string, raw []byte, now func() time.Time) (models.Delta, bool) {
	root := gjson.ParseBytes(raw)

	if !isQuoteLike(typeTag, root) {
		return models.Delta{}, false
	}

	body := quoteBody(root)

	symbol := firstString(body, symbolKeys)
	if symbol == "" {
		return models.Delta{}, false
	}

	d := models.Delta{
		Symbol: symbol,
		Bid:    firstNumber(body, bidKeys),
		Ask:    firstNumber(body, askKeys),
		Last:   firstNumber(body, lastKeys),
	}

	if ts := firstNumber(body, timeKeys); ts != nil {
		d.Time = int64(*ts)
	} else {
		d.Time = now().UnixMilli()
	}
	return d, true
}

func isQuoteLike(typeTag string, root gjson.Result) bool {
	tag := strings.ToUpper(typeTag)
	for _, hint := range quoteTypeHints {
		if strings.Contains(tag, hint) {
			return true
		}
	}
	for _, path := range []string{"quote", "data.quote", "payload.quote"} {
		if root.Get(path).Exists() {
			return true
		}
	}
	return false
}

// quoteBody picks the first structurally present candidate location,
// falling back to the event itself.
func quoteBody(root gjson.Result) gjson.Result {
	for _, path := range bodyPaths {
		if v := root.Get(path); v.IsObject() {
			return v
		}
	}
	return root
}

func firstString(body gjson.Result, keys []string) string {
	for _, key := range keys {
		v := body.Get(key)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// firstNumber resolves the first alias holding a coercible finite number.
// Anything else counts as absent: a quote delta must never turn a garbage
// field into a zero price.
func firstNumber(body gjson.Result, keys []string) *float64 {
	for _, key := range keys {
		if f, ok := numeric(body.Get(key)); ok {
			return &f
		}
	}
	return nil
}

func numeric(v gjson.Result) (float64, bool) {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
