package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	feetToMeters = 0.3048

	// Single captured dimensions above this are treated as garbage, not as a
	// very large order.
	maxSingleDimension = 100.0

	// A lone number is only assumed to be a square side inside this range, so
	// a roll length is never confused with a panel side.
	squareAssumeMin = 2.0
	squareAssumeMax = 10.0
)

// Entities is the structured result of one extraction pass. Zero value means
// nothing matched; extraction never fails.
type Entities struct {
	Width      *float64
	Height     *float64
	Percentage *int
	Color      string
	Quantity   *int
	Location   *Location

	// AsSpoken preserves the dimensions in the order the customer wrote them.
	AsSpoken string
	// ConvertedFromFeet is kept so the response can explain the rounding.
	ConvertedFromFeet bool
	Fractional        bool
	AssumedSquare     bool
}

type Location struct {
	City       string
	State      string
	PostalCode string
}

// DimensionPair is one width/height match from the multi-pair scanner.
type DimensionPair struct {
	Width    float64
	Height   float64
	AsSpoken string
}

func (e Entities) HasDimensions() bool {
	return e.Width != nil && e.Height != nil
}

func (e Entities) Area() float64 {
	if !e.HasDimensions() {
		return 0
	}
	return *e.Width * *e.Height
}

var (
	axisLabel = `(longs?|length|high|tall|wide|width|widths?)`

	labeledRe = regexp.MustCompile(
		`(\d+(?:\.\d+)?)\s*(?:m|mts?|meters?|metres?)?\s*` + axisLabel +
			`\s*(?:by|x|×)\s*(\d+(?:\.\d+)?)\s*(?:m|mts?|meters?|metres?)?\s*` + axisLabel)

	hardSepRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[x×*]\s*(\d+(?:\.\d+)?)`)

	softSepRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s+(?:by|of)\s+(\d+(?:\.\d+)?)`)

	numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

	feetRe = regexp.MustCompile(`\b(?:feet|foot|ft)\b|'`)

	percentageRe = regexp.MustCompile(`(\d{1,3})\s*(?:%|percent\b)`)

	quantityRe = regexp.MustCompile(`(\d+)\s*(?:units?|pieces?|panels?|rolls?|pcs)\b`)

	postalRe = regexp.MustCompile(`\b(\d{4,8})\b`)

	// Whole-message form only; free text like "do you ship to X" is the
	// router's business, not an entity.
	cityStateRe = regexp.MustCompile(`^([a-z][a-z .]{1,40}),\s*([a-z]{2})$`)

	colorRe = regexp.MustCompile(`\b(green|black|white|beige|blue|grey|gray|red|brown)\b`)
)

// Extract normalizes the text and extracts every supported entity. It never
// returns an error; absent entities stay nil.
func Extract(text string) Entities {
	return extract(text, false)
}

// ExtractWithSquareAssumption additionally treats a lone in-range number as a
// square side. Only follow-up turns inside a flow use this mode.
func ExtractWithSquareAssumption(text string) Entities {
	return extract(text, true)
}

func extract(text string, allowSquare bool) Entities {
	var e Entities

	t := normalizeText(text)
	if t == "" {
		return e
	}

	inFeet := feetRe.MatchString(t)

	if a, b, ok := matchDimensionPair(t); ok {
		e.applyDimensions(a, b, inFeet)
	} else if allowSquare {
		if side, ok := matchSingleDimension(t); ok {
			e.applyDimensions(side, side, inFeet)
			e.AssumedSquare = true
		}
	}

	if m := percentageRe.FindStringSubmatch(t); m != nil {
		if p, err := strconv.Atoi(m[1]); err == nil && p >= 1 && p <= 100 {
			e.Percentage = &p
		}
	}

	if m := colorRe.FindStringSubmatch(t); m != nil {
		e.Color = m[1]
	}

	if m := quantityRe.FindStringSubmatch(t); m != nil {
		if q, err := strconv.Atoi(m[1]); err == nil && q > 0 {
			e.Quantity = &q
		}
	}

	e.Location = ParseLocation(text)

	return e
}

// matchDimensionPair applies the dimension patterns in strict precedence
// order; the first non-nil match wins.
func matchDimensionPair(t string) (a, b float64, ok bool) {
	// 1. Labeled axes: the labels decide which number is which, regardless
	// of token order.
	if m := labeledRe.FindStringSubmatch(t); m != nil {
		first, ok1 := parseDimension(m[1])
		second, ok2 := parseDimension(m[3])
		if ok1 && ok2 {
			if isWidthLabel(m[2]) && !isWidthLabel(m[4]) {
				return first, second, true
			}
			return second, first, true
		}
	}

	// 2. Unambiguous multiplication-like separators.
	if m := hardSepRe.FindStringSubmatch(t); m != nil {
		first, ok1 := parseDimension(m[1])
		second, ok2 := parseDimension(m[2])
		if ok1 && ok2 {
			return first, second, true
		}
	}

	// 3. Soft separators, tried last: "of" is overloaded in natural speech.
	if m := softSepRe.FindStringSubmatch(t); m != nil {
		first, ok1 := parseDimension(m[1])
		second, ok2 := parseDimension(m[2])
		if ok1 && ok2 {
			return first, second, true
		}
	}

	return 0, 0, false
}

func matchSingleDimension(t string) (float64, bool) {
	nums := numberRe.FindAllString(t, -1)
	if len(nums) != 1 {
		return 0, false
	}
	v, ok := parseDimension(nums[0])
	if !ok {
		return 0, false
	}
	if v < squareAssumeMin || v > squareAssumeMax {
		return 0, false
	}
	return v, true
}

func isWidthLabel(label string) bool {
	return strings.HasPrefix(label, "wid")
}

func (e *Entities) applyDimensions(a, b float64, inFeet bool) {
	if inFeet {
		a = roundOne(a * feetToMeters)
		b = roundOne(b * feetToMeters)
		if a <= 0 || b <= 0 {
			return
		}
		e.ConvertedFromFeet = true
	}

	e.AsSpoken = fmt.Sprintf("%s x %s", formatDim(a), formatDim(b))

	// Normalized order: width <= height.
	w, h := a, b
	if w > h {
		w, h = h, w
	}
	e.Width = &w
	e.Height = &h
	e.Fractional = w != math.Trunc(w) || h != math.Trunc(h)
}

// ExtractAllPairs scans for every dimension pair in one message ("6x5 or
// 5x5") to support batched quoting. Only the unambiguous separators
// participate; soft separators would produce false pairs across list items.
func ExtractAllPairs(text string) []DimensionPair {
	t := normalizeText(text)
	inFeet := feetRe.MatchString(t)

	matches := hardSepRe.FindAllStringSubmatch(t, -1)
	pairs := make([]DimensionPair, 0, len(matches))

	for _, m := range matches {
		a, ok1 := parseDimension(m[1])
		b, ok2 := parseDimension(m[2])
		if !ok1 || !ok2 {
			continue
		}
		if inFeet {
			a = roundOne(a * feetToMeters)
			b = roundOne(b * feetToMeters)
		}
		spoken := fmt.Sprintf("%s x %s", formatDim(a), formatDim(b))
		if a > b {
			a, b = b, a
		}
		pairs = append(pairs, DimensionPair{Width: a, Height: b, AsSpoken: spoken})
	}

	return pairs
}

// ParseLocation finds a postal code or a "city, st" mention. Returns nil when
// neither is present.
func ParseLocation(text string) *Location {
	t := strings.ToLower(strings.TrimSpace(text))

	if m := cityStateRe.FindStringSubmatch(t); m != nil {
		return &Location{
			City:  strings.TrimSpace(m[1]),
			State: strings.ToUpper(m[2]),
		}
	}

	if m := postalRe.FindStringSubmatch(t); m != nil {
		return &Location{PostalCode: m[1]}
	}

	return nil
}

func roundOne(v float64) float64 {
	return math.Round(v*10) / 10
}

func formatDim(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
