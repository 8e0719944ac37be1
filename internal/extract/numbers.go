package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Closed vocabulary of spoken numbers. Compounds ("thirty five",
// "thirty-five", "thirty and five") are resolved by pairing a tens word with
// a following unit word.
var unitWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9,
}

var teenWords = map[string]int{
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tensWords = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var (
	wordSplitRe = regexp.MustCompile(`[\s-]+`)
	halfRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s+and\s+a\s+half`)
	decimalComma = regexp.MustCompile(`(\d),(\d)`)
)

// spokenNumbersToDigits rewrites number words into digits so the dimension
// patterns only ever deal with numeric tokens. Unknown words pass through
// untouched.
func spokenNumbersToDigits(text string) string {
	tokens := wordSplitRe.Split(text, -1)
	out := make([]string, 0, len(tokens))

	for i := 0; i < len(tokens); i++ {
		tok := strings.ToLower(tokens[i])

		if tens, ok := tensWords[tok]; ok {
			// Compound: "thirty five" or "thirty and five".
			j := i + 1
			if j < len(tokens) && strings.EqualFold(tokens[j], "and") && j+1 < len(tokens) {
				if unit, ok := unitWords[strings.ToLower(tokens[j+1])]; ok {
					out = append(out, strconv.Itoa(tens+unit))
					i = j + 1
					continue
				}
			}
			if j < len(tokens) {
				if unit, ok := unitWords[strings.ToLower(tokens[j])]; ok {
					out = append(out, strconv.Itoa(tens+unit))
					i = j
					continue
				}
			}
			out = append(out, strconv.Itoa(tens))
			continue
		}

		if teen, ok := teenWords[tok]; ok {
			out = append(out, strconv.Itoa(teen))
			continue
		}
		if unit, ok := unitWords[tok]; ok {
			out = append(out, strconv.Itoa(unit))
			continue
		}

		out = append(out, tokens[i])
	}

	return strings.Join(out, " ")
}

// normalizeText is the pre-normalization applied before any pattern match:
// decimal commas, spoken numbers, "N and a half".
func normalizeText(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = decimalComma.ReplaceAllString(t, "$1.$2")
	t = spokenNumbersToDigits(t)
	t = halfRe.ReplaceAllString(t, "$1.5")
	return t
}

// parseDimension parses one captured number with the 3-digit heuristic: a
// bare integer in [100,999] is read as a two-decimal meter value (420 means
// 4.20) unless it is a multiple of 50, which is reserved for genuine large
// roll lengths.
func parseDimension(tok string) (float64, bool) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	if v <= 0 {
		return 0, false
	}
	if v == float64(int64(v)) && !strings.Contains(tok, ".") {
		n := int64(v)
		if n >= 100 && n <= 999 && n%50 != 0 {
			v = float64(n) / 100
		}
	}
	if v > maxSingleDimension {
		return 0, false
	}
	return v, true
}
