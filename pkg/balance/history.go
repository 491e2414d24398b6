package balance

import (
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/jgoulah/dormpower/pkg/models"
)

// HistoryLabels lists the caption texts that precede a value on the
// settlement-history page. Captions are compared after trimming a trailing
// colon (ASCII or full-width).
type HistoryLabels struct {
	Date   []string
	Amount []string
}

// DefaultHistoryLabels matches the captions used by the settlement list.
var DefaultHistoryLabels = HistoryLabels{
	Date:   []string{"结算时间", "结算日期", "抄表时间", "日期"},
	Amount: []string{"结算电量", "用电量", "电量"},
}

var historyLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006/1/2",
}

// ExtractHistory pairs each caption token with the token that follows it
// and emits a settlement whenever both a date and an amount have been
// seen. Timestamps without a zone are interpreted in loc. Rows whose value
// fails the numeric check are dropped. DormID is left for the caller.
func ExtractHistory(doc string, labels HistoryLabels, loc *time.Location) []models.Settlement {
	if loc == nil {
		loc = time.UTC
	}

	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil
	}
	tokens := textTokens(root)

	var (
		results            []models.Settlement
		date               time.Time
		amount             float64
		haveDate, haveAmnt bool
	)

	for i := 0; i < len(tokens)-1; i++ {
		caption := strings.TrimRight(tokens[i], ":：")
		switch {
		case contains(labels.Date, caption):
			t, ok := parseHistoryTime(tokens[i+1], loc)
			if !ok {
				haveDate = false
				continue
			}
			date, haveDate = t, true
			i++
		case contains(labels.Amount, caption):
			r := ParseValue(tokens[i+1])
			if !r.OK() {
				haveAmnt = false
				continue
			}
			amount, haveAmnt = r.Balance, true
			i++
		default:
			continue
		}

		if haveDate && haveAmnt {
			results = append(results, models.Settlement{SettledAt: date, KWh: amount})
			haveDate, haveAmnt = false, false
		}
	}

	return results
}

func parseHistoryTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range historyLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// textTokens returns the trimmed, non-empty text nodes in document order,
// skipping script and style bodies.
func textTokens(root *html.Node) []string {
	var tokens []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				tokens = append(tokens, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return tokens
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
