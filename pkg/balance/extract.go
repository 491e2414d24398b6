// Package balance pulls the remaining-kWh value out of the campus
// utility-payment page.
//
// The page is a third-party ASP.NET form whose markup is outside our
// control. The balance sits in a single labeled element whose id is
// either "lblSYDL" or "Label1" depending on the site version. Extraction
// never performs I/O and never panics on malformed input: every outcome is
// a Result value that callers must inspect.
package balance

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// LabelIDs are the element ids that carry the balance, in lookup order.
var LabelIDs = []string{"lblSYDL", "Label1"}

// UnsupportedSentinels are texts the site puts in the balance label when it
// will never answer for a room (some building types are not metered online).
var UnsupportedSentinels = []string{"暂不支持查询", "不支持查询"}

var numericPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// Failure classifies why extraction did not produce a balance.
type Failure int

const (
	// OK is the zero value: extraction succeeded.
	OK Failure = iota
	// NotFound means neither label exists; the page layout probably changed.
	NotFound
	// MalformedValue means the label exists but its text is not a number.
	MalformedValue
	// UnsupportedQuery means the site explicitly refuses to answer for this room.
	UnsupportedQuery
)

func (f Failure) String() string {
	switch f {
	case OK:
		return "ok"
	case NotFound:
		return "not_found"
	case MalformedValue:
		return "malformed_value"
	case UnsupportedQuery:
		return "unsupported_query"
	default:
		return fmt.Sprintf("failure(%d)", int(f))
	}
}

// Retryable reports whether a later attempt may succeed.
// UnsupportedQuery is permanent for a given room.
func (f Failure) Retryable() bool {
	return f != UnsupportedQuery
}

// Sentinel errors matched by errors.Is against Result.Err().
var (
	ErrNotFound         = errors.New("balance label not found on page")
	ErrMalformedValue   = errors.New("balance value is not numeric")
	ErrUnsupportedQuery = errors.New("site does not support balance queries for this room")
)

// Result is the outcome of Extract. Exactly one of Balance (when Failure
// is OK) or Failure carries meaning. Text holds the raw label text when
// the label was found.
type Result struct {
	Balance float64
	Failure Failure
	Text    string
}

// OK reports whether a balance was extracted.
func (r Result) OK() bool {
	return r.Failure == OK
}

// Err returns nil on success, otherwise an *Error wrapping the sentinel
// for the failure kind.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &Error{Failure: r.Failure, Text: r.Text}
}

func (r Result) String() string {
	if r.OK() {
		return fmt.Sprintf("ok(%.2f)", r.Balance)
	}
	return r.Failure.String()
}

// Error describes a failed extraction.
type Error struct {
	Failure Failure
	Text    string
}

func (e *Error) Error() string {
	switch e.Failure {
	case NotFound:
		return ErrNotFound.Error()
	case MalformedValue:
		return fmt.Sprintf("%s: %q", ErrMalformedValue, e.Text)
	case UnsupportedQuery:
		return fmt.Sprintf("%s: %q", ErrUnsupportedQuery, e.Text)
	default:
		return e.Failure.String()
	}
}

// Is lets errors.Is match the package sentinels.
func (e *Error) Is(target error) bool {
	switch e.Failure {
	case NotFound:
		return target == ErrNotFound
	case MalformedValue:
		return target == ErrMalformedValue
	case UnsupportedQuery:
		return target == ErrUnsupportedQuery
	}
	return false
}

// Extract locates the balance label in doc and validates its text.
func Extract(doc string) Result {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return Result{Failure: NotFound}
	}

	var node *html.Node
	for _, id := range LabelIDs {
		if node = findByID(root, id); node != nil {
			break
		}
	}
	if node == nil {
		return Result{Failure: NotFound}
	}

	return ParseValue(innerText(node))
}

// ParseValue classifies an already-isolated label text. It is shared by
// the live-balance and settlement-history extractors.
func ParseValue(text string) Result {
	text = strings.TrimSpace(text)

	for _, s := range UnsupportedSentinels {
		if strings.Contains(text, s) {
			return Result{Failure: UnsupportedQuery, Text: text}
		}
	}

	if !numericPattern.MatchString(text) {
		return Result{Failure: MalformedValue, Text: text}
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// digit runs too long for float64
		return Result{Failure: MalformedValue, Text: text}
	}

	return Result{Balance: v, Text: text}
}

// findByID returns the first element in document order with the given id.
func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// innerText concatenates all descendant text nodes.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
