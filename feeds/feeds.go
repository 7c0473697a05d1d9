// Package feeds implements the ASAS-SN, Gaia and Swift burst-analysis feed
// adapters.
package feeds

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"fourpisky-feeds/voevent"
)

// Options carries the packet metadata shared by every adapter.
type Options struct {
	Author voevent.Author
	Role   voevent.Role
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

func (o Options) role() voevent.Role {
	if o.Role == "" {
		return voevent.RoleObservation
	}
	return o.Role
}

// Link is a hyperlink found in a table cell.
type Link struct {
	Text string
	Href string
}

func htmlDocument(content []byte) (*goquery.Document, error) {
	r, err := charset.NewReader(bytes.NewReader(content), "text/html")
	if err != nil {
		return nil, fmt.Errorf("detect charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// leadingText returns the text that precedes the first child element.
func leadingText(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	n := s.Get(0).FirstChild
	if n != nil && n.Type == html.TextNode {
		return n.Data
	}
	return ""
}

// isPlaceholder matches empty cells written as runs of dashes.
func isPlaceholder(s string) bool {
	return strings.Trim(strings.TrimSpace(s), "-") == ""
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
