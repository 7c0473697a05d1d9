package email

import (
	"fmt"
	"strings"
	"time"

	"fourpisky-feeds/pkg/feed"
)

func writeHeader(b *strings.Builder, title string) {
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; }\n")
	b.WriteString(".header { border-bottom: 2px solid #2c3e50; padding-bottom: 10px; margin-bottom: 20px; }\n")
	b.WriteString(".error { background: #fdf2f2; padding: 15px; border-radius: 8px; margin: 15px 0; white-space: pre-wrap; font-family: monospace; }\n")
	b.WriteString(".footer { margin-top: 20px; padding-top: 10px; border-top: 1px solid #ddd; color: #7f8c8d; font-size: 0.9em; }\n")
	b.WriteString("td { padding: 4px 10px 4px 0; vertical-align: top; }\n")
	b.WriteString("</style>\n</head>\n<body>\n")
	b.WriteString("<div class=\"header\">\n")
	b.WriteString(fmt.Sprintf("<h2>%s</h2>\n", escapeHTML(title)))
	b.WriteString("</div>\n")
}

func writeFooter(b *strings.Builder) {
	b.WriteString("<div class=\"footer\">\n")
	b.WriteString(fmt.Sprintf("Sent by the 4 Pi Sky feed scraper at %s UTC\n", time.Now().UTC().Format("Jan 2, 2006 15:04")))
	b.WriteString("</div>\n")
	b.WriteString("</body>\n</html>")
}

func formatParseFailureBody(feedName, url string, err error) string {
	var b strings.Builder
	writeHeader(&b, "Feed parse failure")

	b.WriteString(fmt.Sprintf("<p>The <strong>%s</strong> feed could not be parsed. ", escapeHTML(feedName)))
	b.WriteString("The page layout has probably changed; no events were sent and the stored content hash was left untouched, ")
	b.WriteString("so the feed will be retried on the next cycle.</p>\n")
	b.WriteString(fmt.Sprintf("<p>Source: <a href=\"%s\">%s</a></p>\n", escapeHTML(url), escapeHTML(url)))
	if err != nil {
		b.WriteString(fmt.Sprintf("<div class=\"error\">%s</div>\n", escapeHTML(err.Error())))
	}

	writeFooter(&b)
	return b.String()
}

func formatDeliveryFailureBody(feedName string, failures []*feed.DeliveryError) string {
	var b strings.Builder
	if len(failures) == 1 {
		writeHeader(&b, "1 event not delivered")
	} else {
		writeHeader(&b, fmt.Sprintf("%d events not delivered", len(failures)))
	}

	b.WriteString(fmt.Sprintf("<p>New events from <strong>%s</strong> were found but could not be sent.</p>\n", escapeHTML(feedName)))
	b.WriteString("<table>\n")
	for _, f := range failures {
		b.WriteString("<tr>")
		b.WriteString(fmt.Sprintf("<td><code>%s</code></td>", escapeHTML(f.IVORN)))
		b.WriteString(fmt.Sprintf("<td>%s</td>", escapeHTML(f.Err.Error())))
		b.WriteString("</tr>\n")
	}
	b.WriteString("</table>\n")

	writeFooter(&b)
	return b.String()
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
