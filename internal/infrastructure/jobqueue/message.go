package jobqueue

import (
	"strconv"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"
)

type header struct {
	name  string
	value string
}

// message holds the Upstash delivery options of one publish.
type message struct {
	targetURL string
	delay     time.Duration
	dedupID   string
	retries   int
	forward   bool
}

// headers lists the publish headers in a stable order. masked replaces both
// secrets with *** for logging.
func (m message) headers(token, jobToken string, masked bool) []header {
	if masked {
		token, jobToken = "***", "***"
	}
	out := []header{
		{"Authorization", "Bearer " + token},
		{"Content-Type", "application/json"},
		{"Upstash-Method", "POST"},
	}
	if m.retries > 0 {
		out = append(out, header{"Upstash-Retries", strconv.Itoa(m.retries)})
	}
	if m.delay > 0 {
		out = append(out, header{"Upstash-Delay", delaySeconds(m.delay)})
	}
	if m.dedupID != "" {
		out = append(out, header{"Upstash-Deduplication-Id", m.dedupID})
	}
	if m.forward {
		out = append(out, header{"Upstash-Forward-" + internalJobTokenHeader, jobToken})
	}
	return out
}

const internalJobTokenHeader = "X-Internal-Job-Token"

// curlPreview renders a copy-pasteable curl command for debug logs.
func curlPreview(publishURL string, headers []header, body string) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString("curl -X POST ")
	_, _ = buf.WriteString(shellQuote(publishURL))
	for _, h := range headers {
		_, _ = buf.WriteString(" -H ")
		_, _ = buf.WriteString(shellQuote(h.name + ": " + h.value))
	}
	_, _ = buf.WriteString(" -d ")
	_, _ = buf.WriteString(shellQuote(body))
	return buf.String()
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

func truncate(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[:max] + "...(truncated)"
}
