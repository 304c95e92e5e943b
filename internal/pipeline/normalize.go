// Package pipeline holds the per-fetch processing steps applied to raw
// mail records: date normalization, tag classification, deduplication,
// folder partitioning and ordering. Every step is a pure function of its
// input apart from logging and the injected clock.
package pipeline

import (
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Normalized is the canonical form of a server-provided date.
type Normalized struct {
	Instant   time.Time
	Timestamp int64 // epoch milliseconds
}

// ISO returns the instant as an RFC 3339 string in UTC with millisecond
// precision.
func (n Normalized) ISO() string {
	return n.Instant.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// dateLayouts are tried in order. The PostgreSQL OffsetDateTime display
// form is what the mail API emits for sent_at/read_at.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 -07:00:00",
	"2006-01-02 15:04:05.999999999 -07:00",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	"2006-01-02",
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds:
// anything larger is read as milliseconds.
const epochMillisThreshold = 100_000_000_000

// compactDateLayout is used for all-digit input of exactly this length;
// shorter or longer digit strings are epochs.
const compactDateLayout = "20060102"

// Normalizer converts arbitrary date text into a Normalized value. It never
// fails: empty or unparseable input yields the current instant.
type Normalizer struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewNormalizer creates a Normalizer. A nil clock means time.Now.
func NewNormalizer(logger zerolog.Logger, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{logger: logger, now: now}
}

// Normalize parses raw and returns its canonical instant and timestamp.
func (n *Normalizer) Normalize(raw string) Normalized {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		n.logger.Warn().Msg("date empty, substituting current time")
		return n.fallback()
	}

	t, ok := parseDate(trimmed)
	if !ok {
		n.logger.Warn().Str("raw", raw).Msg("date invalid, substituting current time")
		return n.fallback()
	}

	n.logger.Debug().Str("raw", raw).Time("instant", t).Msg("date valid")
	return fromTime(t)
}

// NormalizeOptional is Normalize for nullable fields: empty input yields
// nil instead of the fallback, since absence is meaningful (e.g. unread).
func (n *Normalizer) NormalizeOptional(raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	t := n.Normalize(raw).Instant
	return &t
}

func (n *Normalizer) fallback() Normalized {
	return fromTime(n.now())
}

func fromTime(t time.Time) Normalized {
	t = t.UTC().Truncate(time.Millisecond)
	return Normalized{Instant: t, Timestamp: t.UnixMilli()}
}

func parseDate(s string) (time.Time, bool) {
	t, ok := parseAny(s)
	if !ok || !representable(t) {
		return time.Time{}, false
	}
	return t, true
}

func parseAny(s string) (time.Time, bool) {
	if isDigits(s) {
		if len(s) == len(compactDateLayout) {
			t, err := time.Parse(compactDateLayout, s)
			return t, err == nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		if v > epochMillisThreshold {
			return time.UnixMilli(v), true
		}
		return time.Unix(v, 0), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	// RFC 5322 mail dates, including obsolete zone names.
	if t, err := mail.ParseDate(s); err == nil {
		return t, true
	}

	return time.Time{}, false
}

// representable reports whether t has a four-digit UTC year, the range
// an RFC 3339 instant can express.
func representable(t time.Time) bool {
	y := t.UTC().Year()
	return y >= 1 && y <= 9999
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
