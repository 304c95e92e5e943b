package pipeline

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 987654321, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestNormalizer() *Normalizer {
	return NewNormalizer(zerolog.Nop(), fixedClock)
}

func TestNormalize_Formats(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"rfc3339 utc", "2024-03-01T10:15:30Z", time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)},
		{"rfc3339 offset", "2024-03-01T12:15:30+02:00", time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)},
		{"rfc3339 fraction", "2024-03-01T10:15:30.123456Z", time.Date(2024, 3, 1, 10, 15, 30, 123_000_000, time.UTC)},
		{"postgres offset", "2024-03-01 10:15:30.123456 +00:00", time.Date(2024, 3, 1, 10, 15, 30, 123_000_000, time.UTC)},
		{"postgres no fraction", "2024-03-01 11:15:30 +01:00", time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)},
		{"epoch millis", "1700000000123", time.UnixMilli(1700000000123).UTC()},
		{"epoch seconds", "1700000000", time.Unix(1700000000, 0).UTC()},
		{"rfc1123z", "Fri, 01 Mar 2024 10:15:30 +0000", time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)},
		{"date only", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"compact date", "20240102", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"postgres short offset", "2024-01-02 10:00:00+00", time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)},
		{"postgres short offset fraction", "2024-01-02 12:00:00.25+02", time.Date(2024, 1, 2, 10, 0, 0, 250_000_000, time.UTC)},
		{"offset without colon", "2024-01-02T15:04:05+0000", time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)},
		{"surrounding space", "  2024-03-01T10:15:30Z\n", time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.raw)
			assert.True(t, tt.want.Equal(got.Instant), "got %s", got.Instant)
			assert.Equal(t, tt.want.UnixMilli(), got.Timestamp)
			assert.Equal(t, time.UTC, got.Instant.Location())
		})
	}
}

func TestNormalize_FallsBackToNow(t *testing.T) {
	n := newTestNormalizer()
	want := fixedNow.Truncate(time.Millisecond)

	for _, raw := range []string{
		"", "   ", "not-a-date", "2024-13-45", "yesterday", "12ab",
		"99999999999999999", "20241345", "0000-01-01T00:00:00Z",
	} {
		got := n.Normalize(raw)
		assert.True(t, want.Equal(got.Instant), "raw %q", raw)
		assert.Equal(t, want.UnixMilli(), got.Timestamp, "raw %q", raw)
	}
}

func TestNormalize_ISOAlwaysParses(t *testing.T) {
	n := newTestNormalizer()

	for _, raw := range []string{
		"99999999999999999", "9223372036854775807", "253402300800000",
		"9999-12-31T23:59:59-05:00", "0001-01-01T00:00:00Z", "20240102",
	} {
		iso := n.Normalize(raw).ISO()
		_, err := time.Parse(time.RFC3339, iso)
		assert.NoError(t, err, "raw %q gave %q", raw, iso)
	}
}

func TestNormalize_TimestampMatchesInstant(t *testing.T) {
	n := newTestNormalizer()

	for _, raw := range []string{"2024-03-01T10:15:30.999Z", "garbage", "1700000000"} {
		got := n.Normalize(raw)
		assert.Equal(t, got.Instant.UnixMilli(), got.Timestamp)
		assert.Equal(t, got.Instant, got.Instant.Truncate(time.Millisecond))
	}
}

func TestNormalizedISO(t *testing.T) {
	got := newTestNormalizer().Normalize("2024-03-01T12:15:30.5+02:00")
	assert.Equal(t, "2024-03-01T10:15:30.500Z", got.ISO())
}

func TestNormalizeOptional(t *testing.T) {
	n := newTestNormalizer()

	assert.Nil(t, n.NormalizeOptional(""))
	assert.Nil(t, n.NormalizeOptional("  "))

	got := n.NormalizeOptional("2024-03-01T10:15:30Z")
	require.NotNil(t, got)
	assert.True(t, time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC).Equal(*got))

	bad := n.NormalizeOptional("nope")
	require.NotNil(t, bad)
	assert.True(t, fixedNow.Truncate(time.Millisecond).Equal(*bad))
}
