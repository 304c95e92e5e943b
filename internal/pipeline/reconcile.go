package pipeline

import (
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/model"
)

// Dedupe collapses messages sharing a Key into one, keeping the record
// with the strictly greater SentTimestamp; ties keep the first seen.
// Output keeps the first-seen order of keys.
func Dedupe(msgs []model.Message) []model.Message {
	index := make(map[string]int, len(msgs))
	out := make([]model.Message, 0, len(msgs))

	for _, m := range msgs {
		key := m.Key()
		if i, ok := index[key]; ok {
			if m.SentTimestamp > out[i].SentTimestamp {
				out[i] = m
			}
			continue
		}
		index[key] = len(out)
		out = append(out, m)
	}

	return out
}

// Partitions is the sent/received split of a mailbox relative to a user.
type Partitions struct {
	Sent     []model.Message
	Received []model.Message
}

// For returns the partition backing folder, or nil for unknown folders.
func (p Partitions) For(folder model.Folder) []model.Message {
	switch folder {
	case model.FolderInbox:
		return p.Received
	case model.FolderSent:
		return p.Sent
	default:
		return nil
	}
}

// Partition splits msgs into sent and received relative to userAddress.
// A message from the user is sent only, even when also addressed to the
// user. Messages matching neither side are dropped.
func Partition(msgs []model.Message, userAddress string, logger zerolog.Logger) Partitions {
	user := NormalizeAddress(userAddress)
	if user == "" {
		logger.Error().Msg("partition called without a user address")
		return Partitions{Sent: []model.Message{}, Received: []model.Message{}}
	}

	p := Partitions{
		Sent:     make([]model.Message, 0, len(msgs)),
		Received: make([]model.Message, 0, len(msgs)),
	}
	dropped := 0
	for _, m := range msgs {
		sender := NormalizeAddress(m.SenderAddress)
		switch {
		case sender == user:
			p.Sent = append(p.Sent, m)
		case NormalizeAddress(m.RecipientAddress) == user:
			p.Received = append(p.Received, m)
		default:
			dropped++
		}
	}

	if dropped > 0 {
		logger.Debug().Int("dropped", dropped).Msg("messages not addressed to or from user")
	}

	return p
}

// NormalizeAddress reduces "Name <addr>" to addr, trims and lower-cases.
func NormalizeAddress(s string) string {
	if start := strings.IndexByte(s, '<'); start >= 0 {
		if end := strings.IndexByte(s[start:], '>'); end > 0 {
			s = s[start+1 : start+end]
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// DisplayName returns the quoted-or-bare name before "<addr>", or "".
func DisplayName(s string) string {
	start := strings.IndexByte(s, '<')
	if start <= 0 {
		return ""
	}
	name := strings.TrimSpace(s[:start])
	return strings.Trim(name, `"`)
}

// SortDescending returns a copy of msgs ordered newest first. Equal
// timestamps keep their relative order.
func SortDescending(msgs []model.Message) []model.Message {
	out := slices.Clone(msgs)
	slices.SortStableFunc(out, func(a, b model.Message) int {
		switch {
		case a.SentTimestamp > b.SentTimestamp:
			return -1
		case a.SentTimestamp < b.SentTimestamp:
			return 1
		default:
			return 0
		}
	})
	return out
}
