package httpapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/nhle/mailsync/internal/source"
)

// listResponse is the envelope of GET /emails. The server has answered
// with two shapes over time: a flat "emails" array, or the mailbox split
// into "sent" and "received", either nested under "emails" or at the top
// level. decodeBatch folds both into one record list.
type listResponse struct {
	Success     *bool           `json:"success"`
	Emails      json.RawMessage `json:"emails"`
	Sent        json.RawMessage `json:"sent"`
	Received    json.RawMessage `json:"received"`
	TotalPages  *int            `json:"totalPages"`
	CurrentPage *int            `json:"currentPage"`
	LastSync    string          `json:"lastSync"`
}

type splitPayload struct {
	Sent     json.RawMessage `json:"sent"`
	Received json.RawMessage `json:"received"`
}

// batch is the tagged union of the two list response shapes.
type batch interface {
	records() ([]source.Record, int)
}

// flatBatch is the "emails": [...] shape.
type flatBatch struct {
	emails json.RawMessage
}

func (b flatBatch) records() ([]source.Record, int) {
	return decodeRecords(b.emails)
}

// splitBatch is the {sent: [...], received: [...]} shape.
type splitBatch struct {
	sent     json.RawMessage
	received json.RawMessage
}

func (b splitBatch) records() ([]source.Record, int) {
	sent, skippedSent := decodeRecords(b.sent)
	received, skippedReceived := decodeRecords(b.received)
	return append(sent, received...), skippedSent + skippedReceived
}

// decodeBatch picks the variant the server answered with.
func decodeBatch(resp listResponse) batch {
	emails := bytes.TrimSpace(resp.Emails)
	if len(emails) > 0 && emails[0] == '[' {
		return flatBatch{emails: emails}
	}
	if len(emails) > 0 && emails[0] == '{' {
		var sp splitPayload
		if err := json.Unmarshal(emails, &sp); err == nil {
			return splitBatch{sent: sp.Sent, received: sp.Received}
		}
	}
	return splitBatch{sent: resp.Sent, received: resp.Received}
}

// decodeRecords decodes a JSON array of email objects. Elements that are
// not objects are skipped and counted; fields with unexpected types are
// coerced individually so one bad field never drops a record.
func decodeRecords(raw json.RawMessage) ([]source.Record, int) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, 0
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, 1
	}

	out := make([]source.Record, 0, len(elems))
	skipped := 0
	for _, elem := range elems {
		rec, ok := decodeRecord(elem)
		if !ok {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	return out, skipped
}

// Field aliases, current wire name first.
var (
	idKeys         = []string{"id", "email_id"}
	externalIDKeys = []string{"external_id", "externalId", "message_id", "gmail_id"}
	senderKeys     = []string{"sender_email", "senderEmail", "from"}
	recipientKeys  = []string{"recipient_email", "recipientEmail", "to"}
	subjectKeys    = []string{"subject"}
	bodyKeys       = []string{"body", "content"}
	sentAtKeys     = []string{"sent_at", "sentAt", "date", "internal_date"}
	readAtKeys     = []string{"read_at", "readAt"}
	tagKeys        = []string{"labels", "label_ids", "labelIds", "tags"}
	statusKeys     = []string{"status"}
)

func decodeRecord(raw json.RawMessage) (source.Record, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return source.Record{}, false
	}

	return source.Record{
		ID:         pickString(fields, idKeys),
		ExternalID: pickString(fields, externalIDKeys),
		Sender:     pickString(fields, senderKeys),
		Recipient:  pickString(fields, recipientKeys),
		Subject:    pickString(fields, subjectKeys),
		Body:       pickString(fields, bodyKeys),
		SentAt:     pickString(fields, sentAtKeys),
		ReadAt:     pickString(fields, readAtKeys),
		Tags:       pickStrings(fields, tagKeys),
		Status:     pickString(fields, statusKeys),
	}, true
}

func pickString(fields map[string]json.RawMessage, keys []string) string {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			if s := coerceString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func pickStrings(fields map[string]json.RawMessage, keys []string) []string {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			if ss := coerceStrings(v); len(ss) > 0 {
				return ss
			}
		}
	}
	return nil
}

// coerceString renders a JSON scalar as text. Strings are unquoted,
// numbers keep their literal form, null/objects/arrays become "".
func coerceString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return ""
		}
		return strconv.FormatBool(b)
	case 'n', '{', '[':
		return ""
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return ""
		}
		return n.String()
	}
}

// coerceStrings accepts an array of scalars or a single comma-separated
// string.
func coerceStrings(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	if raw[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil
		}
		out := make([]string, 0, len(elems))
		for _, e := range elems {
			if s := coerceString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	s := coerceString(raw)
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type emailResponse struct {
	Email json.RawMessage `json:"email"`
}

type refreshResponse struct {
	NewEmailCount int    `json:"newEmailCount"`
	LastSync      string `json:"lastSync"`
}

type userResponse struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

type sendRequest struct {
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
}
