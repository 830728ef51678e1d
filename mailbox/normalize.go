package mailbox

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// timeLayouts are tried in order when parsing wire timestamps. The backend
// emits RFC 3339, but older rows carry bare datetimes.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t
		}
	}
	return nil
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolVal(b *bool) bool {
	return b != nil && *b
}

// formatContact renders an identity as "Name <email>", falling back to
// whichever half is present. Both absent yields the empty string.
func formatContact(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s <%s>", name, email)
	case name != "":
		return name
	default:
		return email
	}
}

// IsViewer reports whether the given email belongs to the viewer,
// compared case-insensitively.
func (id Identity) IsViewer(email string) bool {
	return id.Email != "" && strings.EqualFold(strings.TrimSpace(email), id.Email)
}

// resolveContact renders one participant, substituting SentinelMe when the
// address is the viewer's own.
func resolveContact(p RawParticipant, viewer Identity) string {
	email := strVal(p.Email)
	if viewer.IsViewer(email) {
		return SentinelMe
	}
	return formatContact(strVal(p.Name), email)
}

// effectiveFlags resolves the dual flag representation once: the nested
// per-recipient state wins when present (read_at == nil means unread);
// the legacy top-level booleans are the fallback.
func effectiveFlags(rec RawRecord) (Flags, *int64, *time.Time) {
	if item := rec.MailboxItem; item != nil {
		id := item.ID
		return Flags{
			Unread:    parseTime(item.ReadAt) == nil,
			Starred:   boolVal(item.IsStarred),
			Important: boolVal(item.IsImportant),
		}, &id, parseTime(item.UpdatedAt)
	}
	return Flags{
		Unread:    !boolVal(rec.IsRead),
		Starred:   boolVal(rec.IsStarred),
		Important: boolVal(rec.IsImportant),
	}, nil, nil
}

// flagsFromItem applies the same resolution rule to a per-recipient state
// block delivered on its own (mailbox.updated events).
func flagsFromItem(item RawMailboxItem) (Flags, *time.Time) {
	return Flags{
		Unread:    parseTime(item.ReadAt) == nil,
		Starred:   boolVal(item.IsStarred),
		Important: boolVal(item.IsImportant),
	}, parseTime(item.UpdatedAt)
}

// recipients derives the to/cc/bcc lists. A direct "to" reference is
// exclusive; otherwise participants are filtered by role, ordered by their
// explicit position (stable on ties), deduplicated case-insensitively by
// email with to > cc > bcc precedence, and redacted for the viewer.
func recipients(rec RawRecord, viewer Identity) (to, cc, bcc []string) {
	if rec.To != nil {
		return []string{resolveContact(*rec.To, viewer)}, nil, nil
	}

	parts := make([]RawParticipant, len(rec.Participants))
	copy(parts, rec.Participants)
	sort.SliceStable(parts, func(i, j int) bool {
		pi, pj := 0, 0
		if parts[i].Position != nil {
			pi = *parts[i].Position
		}
		if parts[j].Position != nil {
			pj = *parts[j].Position
		}
		return pi < pj
	})

	seen := make(map[string]bool)
	collect := func(role string) []string {
		var out []string
		for _, p := range parts {
			if strVal(p.Role) != role {
				continue
			}
			contact := resolveContact(p, viewer)
			if contact == "" {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(strVal(p.Email)))
			if key == "" {
				key = strings.ToLower(contact)
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, contact)
		}
		return out
	}

	return collect("to"), collect("cc"), collect("bcc")
}

// normalizeAttachment fills attachment fallbacks.
func normalizeAttachment(a RawAttachment) Attachment {
	var size int64
	if a.Size != nil {
		size = *a.Size
	}
	return Attachment{
		ID:          a.ID,
		Filename:    strVal(a.Filename),
		Size:        size,
		ContentType: strVal(a.ContentType),
		StorageKey:  strVal(a.StorageKey),
	}
}

// normalizeReply normalizes one reply together with the attachments it
// owns: those partitioned off the record plus any inlined on the reply.
func normalizeReply(r RawReply, owned []RawAttachment) Reply {
	atts := make([]Attachment, 0, len(owned)+len(r.Attachments))
	for _, a := range owned {
		atts = append(atts, normalizeAttachment(a))
	}
	for _, a := range r.Attachments {
		atts = append(atts, normalizeAttachment(a))
	}
	return Reply{
		ID:          r.ID,
		From:        formatContact(strVal(r.AuthorName), strVal(r.AuthorEmail)),
		Body:        strVal(r.Body),
		Date:        parseTime(r.CreatedAt),
		Attachments: atts,
	}
}

// Normalize maps a raw workorder record into a canonical Mail for the
// given viewer. It is total: missing structure falls back to defaults and
// never produces an error.
func Normalize(rec RawRecord, viewer Identity) Mail {
	from := formatContact(strVal(rec.FromName), strVal(rec.FromEmail))
	if from == "" {
		from = SentinelSystem
	}

	to, cc, bcc := recipients(rec, viewer)

	// Business date wins; creation and update times are fallbacks. All
	// absent leaves the date nil.
	date := parseTime(rec.Date)
	if date == nil {
		date = parseTime(rec.CreatedAt)
	}
	if date == nil {
		date = parseTime(rec.UpdatedAt)
	}

	// Partition attachments: no parent reply means top-level.
	var topLevel []Attachment
	byReply := make(map[int64][]RawAttachment)
	for _, a := range rec.Attachments {
		if a.ReplyID == nil {
			topLevel = append(topLevel, normalizeAttachment(a))
			continue
		}
		byReply[*a.ReplyID] = append(byReply[*a.ReplyID], a)
	}

	rawReplies := make([]RawReply, len(rec.Replies))
	copy(rawReplies, rec.Replies)
	sort.SliceStable(rawReplies, func(i, j int) bool {
		ti, tj := parseTime(rawReplies[i].CreatedAt), parseTime(rawReplies[j].CreatedAt)
		if ti != nil && tj != nil && !ti.Equal(*tj) {
			return ti.Before(*tj)
		}
		return rawReplies[i].ID < rawReplies[j].ID
	})
	replies := make([]Reply, 0, len(rawReplies))
	for _, r := range rawReplies {
		replies = append(replies, normalizeReply(r, byReply[r.ID]))
	}

	flags, itemID, stateAt := effectiveFlags(rec)

	return Mail{
		ID:             rec.ID,
		From:           from,
		To:             to,
		Cc:             cc,
		Bcc:            bcc,
		Subject:        strVal(rec.Subject),
		Body:           strVal(rec.Body),
		Date:           date,
		Folder:         strVal(rec.Folder),
		Attachments:    topLevel,
		Replies:        replies,
		Flags:          flags,
		MailboxItemID:  itemID,
		StateUpdatedAt: stateAt,
	}
}
