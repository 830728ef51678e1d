package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var viewer = Identity{Name: "Ana", Email: "ana@gestia.local"}

func sp(s string) *string { return &s }
func bp(b bool) *bool     { return &b }
func ip(i int) *int       { return &i }

func part(name, email, role string, pos int) RawParticipant {
	return RawParticipant{Name: sp(name), Email: sp(email), Role: sp(role), Position: ip(pos)}
}

func TestNormalizeEmptyRecord(t *testing.T) {
	m := Normalize(RawRecord{ID: 7}, viewer)

	assert.Equal(t, int64(7), m.ID)
	assert.Equal(t, SentinelSystem, m.From)
	assert.Empty(t, m.To)
	assert.Empty(t, m.Cc)
	assert.Empty(t, m.Bcc)
	assert.Equal(t, "", m.Subject)
	assert.Nil(t, m.Date)
	assert.True(t, m.Flags.Unread)
	assert.Nil(t, m.MailboxItemID)
}

func TestNormalizeFromFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		fromName  *string
		fromEmail *string
		want      string
	}{
		{"both", sp("Luis"), sp("luis@acme.com"), "Luis <luis@acme.com>"},
		{"name only", sp("Luis"), nil, "Luis"},
		{"email only", nil, sp("luis@acme.com"), "luis@acme.com"},
		{"neither", nil, nil, SentinelSystem},
		{"blank strings", sp("  "), sp(""), SentinelSystem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Normalize(RawRecord{FromName: tt.fromName, FromEmail: tt.fromEmail}, viewer)
			assert.Equal(t, tt.want, m.From)
		})
	}
}

func TestNormalizeViewerSentinel(t *testing.T) {
	rec := RawRecord{
		Participants: []RawParticipant{
			part("Ana", "ANA@gestia.local", "to", 0),
			part("Luis", "luis@acme.com", "to", 1),
		},
	}
	m := Normalize(rec, viewer)
	require.Len(t, m.To, 2)
	assert.Equal(t, SentinelMe, m.To[0])
	assert.Equal(t, "Luis <luis@acme.com>", m.To[1])
}

func TestNormalizeDirectToExclusive(t *testing.T) {
	direct := part("Luis", "luis@acme.com", "", 0)
	rec := RawRecord{
		To: &direct,
		Participants: []RawParticipant{
			part("Eva", "eva@acme.com", "cc", 0),
		},
	}
	m := Normalize(rec, viewer)
	assert.Equal(t, []string{"Luis <luis@acme.com>"}, m.To)
	assert.Empty(t, m.Cc, "direct reference suppresses the participant set")
}

func TestNormalizeRecipientOrderAndDedup(t *testing.T) {
	rec := RawRecord{
		Participants: []RawParticipant{
			part("Eva", "eva@acme.com", "cc", 3),
			part("Luis", "luis@acme.com", "to", 2),
			part("Sam", "sam@acme.com", "to", 1),
			// Same address again under cc: to-role wins.
			part("Luis dup", "LUIS@acme.com", "cc", 4),
		},
	}
	m := Normalize(rec, viewer)
	assert.Equal(t, []string{"Sam <sam@acme.com>", "Luis <luis@acme.com>"}, m.To)
	assert.Equal(t, []string{"Eva <eva@acme.com>"}, m.Cc)
}

func TestNormalizeDateFallbackChain(t *testing.T) {
	m := Normalize(RawRecord{Date: sp("2024-01-01T00:00:00")}, viewer)
	require.NotNil(t, m.Date)
	assert.Equal(t, 2024, m.Date.Year())

	m = Normalize(RawRecord{CreatedAt: sp("2023-06-15 10:30:00")}, viewer)
	require.NotNil(t, m.Date)
	assert.Equal(t, time.June, m.Date.Month())

	m = Normalize(RawRecord{UpdatedAt: sp("2022-02-02")}, viewer)
	require.NotNil(t, m.Date)
	assert.Equal(t, 2022, m.Date.Year())

	m = Normalize(RawRecord{Date: sp("not a date")}, viewer)
	assert.Nil(t, m.Date)
}

func TestNormalizeAttachmentPartition(t *testing.T) {
	replyID := int64(40)
	rec := RawRecord{
		Attachments: []RawAttachment{
			{ID: 1, Filename: sp("top.pdf")},
			{ID: 2, ReplyID: &replyID, Filename: sp("nested.png")},
		},
		Replies: []RawReply{
			{ID: 40, AuthorEmail: sp("luis@acme.com"), Body: sp("see attached")},
		},
	}
	m := Normalize(rec, viewer)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "top.pdf", m.Attachments[0].Filename)
	require.Len(t, m.Replies, 1)
	require.Len(t, m.Replies[0].Attachments, 1)
	assert.Equal(t, "nested.png", m.Replies[0].Attachments[0].Filename)
}

func TestNormalizeReplyOrdering(t *testing.T) {
	rec := RawRecord{
		Replies: []RawReply{
			{ID: 3, CreatedAt: sp("2024-03-01T08:00:00Z")},
			{ID: 1, CreatedAt: sp("2024-01-01T08:00:00Z")},
			{ID: 2, CreatedAt: sp("2024-01-01T08:00:00Z")},
		},
	}
	m := Normalize(rec, viewer)
	require.Len(t, m.Replies, 3)
	assert.Equal(t, int64(1), m.Replies[0].ID)
	assert.Equal(t, int64(2), m.Replies[1].ID, "equal timestamps fall back to id order")
	assert.Equal(t, int64(3), m.Replies[2].ID)
}

func TestEffectiveFlagsItemWinsOverLegacy(t *testing.T) {
	rec := RawRecord{
		IsRead:    bp(true),
		IsStarred: bp(true),
		MailboxItem: &RawMailboxItem{
			ID:        12,
			ReadAt:    nil,
			IsStarred: bp(false),
			UpdatedAt: sp("2024-05-01T12:00:00Z"),
		},
	}
	m := Normalize(rec, viewer)
	assert.True(t, m.Flags.Unread, "nil read_at means unread regardless of legacy is_read")
	assert.False(t, m.Flags.Starred)
	require.NotNil(t, m.MailboxItemID)
	assert.Equal(t, int64(12), *m.MailboxItemID)
	require.NotNil(t, m.StateUpdatedAt)
}

func TestEffectiveFlagsLegacyFallback(t *testing.T) {
	m := Normalize(RawRecord{IsRead: bp(true), IsImportant: bp(true)}, viewer)
	assert.False(t, m.Flags.Unread)
	assert.True(t, m.Flags.Important)
	assert.Nil(t, m.MailboxItemID)
	assert.Nil(t, m.StateUpdatedAt)
}

func TestNormalizeReplyAuthorFallback(t *testing.T) {
	r := normalizeReply(RawReply{ID: 1}, nil)
	assert.Equal(t, "", r.From)

	r = normalizeReply(RawReply{ID: 2, AuthorName: sp("Eva")}, nil)
	assert.Equal(t, "Eva", r.From)
}
