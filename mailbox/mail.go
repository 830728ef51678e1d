package mailbox

import (
	"encoding/json"
	"time"
)

// Sentinels used by the normalizer.
const (
	// SentinelMe replaces the viewer's own address in recipient lists.
	SentinelMe = "me"
	// SentinelSystem is the from value for records with no sender identity.
	SentinelSystem = "Sistema"
)

// Identity is the viewer (or any participant) as name + email.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Flags is the derived per-viewer state of a Mail. It is computed once by
// the normalizer (effectiveFlags) and only ever changed through Store.Patch.
type Flags struct {
	Unread    bool `json:"unread"`
	Starred   bool `json:"starred"`
	Important bool `json:"important"`
}

// Attachment is a normalized attachment reference.
type Attachment struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	StorageKey  string `json:"storage_key"`
}

// Reply is a normalized threaded follow-up, carrying its own attachments.
type Reply struct {
	ID          int64        `json:"id"`
	From        string       `json:"from"`
	Body        string       `json:"body"`
	Date        *time.Time   `json:"date"`
	Attachments []Attachment `json:"attachments"`
}

// Mail is the canonical normalized representation of a workorder record.
// To/Cc/Bcc are ordered, deduplicated contact strings with the viewer's
// own address replaced by SentinelMe. Attachments holds only top-level
// attachments; reply-owned ones live on the Reply that owns them.
type Mail struct {
	ID          int64        `json:"id"`
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Cc          []string     `json:"cc"`
	Bcc         []string     `json:"bcc"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Date        *time.Time   `json:"date"`
	Folder      string       `json:"folder"`
	Attachments []Attachment `json:"attachments"`
	Replies     []Reply      `json:"replies"`
	Flags       Flags        `json:"flags"`

	// MailboxItemID is set when the viewer's per-recipient state row is
	// known; commands address it directly, falling back to the workorder
	// id when it is nil (the row is created server-side on first mutation).
	MailboxItemID *int64 `json:"mailbox_item_id"`

	// StateUpdatedAt is the logical recency of Flags: the per-recipient
	// row's updated_at, or the local wall clock for optimistic writes.
	// Patches carrying older state are discarded.
	StateUpdatedAt *time.Time `json:"state_updated_at"`
}

// ---- wire shapes ----
//
// Raw* types mirror the backend's loosely structured records. Every field
// is optional; the normalizer supplies a fallback for each.

type RawParticipant struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Position *int    `json:"position"`
}

type RawAttachment struct {
	ID          int64   `json:"id"`
	ReplyID     *int64  `json:"reply_id"`
	Filename    *string `json:"filename"`
	Size        *int64  `json:"size"`
	ContentType *string `json:"content_type"`
	StorageKey  *string `json:"storage_key"`
}

type RawReply struct {
	ID          int64           `json:"id"`
	AuthorName  *string         `json:"author_name"`
	AuthorEmail *string         `json:"author_email"`
	Body        *string         `json:"body"`
	CreatedAt   *string         `json:"created_at"`
	Attachments []RawAttachment `json:"attachments,omitempty"`
}

type RawMailboxItem struct {
	ID          int64   `json:"id"`
	ReadAt      *string `json:"read_at"`
	IsStarred   *bool   `json:"is_starred"`
	IsImportant *bool   `json:"is_important"`
	UpdatedAt   *string `json:"updated_at"`
}

// RawRecord is a workorder as delivered by the mailbox API: the record
// itself, its participants, replies and attachments, the viewer's
// per-recipient state when one exists, and the legacy top-level flags
// kept for rows that predate MailboxItem.
type RawRecord struct {
	ID           int64            `json:"id"`
	Subject      *string          `json:"subject"`
	Body         *string          `json:"body"`
	Folder       *string          `json:"folder"`
	Date         *string          `json:"date"`
	CreatedAt    *string          `json:"created_at"`
	UpdatedAt    *string          `json:"updated_at"`
	FromName     *string          `json:"from_name"`
	FromEmail    *string          `json:"from_email"`
	To           *RawParticipant  `json:"to"`
	Participants []RawParticipant `json:"participants"`
	Replies      []RawReply       `json:"replies"`
	Attachments  []RawAttachment  `json:"attachments"`
	MailboxItem  *RawMailboxItem  `json:"mailbox_item"`
	IsRead       *bool            `json:"is_read"`
	IsStarred    *bool            `json:"is_starred"`
	IsImportant  *bool            `json:"is_important"`
}

// ---- realtime envelope ----

// Event types delivered on the identity-scoped realtime channel.
const (
	EventWorkorderCreated = "workorder.created"
	EventReplyCreated     = "mail.reply.created"
	EventMailboxUpdated   = "mailbox.updated"
)

// Envelope is the realtime push wire format.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ReplyCreatedEvent is the payload of a mail.reply.created envelope.
type ReplyCreatedEvent struct {
	WorkorderID int64    `json:"workorder_id"`
	Reply       RawReply `json:"reply"`
}

// MailboxUpdatedEvent is the payload of a mailbox.updated envelope. Folder
// is present for moves; MailboxItem for per-recipient state changes.
type MailboxUpdatedEvent struct {
	WorkorderID int64           `json:"workorder_id"`
	Folder      *string         `json:"folder,omitempty"`
	MailboxItem *RawMailboxItem `json:"mailbox_item,omitempty"`
}
