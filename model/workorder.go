package model

import "time"

// Participant roles. A workorder identity carries exactly one role.
const (
	RoleFrom = "from"
	RoleTo   = "to"
	RoleCc   = "cc"
	RoleBcc  = "bcc"
)

// Mailbox folders. Named filters (important, starred) are not folders;
// they are views over MailboxItem flags.
const (
	FolderInbox  = "mensajes"
	FolderSpam   = "spam"
	FolderDrafts = "drafts"
)

// Workorder is the underlying task/work-order record the mailbox presents
// as mail. Older rows predate the participants table and address a single
// recipient through ToAccountID; newer rows carry a Participant set.
type Workorder struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Subject     string     `gorm:"size:255" json:"subject"`
	Body        string     `gorm:"type:text" json:"body"`
	Folder      string     `gorm:"size:32;index;default:'mensajes'" json:"folder"`
	Date        *time.Time `json:"date"` // business date, distinct from CreatedAt
	FromName    string     `gorm:"size:64" json:"from_name"`
	FromEmail   string     `gorm:"size:128" json:"from_email"`
	ToAccountID *int64     `gorm:"index" json:"to_account_id"`

	// Legacy per-record flags, kept for rows created before MailboxItem
	// existed. Authoritative state lives on the viewer's MailboxItem.
	IsRead      bool `gorm:"default:false" json:"is_read"`
	IsStarred   bool `gorm:"default:false" json:"is_starred"`
	IsImportant bool `gorm:"default:false" json:"is_important"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Participant attaches an identity to a workorder under a single role.
type Participant struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkorderID int64  `gorm:"index:idx_participant_wo;not null" json:"workorder_id"`
	AccountID   *int64 `gorm:"index" json:"account_id"`
	Name        string `gorm:"size:64" json:"name"`
	Email       string `gorm:"size:128" json:"email"`
	Role        string `gorm:"size:8;not null" json:"role"`
	Position    int    `gorm:"default:0" json:"position"`
}

// Reply is a threaded follow-up on a workorder.
type Reply struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkorderID int64     `gorm:"index:idx_reply_wo;not null" json:"workorder_id"`
	AuthorName  string    `gorm:"size:64" json:"author_name"`
	AuthorEmail string    `gorm:"size:128" json:"author_email"`
	Body        string    `gorm:"type:text" json:"body"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Attachment belongs to a workorder; ReplyID is set when it was uploaded
// with a reply rather than the original message.
type Attachment struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkorderID int64     `gorm:"index:idx_attachment_wo;not null" json:"workorder_id"`
	ReplyID     *int64    `gorm:"index" json:"reply_id"`
	Filename    string    `gorm:"size:255" json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `gorm:"size:128" json:"content_type"`
	StorageKey  string    `gorm:"size:64" json:"storage_key"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
