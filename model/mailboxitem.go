package model

import "time"

// MailboxItem is the per-recipient state of a workorder: read marker and
// star/important flags for one account. The row is created lazily the
// first time the recipient mutates state, so a participant may exist
// without one.
type MailboxItem struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkorderID int64      `gorm:"uniqueIndex:idx_item_wo_acct;not null" json:"workorder_id"`
	AccountID   int64      `gorm:"uniqueIndex:idx_item_wo_acct;not null" json:"account_id"`
	ReadAt      *time.Time `json:"read_at"`
	IsStarred   bool       `gorm:"default:false" json:"is_starred"`
	IsImportant bool       `gorm:"default:false" json:"is_important"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Draft is an unsent message owned by one account.
type Draft struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64     `gorm:"index;not null" json:"account_id"`
	To        string    `gorm:"size:512" json:"to"`
	Cc        string    `gorm:"size:512" json:"cc"`
	Bcc       string    `gorm:"size:512" json:"bcc"`
	Subject   string    `gorm:"size:255" json:"subject"`
	Body      string    `gorm:"type:text" json:"body"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
