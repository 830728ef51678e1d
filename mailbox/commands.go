package mailbox

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrNotCached is returned when a command targets a mail that is not in
// the active list.
var ErrNotCached = errors.New("mailbox: mail not cached")

// HandleKind discriminates the two addressing schemes for state mutations.
type HandleKind int

const (
	// ByMailboxItem addresses the viewer's per-recipient state row.
	ByMailboxItem HandleKind = iota
	// ByWorkorder addresses the workorder itself; the backend creates the
	// per-recipient row on first use.
	ByWorkorder
)

// Handle is the resolved mutation target.
type Handle struct {
	Kind HandleKind
	ID   int64
}

// resolveHandle picks the addressing scheme once per command: the
// mailbox-item row when the viewer already has one, else the workorder.
// A viewer can be a participant before any per-recipient row exists.
func resolveHandle(m Mail) Handle {
	if m.MailboxItemID != nil {
		return Handle{Kind: ByMailboxItem, ID: *m.MailboxItemID}
	}
	return Handle{Kind: ByWorkorder, ID: m.ID}
}

// Commander applies user-issued mutations optimistically and reconciles
// them with server responses by logical recency, never by response
// arrival order.
type Commander struct {
	store  *Store
	api    *APIClient
	logger *zap.Logger
}

// NewCommander creates a Commander over the given store and API client.
func NewCommander(store *Store, api *APIClient, logger *zap.Logger) *Commander {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Commander{store: store, api: api, logger: logger}
}

// mutateState runs the shared command flow: resolve handle, save the
// pre-mutation snapshot, apply the intended end-state optimistically,
// issue the request, then reconcile or roll back.
func (c *Commander) mutateState(ctx context.Context, id int64, verb string, value bool, desired PartialMail) error {
	m, ok := c.store.Mail(id)
	if !ok {
		return ErrNotCached
	}
	handle := resolveHandle(m)
	saved := m

	now := time.Now()
	desired.StateUpdatedAt = &now
	c.store.Patch(id, desired)

	item, err := c.api.PatchState(ctx, handle, verb, value)
	if err != nil {
		c.logger.Warn("command failed, rolling back optimistic patch",
			zap.Int64("mail_id", id),
			zap.String("verb", verb),
			zap.Error(err))
		c.store.Restore(id, saved)
		return err
	}

	// The lazily created row's id is identity, not state: record it even
	// when the corroborating state is not newer.
	if item.ID != 0 {
		itemID := item.ID
		c.store.Patch(id, PartialMail{MailboxItemID: &itemID})
	}

	// Apply the server's corroborating state only when it carries later
	// information than the optimistic write.
	flags, updatedAt := flagsFromItem(*item)
	if updatedAt != nil && updatedAt.After(now) {
		c.store.Patch(id, PartialMail{
			Unread:         &flags.Unread,
			Starred:        &flags.Starred,
			Important:      &flags.Important,
			StateUpdatedAt: updatedAt,
		})
	}
	return nil
}

// MarkRead sets or clears the read marker of one mail.
func (c *Commander) MarkRead(ctx context.Context, id int64, read bool) error {
	unread := !read
	return c.mutateState(ctx, id, "read", read, PartialMail{Unread: &unread})
}

// ToggleStar flips the star flag of one mail.
func (c *Commander) ToggleStar(ctx context.Context, id int64) error {
	m, ok := c.store.Mail(id)
	if !ok {
		return ErrNotCached
	}
	starred := !m.Flags.Starred
	return c.mutateState(ctx, id, "star", starred, PartialMail{Starred: &starred})
}

// ToggleImportant flips the important flag of one mail.
func (c *Commander) ToggleImportant(ctx context.Context, id int64) error {
	m, ok := c.store.Mail(id)
	if !ok {
		return ErrNotCached
	}
	important := !m.Flags.Important
	return c.mutateState(ctx, id, "important", important, PartialMail{Important: &important})
}

// MoveFolder transitions one mail to another folder. Only the folder field
// changes; whether the presentation navigates away from a now-excluded
// item is not this component's concern.
func (c *Commander) MoveFolder(ctx context.Context, id int64, folder string) error {
	m, ok := c.store.Mail(id)
	if !ok {
		return ErrNotCached
	}
	saved := m

	c.store.Patch(id, PartialMail{Folder: &folder})

	if err := c.api.Move(ctx, m.ID, folder); err != nil {
		c.logger.Warn("move failed, rolling back optimistic patch",
			zap.Int64("mail_id", id),
			zap.String("folder", folder),
			zap.Error(err))
		c.store.Restore(id, saved)
		return err
	}
	return nil
}
