package mailbox

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Category names the active mailbox partition: a folder (mensajes, spam,
// drafts) or a named filter (important, starred).
type Category string

const (
	CategoryInbox     Category = "mensajes"
	CategorySpam      Category = "spam"
	CategoryDrafts    Category = "drafts"
	CategoryImportant Category = "important"
	CategoryStarred   Category = "starred"
)

// Pagination is the list paging metadata delivered with each folder page.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Snapshot is one consistent view of the mailbox state. Category, list,
// pagination, loading flag and open mail change together under a single
// version so observers never see a half-applied update.
type Snapshot struct {
	Version    uint64
	Category   Category
	Mails      []Mail
	Pagination Pagination
	Loading    bool
	Open       *Mail
}

// PartialMail is a merge patch: nil fields are preserved on the target.
// StateUpdatedAt, when set, is the patch's logical recency; a patch older
// than the entry's current state is discarded.
type PartialMail struct {
	Unread         *bool
	Starred        *bool
	Important      *bool
	Folder         *string
	MailboxItemID  *int64
	StateUpdatedAt *time.Time
}

const subBuf = 64

// Store is the engine's single shared mutable resource. All mutations run
// under one mutex, produce a fresh Mails slice (never in-place), bump the
// snapshot version, and emit to subscribers in issuance order. Fetch
// results are tagged with a generation token; results from a stale
// generation are discarded at apply time.
type Store struct {
	mu     sync.Mutex
	snap   Snapshot
	gen    uint64
	subs   []chan Snapshot
	logger *zap.Logger
}

// NewStore creates an empty Store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger}
}

// Snapshot returns the current state. The contained slices are shared and
// must be treated as immutable by callers.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Generation returns the current category generation token.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// ActiveCategory returns the current category together with its generation
// token in one locked read, so a fetch tagged with the token is guaranteed
// to be for that category.
func (s *Store) ActiveCategory() (Category, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Category, s.gen
}

// Subscribe returns a channel receiving every new snapshot, and a cancel
// function. A subscriber that falls more than subBuf snapshots behind
// misses intermediate versions but always converges on the latest.
func (s *Store) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subBuf)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// emit must be called with s.mu held.
func (s *Store) emit() {
	s.snap.Version++
	for _, ch := range s.subs {
		select {
		case ch <- s.snap:
		default:
			// Subscriber is not keeping up; it will see the next snapshot.
		}
	}
}

// SetCategory replaces the active category metadata and invalidates every
// in-flight fetch for the previous one by bumping the generation token.
// Fetching the new category's content is the caller's responsibility.
func (s *Store) SetCategory(cat Category) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.snap.Category = cat
	s.emit()
	return s.gen
}

// BeginLoading raises the loading flag for the given generation. A stale
// generation is a no-op.
func (s *Store) BeginLoading(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.snap.Loading = true
	s.emit()
	return true
}

// ReplaceAll atomically replaces the list and pagination, clearing the
// loading flag. A result tagged with a stale generation is discarded,
// never merged.
func (s *Store) ReplaceAll(gen uint64, mails []Mail, pg Pagination) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.logger.Debug("discarding stale fetch result",
			zap.Uint64("result_gen", gen),
			zap.Uint64("current_gen", s.gen))
		return false
	}
	next := make([]Mail, len(mails))
	copy(next, mails)
	s.snap.Mails = next
	s.snap.Pagination = pg
	s.snap.Loading = false
	s.emit()
	return true
}

// FailLoading clears the loading flag after a failed fetch for the given
// generation.
func (s *Store) FailLoading(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.snap.Loading = false
	s.emit()
	return true
}

// Prepend inserts a mail at the head of the list unless its id is already
// present, and bumps the pagination total. Idempotent.
func (s *Store) Prepend(m Mail) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snap.Mails {
		if s.snap.Mails[i].ID == m.ID {
			return false
		}
	}
	next := make([]Mail, 0, len(s.snap.Mails)+1)
	next = append(next, m)
	next = append(next, s.snap.Mails...)
	s.snap.Mails = next
	s.snap.Pagination.Total++
	s.emit()
	return true
}

// Mail returns a copy of the cached mail with the given id.
func (s *Store) Mail(id int64) (Mail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snap.Mails {
		if s.snap.Mails[i].ID == id {
			return s.snap.Mails[i], true
		}
	}
	if s.snap.Open != nil && s.snap.Open.ID == id {
		return *s.snap.Open, true
	}
	return Mail{}, false
}

// applyPatch merges p into m. Returns false when the patch carries state
// strictly older than what m already has; an undated flag patch never
// overrides dated state.
func applyPatch(m *Mail, p PartialMail) bool {
	if p.StateUpdatedAt != nil && m.StateUpdatedAt != nil &&
		p.StateUpdatedAt.Before(*m.StateUpdatedAt) {
		return false
	}
	hasFlags := p.Unread != nil || p.Starred != nil || p.Important != nil
	if hasFlags && p.StateUpdatedAt == nil && m.StateUpdatedAt != nil {
		return false
	}
	if p.Unread != nil {
		m.Flags.Unread = *p.Unread
	}
	if p.Starred != nil {
		m.Flags.Starred = *p.Starred
	}
	if p.Important != nil {
		m.Flags.Important = *p.Important
	}
	if p.Folder != nil {
		m.Folder = *p.Folder
	}
	if p.MailboxItemID != nil {
		m.MailboxItemID = p.MailboxItemID
	}
	if p.StateUpdatedAt != nil {
		m.StateUpdatedAt = p.StateUpdatedAt
	}
	return true
}

// Patch merges the partial into the list entry with the given id and into
// the open mail if it matches. Fields absent from the partial are
// preserved; a patch older than the entry's current state is dropped.
func (s *Store) Patch(id int64, p PartialMail) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := false
	idx := -1
	for i := range s.snap.Mails {
		if s.snap.Mails[i].ID == id {
			idx = i
			break
		}
	}
	if idx >= 0 {
		next := make([]Mail, len(s.snap.Mails))
		copy(next, s.snap.Mails)
		if applyPatch(&next[idx], p) {
			s.snap.Mails = next
			applied = true
		}
	}
	if s.snap.Open != nil && s.snap.Open.ID == id {
		open := *s.snap.Open
		if applyPatch(&open, p) {
			s.snap.Open = &open
			applied = true
		}
	}
	if applied {
		s.emit()
	}
	return applied
}

// Restore forcibly puts back a previously captured mail, bypassing the
// recency check. Used to roll back a failed optimistic mutation.
func (s *Store) Restore(id int64, m Mail) {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := false
	for i := range s.snap.Mails {
		if s.snap.Mails[i].ID == id {
			next := make([]Mail, len(s.snap.Mails))
			copy(next, s.snap.Mails)
			next[i] = m
			s.snap.Mails = next
			touched = true
			break
		}
	}
	if s.snap.Open != nil && s.snap.Open.ID == id {
		open := m
		s.snap.Open = &open
		touched = true
	}
	if touched {
		s.emit()
	}
}

// AppendReply appends a reply to the mail with the given id unless a reply
// with the same id is already present. Idempotent. Appending to a mail
// that is not cached is a no-op.
func (s *Store) AppendReply(id int64, r Reply) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	appendTo := func(m Mail) (Mail, bool) {
		for i := range m.Replies {
			if m.Replies[i].ID == r.ID {
				return m, false
			}
		}
		replies := make([]Reply, 0, len(m.Replies)+1)
		replies = append(replies, m.Replies...)
		replies = append(replies, r)
		m.Replies = replies
		return m, true
	}

	applied := false
	for i := range s.snap.Mails {
		if s.snap.Mails[i].ID == id {
			next := make([]Mail, len(s.snap.Mails))
			copy(next, s.snap.Mails)
			if m, ok := appendTo(next[i]); ok {
				next[i] = m
				s.snap.Mails = next
				applied = true
			}
			break
		}
	}
	if s.snap.Open != nil && s.snap.Open.ID == id {
		if m, ok := appendTo(*s.snap.Open); ok {
			s.snap.Open = &m
			applied = true
		}
	}
	if applied {
		s.emit()
	}
	return applied
}

// Open sets the currently open mail.
func (s *Store) Open(m Mail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	open := m
	s.snap.Open = &open
	s.emit()
}

// Close clears the currently open mail.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Open == nil {
		return
	}
	s.snap.Open = nil
	s.emit()
}
