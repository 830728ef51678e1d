package mailbox

import (
	"context"

	"go.uber.org/zap"
)

// Engine is the mailbox synchronization engine: it owns the Store and
// funnels category fetches, user commands and realtime events through its
// merge operations. Presentation reads state via Snapshots/Snapshot and
// mutates only through the methods below.
type Engine struct {
	store   *Store
	api     *APIClient
	cmd     *Commander
	ingest  *Ingester
	channel *Channel
	viewer  Identity
	logger  *zap.Logger
}

// New creates an Engine for the given viewer. wsURL is the full realtime
// endpoint including the auth token; it may be empty for callers that
// feed events in directly (tests, alternative transports).
func New(api *APIClient, viewer Identity, wsURL string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := NewStore(logger)
	e := &Engine{
		store:  store,
		api:    api,
		cmd:    NewCommander(store, api, logger),
		ingest: NewIngester(store, viewer, logger),
		viewer: viewer,
		logger: logger,
	}
	if wsURL != "" {
		e.channel = NewChannel(wsURL, e.ingest.Handle, logger)
	}
	return e
}

// Store exposes the underlying store for read access.
func (e *Engine) Store() *Store { return e.store }

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot { return e.store.Snapshot() }

// Snapshots subscribes to state changes.
func (e *Engine) Snapshots() (<-chan Snapshot, func()) { return e.store.Subscribe() }

// Run drives the realtime channel until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.channel == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return e.channel.Run(ctx)
}

// HandleEvent ingests one envelope directly, bypassing the channel.
func (e *Engine) HandleEvent(env Envelope) { e.ingest.Handle(env) }

// OpenCategory switches the active category and fetches its first page.
// The fetch is tagged with the generation token minted by the switch; if
// the user switches again before it resolves, the late result is
// discarded by the store.
func (e *Engine) OpenCategory(ctx context.Context, cat Category) error {
	gen := e.store.SetCategory(cat)
	return e.fetchPage(ctx, cat, 1, gen)
}

// FetchPage loads another page of the active category. Category and
// generation come from one locked read; a switch racing this call leaves
// the result tagged stale instead of filed under the new category.
func (e *Engine) FetchPage(ctx context.Context, page int) error {
	cat, gen := e.store.ActiveCategory()
	return e.fetchPage(ctx, cat, page, gen)
}

func (e *Engine) fetchPage(ctx context.Context, cat Category, page int, gen uint64) error {
	e.store.BeginLoading(gen)
	res, err := e.api.FetchFolder(ctx, cat, page)
	if err != nil {
		e.store.FailLoading(gen)
		e.logger.Warn("category fetch failed",
			zap.String("category", string(cat)),
			zap.Int("page", page),
			zap.Error(err))
		return err
	}
	mails := make([]Mail, 0, len(res.Mails))
	for _, rec := range res.Mails {
		mails = append(mails, Normalize(rec, e.viewer))
	}
	e.store.ReplaceAll(gen, mails, res.Pagination)
	return nil
}

// OpenMail marks the cached mail with the given id as the open one.
func (e *Engine) OpenMail(id int64) error {
	m, ok := e.store.Mail(id)
	if !ok {
		return ErrNotCached
	}
	e.store.Open(m)
	return nil
}

// CloseMail clears the open mail.
func (e *Engine) CloseMail() { e.store.Close() }

// MarkRead sets or clears the read marker, optimistically.
func (e *Engine) MarkRead(ctx context.Context, id int64, read bool) error {
	return e.cmd.MarkRead(ctx, id, read)
}

// ToggleStar flips the star flag, optimistically.
func (e *Engine) ToggleStar(ctx context.Context, id int64) error {
	return e.cmd.ToggleStar(ctx, id)
}

// ToggleImportant flips the important flag, optimistically.
func (e *Engine) ToggleImportant(ctx context.Context, id int64) error {
	return e.cmd.ToggleImportant(ctx, id)
}

// MoveFolder transitions a mail to another folder, optimistically.
func (e *Engine) MoveFolder(ctx context.Context, id int64, folder string) error {
	return e.cmd.MoveFolder(ctx, id, folder)
}

// Compose creates a new workorder through the API. The created mail
// reaches this engine (and every other recipient) via the realtime
// channel, not through this call.
func (e *Engine) Compose(ctx context.Context, req ComposeRequest) (int64, error) {
	return e.api.Compose(ctx, req)
}

// StoreDraft persists a draft through the API.
func (e *Engine) StoreDraft(ctx context.Context, req DraftRequest) error {
	return e.api.StoreDraft(ctx, req)
}

// DeleteDraft removes a stored draft through the API.
func (e *Engine) DeleteDraft(ctx context.Context, id int64) error {
	return e.api.DeleteDraft(ctx, id)
}

// ReplyTo posts a reply with attachments through the API. The reply is
// merged into the cache when its mail.reply.created event arrives.
func (e *Engine) ReplyTo(ctx context.Context, workorderID int64, body string, atts []ReplyAttachment) error {
	return e.api.ReplyTo(ctx, workorderID, body, atts)
}
