package mailbox

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Ingester consumes realtime envelopes and merges them into the store.
// The channel is best-effort: duplicates and out-of-order deliveries are
// absorbed by the store's idempotent prepend/append and recency-checked
// patch; missed events are not replayed.
type Ingester struct {
	store  *Store
	viewer Identity
	logger *zap.Logger
}

// NewIngester creates an Ingester for the given viewer.
func NewIngester(store *Store, viewer Identity, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{store: store, viewer: viewer, logger: logger}
}

// Handle dispatches one envelope. Unknown types are logged and dropped.
func (in *Ingester) Handle(env Envelope) {
	switch env.Type {
	case EventWorkorderCreated:
		in.handleCreated(env.Data)
	case EventReplyCreated:
		in.handleReply(env.Data)
	case EventMailboxUpdated:
		in.handleUpdated(env.Data)
	default:
		in.logger.Debug("unhandled event type", zap.String("type", env.Type))
	}
}

func (in *Ingester) handleCreated(data json.RawMessage) {
	var rec RawRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		in.logger.Warn("malformed workorder.created payload", zap.Error(err))
		return
	}
	mail := Normalize(rec, in.viewer)
	if !in.store.Prepend(mail) {
		in.logger.Debug("duplicate workorder.created ignored", zap.Int64("mail_id", mail.ID))
	}
}

func (in *Ingester) handleReply(data json.RawMessage) {
	var ev ReplyCreatedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		in.logger.Warn("malformed mail.reply.created payload", zap.Error(err))
		return
	}
	reply := normalizeReply(ev.Reply, nil)
	if !in.store.AppendReply(ev.WorkorderID, reply) {
		// Uncached mail or duplicate reply: no fetch-on-demand, no retry.
		in.logger.Debug("reply event not applied",
			zap.Int64("workorder_id", ev.WorkorderID),
			zap.Int64("reply_id", reply.ID))
	}
}

func (in *Ingester) handleUpdated(data json.RawMessage) {
	var ev MailboxUpdatedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		in.logger.Warn("malformed mailbox.updated payload", zap.Error(err))
		return
	}

	patch := PartialMail{Folder: ev.Folder}
	if ev.MailboxItem != nil {
		// Same flag resolution rule as the normalizer.
		flags, updatedAt := flagsFromItem(*ev.MailboxItem)
		itemID := ev.MailboxItem.ID
		patch.Unread = &flags.Unread
		patch.Starred = &flags.Starred
		patch.Important = &flags.Important
		patch.MailboxItemID = &itemID
		patch.StateUpdatedAt = updatedAt
	}
	if !in.store.Patch(ev.WorkorderID, patch) {
		in.logger.Debug("mailbox.updated not applied",
			zap.Int64("workorder_id", ev.WorkorderID))
	}
}
