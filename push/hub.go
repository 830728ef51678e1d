package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gestia/mailroom/cache"
	"github.com/gestia/mailroom/mailbox"
	"go.uber.org/zap"
)

// ChannelFor names the identity-scoped pub/sub channel of one account.
func ChannelFor(accountID int64) string {
	return fmt.Sprintf("mailbox:acct:%d", accountID)
}

// accountFanout holds every session of one account plus the pub/sub
// subscription that feeds them.
type accountFanout struct {
	sessions map[string]*Session
	unsub    func()
}

// Hub routes published mailbox events to the connected sessions of each
// account. One pub/sub subscription exists per connected account; it is
// opened with the first session and closed with the last.
type Hub struct {
	mu       sync.Mutex
	accounts map[int64]*accountFanout
	pubsub   cache.PubSub
	logger   *zap.Logger
}

// NewHub creates a Hub over the given pub/sub.
func NewHub(pubsub cache.PubSub, logger *zap.Logger) *Hub {
	return &Hub{
		accounts: make(map[int64]*accountFanout),
		pubsub:   pubsub,
		logger:   logger,
	}
}

// Publish marshals an envelope and publishes it on the account's channel.
func (h *Hub) Publish(ctx context.Context, accountID int64, envType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	env := mailbox.Envelope{Type: envType, Data: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return h.pubsub.Publish(ctx, ChannelFor(accountID), string(raw))
}

// Register attaches a session, opening the account's subscription if it is
// the first one.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fan, ok := h.accounts[s.AccountID]
	if !ok {
		msgCh, unsub, err := h.pubsub.Subscribe(context.Background(), ChannelFor(s.AccountID))
		if err != nil {
			h.logger.Error("push subscribe failed",
				zap.Int64("account_id", s.AccountID),
				zap.Error(err))
			return
		}
		fan = &accountFanout{
			sessions: make(map[string]*Session),
			unsub:    unsub,
		}
		h.accounts[s.AccountID] = fan
		go h.forward(s.AccountID, msgCh)
	}
	fan.sessions[s.ID] = s
	h.logger.Info("push session registered",
		zap.Int64("account_id", s.AccountID),
		zap.String("session_id", s.ID))
}

// Unregister detaches a session, closing the account's subscription with
// the last one.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fan, ok := h.accounts[s.AccountID]
	if !ok {
		return
	}
	delete(fan.sessions, s.ID)
	if len(fan.sessions) == 0 {
		fan.unsub()
		delete(h.accounts, s.AccountID)
	}
	h.logger.Info("push session unregistered",
		zap.Int64("account_id", s.AccountID),
		zap.String("session_id", s.ID))
}

// forward fans one account's subscription out to its sessions until the
// subscription channel closes.
func (h *Hub) forward(accountID int64, msgCh <-chan *cache.Message) {
	for msg := range msgCh {
		h.mu.Lock()
		fan := h.accounts[accountID]
		var targets []*Session
		if fan != nil {
			targets = make([]*Session, 0, len(fan.sessions))
			for _, s := range fan.sessions {
				targets = append(targets, s)
			}
		}
		h.mu.Unlock()
		for _, s := range targets {
			s.Send([]byte(msg.Payload))
		}
	}
}

// ConnectedAccounts returns the number of accounts with at least one
// session.
func (h *Hub) ConnectedAccounts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.accounts)
}
