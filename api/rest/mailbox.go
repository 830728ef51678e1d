package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gestia/mailroom/audit"
	"github.com/gestia/mailroom/config"
	"github.com/gestia/mailroom/mailbox"
	mw "github.com/gestia/mailroom/middleware"
	"github.com/gestia/mailroom/model"
	"github.com/gestia/mailroom/push"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MailboxHandler serves the mailbox REST endpoints.
type MailboxHandler struct {
	db     *gorm.DB
	cfg    config.MailboxConfig
	hub    *push.Hub
	audit  *audit.Service
	logger *zap.Logger
}

// NewMailboxHandler creates a new MailboxHandler.
func NewMailboxHandler(db *gorm.DB, cfg config.MailboxConfig, hub *push.Hub, auditSvc *audit.Service, logger *zap.Logger) *MailboxHandler {
	return &MailboxHandler{db: db, cfg: cfg, hub: hub, audit: auditSvc, logger: logger}
}

// visibleScope limits a workorder query to records addressed to the viewer,
// either through the legacy direct reference or a participant row matching
// the viewer's account id or email. The subquery is built from the root
// handle so it does not share the outer query's statement.
func (h *MailboxHandler) visibleScope(q *gorm.DB, accountID int64, email string) *gorm.DB {
	sub := h.db.Model(&model.Participant{}).
		Select("workorder_id").
		Where("account_id = ? OR email = ?", accountID, email)
	return q.Where("to_account_id = ? OR id IN (?)", accountID, sub)
}

// List handles GET /api/mailbox/:folder?page=N.
// Folders map to workorder rows; "important" and "starred" are flag views;
// "drafts" reads the viewer's draft table instead.
func (h *MailboxHandler) List(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	email := mw.GetAccountEmail(c)
	folder := c.Param("folder")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage := h.cfg.PageSize
	offset := (page - 1) * perPage

	if folder == model.FolderDrafts {
		h.listDrafts(c, accountID, page, perPage, offset)
		return
	}

	q := h.visibleScope(h.db.Model(&model.Workorder{}), accountID, email)
	switch folder {
	case "important":
		q = q.Where("is_important = ? OR id IN (?)", true,
			h.db.Model(&model.MailboxItem{}).Select("workorder_id").
				Where("account_id = ? AND is_important = ?", accountID, true))
	case "starred":
		q = q.Where("is_starred = ? OR id IN (?)", true,
			h.db.Model(&model.MailboxItem{}).Select("workorder_id").
				Where("account_id = ? AND is_starred = ?", accountID, true))
	default:
		q = q.Where("folder = ?", folder)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var wos []model.Workorder
	if err := q.Order("created_at DESC, id DESC").Limit(perPage).Offset(offset).Find(&wos).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	records, err := loadRawRecords(h.db, wos, accountID)
	if err != nil {
		h.logger.Error("mailbox list serialization failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mails":      records,
		"pagination": paginationOf(page, perPage, total),
	})
}

func (h *MailboxHandler) listDrafts(c *gin.Context, accountID int64, page, perPage, offset int) {
	q := h.db.Model(&model.Draft{}).Where("account_id = ?", accountID).Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var drafts []model.Draft
	if err := q.Order("updated_at DESC, id DESC").Limit(perPage).Offset(offset).Find(&drafts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	name := mw.GetAccountName(c)
	email := mw.GetAccountEmail(c)
	records := make([]mailbox.RawRecord, 0, len(drafts))
	for _, d := range drafts {
		records = append(records, draftRawRecord(d, name, email))
	}
	c.JSON(http.StatusOK, gin.H{
		"mails":      records,
		"pagination": paginationOf(page, perPage, total),
	})
}

func paginationOf(page, perPage int, total int64) gin.H {
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	return gin.H{
		"page":        page,
		"per_page":    perPage,
		"total":       total,
		"total_pages": totalPages,
	}
}

type patchRequest struct {
	Value *bool `json:"value" binding:"required"`
}

// PatchItem builds the handler for PATCH /api/mailbox/:id/<verb>, addressing
// the viewer's MailboxItem row directly.
func (h *MailboxHandler) PatchItem(verb string) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := mw.GetAccountID(c)
		itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var req patchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var item model.MailboxItem
		if err := h.db.Where("id = ? AND account_id = ?", itemID, accountID).First(&item).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "mailbox item not found"})
			return
		}
		h.applyPatch(c, &item, verb, *req.Value)
	}
}

// PatchWorkorder builds the handler for PATCH /api/mailbox/workorder/:id/<verb>.
// The viewer's MailboxItem row is created on first use.
func (h *MailboxHandler) PatchWorkorder(verb string) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := mw.GetAccountID(c)
		email := mw.GetAccountEmail(c)
		woID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		var req patchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var count int64
		if err := h.db.Model(&model.Workorder{}).Where("id = ?", woID).Count(&count).Error; err != nil || count == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "workorder not found"})
			return
		}
		if err := h.visibleScope(h.db.Model(&model.Workorder{}), accountID, email).
			Where("id = ?", woID).Count(&count).Error; err != nil || count == 0 {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a recipient"})
			return
		}

		item := model.MailboxItem{WorkorderID: woID, AccountID: accountID}
		if err := h.db.Where("workorder_id = ? AND account_id = ?", woID, accountID).
			FirstOrCreate(&item).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "state update failed"})
			return
		}
		h.applyPatch(c, &item, verb, *req.Value)
	}
}

func (h *MailboxHandler) applyPatch(c *gin.Context, item *model.MailboxItem, verb string, value bool) {
	start := time.Now()
	accountID := mw.GetAccountID(c)

	switch verb {
	case "read":
		if value {
			now := time.Now()
			item.ReadAt = &now
		} else {
			item.ReadAt = nil
		}
	case "star":
		item.IsStarred = value
	case "important":
		item.IsImportant = value
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown state verb"})
		return
	}
	if err := h.db.Save(item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state update failed"})
		return
	}

	raw := rawMailboxItem(*item)
	resp := gin.H{"mailbox_item": raw}
	c.JSON(http.StatusOK, resp)

	event := mailbox.MailboxUpdatedEvent{WorkorderID: item.WorkorderID, MailboxItem: &raw}
	if err := h.hub.Publish(c.Request.Context(), accountID, mailbox.EventMailboxUpdated, event); err != nil {
		h.logger.Warn("mailbox.updated publish failed",
			zap.Int64("workorder_id", item.WorkorderID), zap.Error(err))
	}
	h.audit.Log(audit.Entry{
		TraceID:     c.GetString(mw.TraceIDKey),
		AccountID:   &accountID,
		Action:      "mailbox." + verb,
		WorkorderID: &item.WorkorderID,
		Request:     gin.H{"value": value},
		Response:    resp,
		IP:          c.ClientIP(),
		DurationMs:  int(time.Since(start).Milliseconds()),
	})
}

type moveRequest struct {
	Folder string `json:"folder" binding:"required,oneof=mensajes spam"`
}

// Move handles PATCH /api/mailbox/:id/move. Moving changes the shared
// folder of the workorder, so every recipient is notified.
func (h *MailboxHandler) Move(c *gin.Context) {
	start := time.Now()
	accountID := mw.GetAccountID(c)
	email := mw.GetAccountEmail(c)
	woID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var wo model.Workorder
	if err := h.db.First(&wo, woID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "workorder not found"})
		return
	}
	var count int64
	if err := h.visibleScope(h.db.Model(&model.Workorder{}), accountID, email).
		Where("id = ?", woID).Count(&count).Error; err != nil || count == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a recipient"})
		return
	}

	if err := h.db.Model(&wo).Update("folder", req.Folder).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "move failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"folder": req.Folder})

	folder := req.Folder
	event := mailbox.MailboxUpdatedEvent{WorkorderID: woID, Folder: &folder}
	for _, id := range h.recipientAccounts(wo) {
		if err := h.hub.Publish(c.Request.Context(), id, mailbox.EventMailboxUpdated, event); err != nil {
			h.logger.Warn("mailbox.updated publish failed",
				zap.Int64("account_id", id), zap.Error(err))
		}
	}
	h.audit.Log(audit.Entry{
		TraceID:     c.GetString(mw.TraceIDKey),
		AccountID:   &accountID,
		Action:      "mailbox.move",
		WorkorderID: &woID,
		Request:     gin.H{"folder": req.Folder},
		IP:          c.ClientIP(),
		DurationMs:  int(time.Since(start).Milliseconds()),
	})
}

// recipientAccounts resolves every account addressed by a workorder.
func (h *MailboxHandler) recipientAccounts(wo model.Workorder) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if wo.ToAccountID != nil {
		add(*wo.ToAccountID)
	}
	var parts []model.Participant
	if err := h.db.Where("workorder_id = ?", wo.ID).Find(&parts).Error; err != nil {
		h.logger.Warn("recipient lookup failed", zap.Int64("workorder_id", wo.ID), zap.Error(err))
		return out
	}
	emails := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.AccountID != nil {
			add(*p.AccountID)
			continue
		}
		if p.Email != "" {
			emails = append(emails, p.Email)
		}
	}
	if len(emails) > 0 {
		var accs []model.Account
		if err := h.db.Where("email IN ?", emails).Find(&accs).Error; err == nil {
			for _, a := range accs {
				add(a.ID)
			}
		}
	}
	return out
}

// Counts handles GET /api/mailbox/counts: unread totals per folder for
// the sidebar badges.
func (h *MailboxHandler) Counts(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	email := mw.GetAccountEmail(c)

	var wos []model.Workorder
	if err := h.visibleScope(h.db.Model(&model.Workorder{}), accountID, email).
		Find(&wos).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	var items []model.MailboxItem
	if err := h.db.Where("account_id = ?", accountID).Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	readBy := make(map[int64]bool)
	hasItem := make(map[int64]bool)
	for _, it := range items {
		hasItem[it.WorkorderID] = true
		readBy[it.WorkorderID] = it.ReadAt != nil
	}

	counts := map[string]int{}
	for _, wo := range wos {
		unread := !wo.IsRead
		if hasItem[wo.ID] {
			unread = !readBy[wo.ID]
		}
		if unread {
			counts[wo.Folder]++
		}
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}
