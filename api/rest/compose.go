package rest

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gestia/mailroom/audit"
	"github.com/gestia/mailroom/mailbox"
	mw "github.com/gestia/mailroom/middleware"
	"github.com/gestia/mailroom/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contactPayload struct {
	Name  string `json:"name" binding:"max=64"`
	Email string `json:"email" binding:"required,email,max=128"`
}

type composeRequest struct {
	Subject string           `json:"subject" binding:"required,max=255"`
	Body    string           `json:"body" binding:"required"`
	To      []contactPayload `json:"to" binding:"required,min=1,dive"`
	Cc      []contactPayload `json:"cc" binding:"dive"`
	Bcc     []contactPayload `json:"bcc" binding:"dive"`
}

// Compose handles POST /api/tasks/store: creates the workorder with its
// participant set and notifies every recipient with an account. Recipient
// state rows are not created here; they appear lazily on first mutation.
func (h *MailboxHandler) Compose(c *gin.Context) {
	start := time.Now()
	accountID := mw.GetAccountID(c)
	name := mw.GetAccountName(c)
	email := mw.GetAccountEmail(c)

	var req composeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	wo := model.Workorder{
		Subject:   req.Subject,
		Body:      req.Body,
		Folder:    model.FolderInbox,
		Date:      &now,
		FromName:  name,
		FromEmail: email,
	}
	// The author rides along as a "from" participant so their own thread
	// stays visible to them: reply, move and the workorder-addressed state
	// routes all authorize through the participant set.
	author := accountID
	parts := []model.Participant{{
		Name:      name,
		Email:     strings.ToLower(email),
		Role:      model.RoleFrom,
		Position:  0,
		AccountID: &author,
	}}
	pos := 1
	appendRole := func(contacts []contactPayload, role string) {
		for _, ct := range contacts {
			parts = append(parts, model.Participant{
				Name:     ct.Name,
				Email:    strings.ToLower(ct.Email),
				Role:     role,
				Position: pos,
			})
			pos++
		}
	}
	appendRole(req.To, model.RoleTo)
	appendRole(req.Cc, model.RoleCc)
	appendRole(req.Bcc, model.RoleBcc)

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&wo).Error; err != nil {
			return err
		}
		emails := make([]string, 0, len(parts))
		for _, p := range parts {
			emails = append(emails, p.Email)
		}
		accounts := make(map[string]int64)
		var accs []model.Account
		if err := tx.Where("email IN ?", emails).Find(&accs).Error; err != nil {
			return err
		}
		for _, a := range accs {
			accounts[strings.ToLower(a.Email)] = a.ID
		}
		for i := range parts {
			parts[i].WorkorderID = wo.ID
			if id, ok := accounts[parts[i].Email]; ok {
				acct := id
				parts[i].AccountID = &acct
			}
		}
		return tx.Create(&parts).Error
	})
	if err != nil {
		h.logger.Error("compose failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "compose failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": wo.ID})

	record := buildRawRecord(wo, parts, nil, nil, nil, nil)
	for _, id := range h.recipientAccounts(wo) {
		if id == accountID {
			continue
		}
		if err := h.hub.Publish(c.Request.Context(), id, mailbox.EventWorkorderCreated, record); err != nil {
			h.logger.Warn("workorder.created publish failed",
				zap.Int64("account_id", id), zap.Error(err))
		}
	}
	h.audit.Log(audit.Entry{
		TraceID:     c.GetString(mw.TraceIDKey),
		AccountID:   &accountID,
		Action:      "mailbox.compose",
		WorkorderID: &wo.ID,
		Request:     req,
		Response:    gin.H{"id": wo.ID},
		IP:          c.ClientIP(),
		DurationMs:  int(time.Since(start).Milliseconds()),
	})
}

type draftRequest struct {
	ID      int64  `json:"id"`
	To      string `json:"to" binding:"max=512"`
	Cc      string `json:"cc" binding:"max=512"`
	Bcc     string `json:"bcc" binding:"max=512"`
	Subject string `json:"subject" binding:"max=255"`
	Body    string `json:"body"`
}

// StoreDraft handles POST /api/mailbox/drafts/store. ID zero creates a
// new draft; otherwise the viewer's existing draft is updated.
func (h *MailboxHandler) StoreDraft(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft := model.Draft{
		AccountID: accountID,
		To:        req.To,
		Cc:        req.Cc,
		Bcc:       req.Bcc,
		Subject:   req.Subject,
		Body:      req.Body,
	}
	if req.ID != 0 {
		var existing model.Draft
		if err := h.db.Where("id = ? AND account_id = ?", req.ID, accountID).First(&existing).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "draft not found"})
			return
		}
		draft.ID = existing.ID
		draft.CreatedAt = existing.CreatedAt
	}
	if err := h.db.Save(&draft).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "draft save failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": draft.ID})
}

// DeleteDraft handles DELETE /api/mailbox/drafts/:id.
func (h *MailboxHandler) DeleteDraft(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.Where("id = ? AND account_id = ?", id, accountID).Delete(&model.Draft{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "draft delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "draft not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// Reply handles POST /api/mailbox/reply as a multipart form: fields
// workorder_id and body, plus zero or more files under "attachments".
// Uploaded files are stored under the attachment dir keyed by uuid.
func (h *MailboxHandler) Reply(c *gin.Context) {
	start := time.Now()
	accountID := mw.GetAccountID(c)
	name := mw.GetAccountName(c)
	email := mw.GetAccountEmail(c)

	woID, err := strconv.ParseInt(c.PostForm("workorder_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workorder_id"})
		return
	}
	body := c.PostForm("body")
	if body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body is required"})
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

	reply := model.Reply{
		WorkorderID: woID,
		AuthorName:  name,
		AuthorEmail: email,
		Body:        body,
	}
	if err := h.db.Create(&reply).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reply failed"})
		return
	}

	var atts []model.Attachment
	form, err := c.MultipartForm()
	if err == nil && form != nil {
		for _, fh := range form.File["attachments"] {
			key := uuid.NewString() + filepath.Ext(fh.Filename)
			if err := c.SaveUploadedFile(fh, filepath.Join(h.cfg.AttachmentDir, key)); err != nil {
				h.logger.Warn("attachment save failed",
					zap.String("filename", fh.Filename), zap.Error(err))
				continue
			}
			att := model.Attachment{
				WorkorderID: woID,
				ReplyID:     &reply.ID,
				Filename:    filepath.Base(fh.Filename),
				Size:        fh.Size,
				ContentType: fh.Header.Get("Content-Type"),
				StorageKey:  key,
			}
			if err := h.db.Create(&att).Error; err != nil {
				h.logger.Warn("attachment record failed", zap.Error(err))
				continue
			}
			atts = append(atts, att)
		}
	}

	raw := rawReply(reply, atts)
	c.JSON(http.StatusCreated, gin.H{"reply": raw})

	event := mailbox.ReplyCreatedEvent{WorkorderID: woID, Reply: raw}
	for _, id := range h.recipientAccounts(wo) {
		if id == accountID {
			continue
		}
		if err := h.hub.Publish(c.Request.Context(), id, mailbox.EventReplyCreated, event); err != nil {
			h.logger.Warn("mail.reply.created publish failed",
				zap.Int64("account_id", id), zap.Error(err))
		}
	}
	h.audit.Log(audit.Entry{
		TraceID:     c.GetString(mw.TraceIDKey),
		AccountID:   &accountID,
		Action:      "mailbox.reply",
		WorkorderID: &woID,
		Request:     gin.H{"body_len": len(body), "attachments": len(atts)},
		IP:          c.ClientIP(),
		DurationMs:  int(time.Since(start).Milliseconds()),
	})
}
