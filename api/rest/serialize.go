package rest

import (
	"strings"
	"time"

	"github.com/gestia/mailroom/mailbox"
	"github.com/gestia/mailroom/model"
	"gorm.io/gorm"
)

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timeStr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func rawParticipant(p model.Participant) mailbox.RawParticipant {
	return mailbox.RawParticipant{
		Name:     strPtr(p.Name),
		Email:    strPtr(p.Email),
		Role:     strPtr(p.Role),
		Position: intPtr(p.Position),
	}
}

func rawAttachment(a model.Attachment) mailbox.RawAttachment {
	size := a.Size
	return mailbox.RawAttachment{
		ID:          a.ID,
		ReplyID:     a.ReplyID,
		Filename:    strPtr(a.Filename),
		Size:        &size,
		ContentType: strPtr(a.ContentType),
		StorageKey:  strPtr(a.StorageKey),
	}
}

func rawReply(r model.Reply, atts []model.Attachment) mailbox.RawReply {
	created := r.CreatedAt
	out := mailbox.RawReply{
		ID:          r.ID,
		AuthorName:  strPtr(r.AuthorName),
		AuthorEmail: strPtr(r.AuthorEmail),
		Body:        strPtr(r.Body),
		CreatedAt:   timeStr(&created),
	}
	for _, a := range atts {
		out.Attachments = append(out.Attachments, rawAttachment(a))
	}
	return out
}

func rawMailboxItem(item model.MailboxItem) mailbox.RawMailboxItem {
	updated := item.UpdatedAt
	return mailbox.RawMailboxItem{
		ID:          item.ID,
		ReadAt:      timeStr(item.ReadAt),
		IsStarred:   boolPtr(item.IsStarred),
		IsImportant: boolPtr(item.IsImportant),
		UpdatedAt:   timeStr(&updated),
	}
}

// buildRawRecord assembles the wire record for one workorder. item is the
// viewer's per-recipient state (nil when none exists yet); toAcct resolves
// a legacy direct recipient reference.
func buildRawRecord(
	wo model.Workorder,
	parts []model.Participant,
	replies []model.Reply,
	atts []model.Attachment,
	item *model.MailboxItem,
	toAcct *model.Account,
) mailbox.RawRecord {
	created := wo.CreatedAt
	updated := wo.UpdatedAt
	rec := mailbox.RawRecord{
		ID:          wo.ID,
		Subject:     strPtr(wo.Subject),
		Body:        strPtr(wo.Body),
		Folder:      strPtr(wo.Folder),
		Date:        timeStr(wo.Date),
		CreatedAt:   timeStr(&created),
		UpdatedAt:   timeStr(&updated),
		FromName:    strPtr(wo.FromName),
		FromEmail:   strPtr(wo.FromEmail),
		IsRead:      boolPtr(wo.IsRead),
		IsStarred:   boolPtr(wo.IsStarred),
		IsImportant: boolPtr(wo.IsImportant),
	}
	if wo.ToAccountID != nil && toAcct != nil {
		rec.To = &mailbox.RawParticipant{
			Name:  strPtr(toAcct.Name),
			Email: strPtr(toAcct.Email),
		}
	}
	for _, p := range parts {
		rec.Participants = append(rec.Participants, rawParticipant(p))
	}

	// Partition attachments so replies carry their own subset inline.
	byReply := make(map[int64][]model.Attachment)
	for _, a := range atts {
		if a.ReplyID != nil {
			byReply[*a.ReplyID] = append(byReply[*a.ReplyID], a)
			continue
		}
		rec.Attachments = append(rec.Attachments, rawAttachment(a))
	}
	for _, r := range replies {
		rec.Replies = append(rec.Replies, rawReply(r, byReply[r.ID]))
	}
	if item != nil {
		itemCopy := rawMailboxItem(*item)
		rec.MailboxItem = &itemCopy
	}
	return rec
}

// loadRawRecords bulk-loads the associations of the given workorders and
// serializes them as seen by the viewer.
func loadRawRecords(db *gorm.DB, wos []model.Workorder, viewerID int64) ([]mailbox.RawRecord, error) {
	if len(wos) == 0 {
		return []mailbox.RawRecord{}, nil
	}
	ids := make([]int64, 0, len(wos))
	acctIDs := make([]int64, 0)
	for _, wo := range wos {
		ids = append(ids, wo.ID)
		if wo.ToAccountID != nil {
			acctIDs = append(acctIDs, *wo.ToAccountID)
		}
	}

	var parts []model.Participant
	if err := db.Where("workorder_id IN ?", ids).Order("position ASC").Find(&parts).Error; err != nil {
		return nil, err
	}
	var replies []model.Reply
	if err := db.Where("workorder_id IN ?", ids).Order("created_at ASC, id ASC").Find(&replies).Error; err != nil {
		return nil, err
	}
	var atts []model.Attachment
	if err := db.Where("workorder_id IN ?", ids).Find(&atts).Error; err != nil {
		return nil, err
	}
	var items []model.MailboxItem
	if err := db.Where("workorder_id IN ? AND account_id = ?", ids, viewerID).Find(&items).Error; err != nil {
		return nil, err
	}
	accounts := make(map[int64]model.Account)
	if len(acctIDs) > 0 {
		var accs []model.Account
		if err := db.Where("id IN ?", acctIDs).Find(&accs).Error; err != nil {
			return nil, err
		}
		for _, a := range accs {
			accounts[a.ID] = a
		}
	}

	partsBy := make(map[int64][]model.Participant)
	for _, p := range parts {
		partsBy[p.WorkorderID] = append(partsBy[p.WorkorderID], p)
	}
	repliesBy := make(map[int64][]model.Reply)
	for _, r := range replies {
		repliesBy[r.WorkorderID] = append(repliesBy[r.WorkorderID], r)
	}
	attsBy := make(map[int64][]model.Attachment)
	for _, a := range atts {
		attsBy[a.WorkorderID] = append(attsBy[a.WorkorderID], a)
	}
	itemBy := make(map[int64]*model.MailboxItem)
	for i := range items {
		itemBy[items[i].WorkorderID] = &items[i]
	}

	out := make([]mailbox.RawRecord, 0, len(wos))
	for _, wo := range wos {
		var toAcct *model.Account
		if wo.ToAccountID != nil {
			if a, ok := accounts[*wo.ToAccountID]; ok {
				acc := a
				toAcct = &acc
			}
		}
		out = append(out, buildRawRecord(wo, partsBy[wo.ID], repliesBy[wo.ID], attsBy[wo.ID], itemBy[wo.ID], toAcct))
	}
	return out, nil
}

// draftRawRecord presents a draft row as a raw record in the drafts folder.
func draftRawRecord(d model.Draft, viewerName, viewerEmail string) mailbox.RawRecord {
	created := d.CreatedAt
	updated := d.UpdatedAt
	rec := mailbox.RawRecord{
		ID:        d.ID,
		Subject:   strPtr(d.Subject),
		Body:      strPtr(d.Body),
		Folder:    strPtr(model.FolderDrafts),
		CreatedAt: timeStr(&created),
		UpdatedAt: timeStr(&updated),
		FromName:  strPtr(viewerName),
		FromEmail: strPtr(viewerEmail),
	}
	appendRole := func(csv, role string, pos *int) {
		for _, addr := range strings.Split(csv, ",") {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			p := *pos
			*pos = p + 1
			rec.Participants = append(rec.Participants, mailbox.RawParticipant{
				Email:    strPtr(addr),
				Role:     strPtr(role),
				Position: intPtr(p),
			})
		}
	}
	pos := 0
	appendRole(d.To, model.RoleTo, &pos)
	appendRole(d.Cc, model.RoleCc, &pos)
	appendRole(d.Bcc, model.RoleBcc, &pos)
	return rec
}
