// Package ledger owns the upsert and dedupe logic for contacts and messages.
// All operations are best-effort from the session's point of view: a failing
// store wraps ErrStoreUnavailable and the caller logs and continues.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/idealis-crm/wabridge/internal/domain"
	"github.com/idealis-crm/wabridge/pkg/common"
)

// ErrStoreUnavailable marks a failed persistent-store operation. Sessions
// treat it as non-fatal.
var ErrStoreUnavailable = errors.New("contact store unavailable")

func storeErr(op string, err error) error {
	return errors.Wrapf(ErrStoreUnavailable, "%s: %v", op, err)
}

// InboundMessage is one classified provider message ready for persistence.
type InboundMessage struct {
	WaMessageID string
	ChatJid     string
	ChatName    string
	IsGroup     bool
	FromMe      bool
	Text        string
	Kind        string
	FileURL     string
	FileName    string
	SenderJid   string
	SenderName  string
	Timestamp   time.Time
}

// GroupEntry is one group chat from the provider roster.
type GroupEntry struct {
	Jid          string
	Name         string
	Participants []string
}

// ChatEntry is one direct chat from the provider roster.
type ChatEntry struct {
	Jid  string
	Name string
}

type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordInbound resolves the contact for the message's chat and inserts the
// message row keyed by (closer, provider message id). A re-delivered provider
// id is a no-op: the contact preview and unread count are only touched when
// the message row was actually inserted, so duplicates never double-count.
func (l *Ledger) RecordInbound(ctx context.Context, closerID string, in InboundMessage) (*domain.WaContact, error) {
	contact, err := l.getOrCreateContact(ctx, closerID, in)
	if err != nil {
		return nil, err
	}

	direction := domain.DirectionInbound
	if in.FromMe {
		direction = domain.DirectionOutbound
	}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "closer_id"}, {Name: "wa_message_id"}},
			DoNothing: true,
		}).
		Create(&domain.WaMessage{
			ID:          common.UUIDint64(),
			CloserID:    closerID,
			WaMessageID: in.WaMessageID,
			ContactID:   contact.ID,
			Body:        in.Text,
			Direction:   direction,
			Kind:        in.Kind,
			FileURL:     in.FileURL,
			FileName:    in.FileName,
			SenderJid:   in.SenderJid,
			SenderName:  in.SenderName,
			Timestamp:   in.Timestamp,
			Read:        in.FromMe,
		})
	if res.Error != nil {
		return nil, storeErr("insert message", res.Error)
	}
	if res.RowsAffected == 0 {
		// duplicate provider message id, already recorded
		return contact, nil
	}

	unread := contact.Unread + 1
	if in.FromMe {
		unread = 0
	}
	err = l.db.WithContext(ctx).Model(&domain.WaContact{}).
		Where("id = ?", contact.ID).
		Updates(map[string]interface{}{
			"last_message":    in.Text,
			"last_message_at": in.Timestamp,
			"unread":          unread,
		}).Error
	if err != nil {
		return nil, storeErr("update contact", err)
	}
	contact.Unread = unread
	contact.LastMessage = in.Text
	contact.LastMessageAt = in.Timestamp
	return contact, nil
}

func (l *Ledger) getOrCreateContact(ctx context.Context, closerID string, in InboundMessage) (*domain.WaContact, error) {
	var contact domain.WaContact
	err := l.db.WithContext(ctx).
		Where("closer_id = ? AND jid = ?", closerID, in.ChatJid).
		First(&contact).Error
	switch {
	case err == nil:
		return &contact, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		name := in.ChatName
		if name == "" {
			name = localPart(in.ChatJid)
		}
		contact = domain.WaContact{
			ID:       common.UUIDint64(),
			CloserID: closerID,
			Jid:      in.ChatJid,
			Name:     name,
			IsGroup:  in.IsGroup,
		}
		if err := l.db.WithContext(ctx).Create(&contact).Error; err != nil {
			return nil, storeErr("create contact", err)
		}
		return &contact, nil
	default:
		return nil, storeErr("lookup contact", err)
	}
}

// SyncRoster upserts the provider roster. Names, group flags and participant
// lists are refreshed; unread counts and message previews are never touched,
// and contacts absent from the roster are never removed.
func (l *Ledger) SyncRoster(ctx context.Context, closerID string, groups []GroupEntry, chats []ChatEntry) error {
	for _, g := range groups {
		name := g.Name
		if name == "" {
			name = localPart(g.Jid)
		}
		err := l.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "closer_id"}, {Name: "jid"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "is_group", "participants", "updated_at"}),
			}).
			Create(&domain.WaContact{
				ID:           common.UUIDint64(),
				CloserID:     closerID,
				Jid:          g.Jid,
				Name:         name,
				IsGroup:      true,
				Participants: g.Participants,
			}).Error
		if err != nil {
			return storeErr("upsert group contact", err)
		}
	}
	for _, c := range chats {
		name := c.Name
		if name == "" {
			name = localPart(c.Jid)
		}
		err := l.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "closer_id"}, {Name: "jid"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "is_group", "updated_at"}),
			}).
			Create(&domain.WaContact{
				ID:       common.UUIDint64(),
				CloserID: closerID,
				Jid:      c.Jid,
				Name:     name,
				IsGroup:  false,
			}).Error
		if err != nil {
			return storeErr("upsert chat contact", err)
		}
	}
	return nil
}

// MarkRead resets the unread counter for a contact.
func (l *Ledger) MarkRead(ctx context.Context, closerID string, contactID int64) error {
	err := l.db.WithContext(ctx).Model(&domain.WaContact{}).
		Where("id = ? AND closer_id = ?", contactID, closerID).
		Update("unread", 0).Error
	if err != nil {
		return storeErr("mark read", err)
	}
	return nil
}

func localPart(jid string) string {
	if idx := strings.IndexByte(jid, '@'); idx > 0 {
		return jid[:idx]
	}
	return jid
}
