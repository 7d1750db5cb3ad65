package storage

import (
	"context"
	"time"

	"github.com/tkrehbiel/inboxlace/server/receiver"
	"gorm.io/gorm/clause"
)

// Conversation represents an ORM object for the raw source of a received activity.
type Conversation struct {
	ItemURI          string `gorm:"column:item_uri;primaryKey"`
	ReplyToURI       string `gorm:"column:reply_to_uri"`
	ConversationHref string `gorm:"column:conversation_href"`
	ConversationURI  string `gorm:"column:conversation_uri"`
	Protocol         string `gorm:"column:protocol"`
	Source           string `gorm:"column:source"`
	Received         time.Time
}

type Conversations interface {
	receiver.ConversationLog
}

// InsertConversation keeps the first copy of a message.
func (s *sqliteDatabase) InsertConversation(ctx context.Context, c receiver.Conversation) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	row := Conversation{
		ItemURI:          c.ItemURI,
		ReplyToURI:       c.ReplyToURI,
		ConversationHref: c.ConversationHref,
		ConversationURI:  c.ConversationURI,
		Protocol:         c.Protocol,
		Source:           c.Source,
		Received:         c.Received,
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}
