package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/tkrehbiel/inboxlace/server/activity"
	"gorm.io/gorm/clause"
)

// Item gravity, the position of an item in its thread
const (
	GravityParent   = 0
	GravityActivity = 3
	GravityComment  = 6
)

// Item represents an ORM object for a received post, comment or activity.
// Every receiving account holds its own copy; uid 0 is the public copy.
type Item struct {
	ID        int64     `gorm:"primaryKey"`
	URI       string    `gorm:"column:uri;uniqueIndex:idx_item_uri_uid"`
	UID       int64     `gorm:"column:uid;uniqueIndex:idx_item_uri_uid"`
	Verb      string    `gorm:"column:verb"`
	Gravity   int       `gorm:"column:gravity"`
	ParentURI string    `gorm:"column:parent_uri;index"`
	ThrParent string    `gorm:"column:thr_parent"`
	Author    string    `gorm:"column:author;index"`
	Title     string    `gorm:"column:title"`
	Summary   string    `gorm:"column:summary"`
	Body      string    `gorm:"column:body"`
	Published time.Time `gorm:"column:published"`
	Edited    time.Time `gorm:"column:edited"`
	Sensitive bool      `gorm:"column:sensitive"`
	Location  string    `gorm:"column:location"`
	Coord     string    `gorm:"column:coord"`
}

// ItemChanges are the editable parts of an item.
type ItemChanges struct {
	Title     string
	Summary   string
	Body      string
	Sensitive bool
	Edited    time.Time
}

type Items interface {
	// InsertItem stores item unless the account already has it.
	InsertItem(ctx context.Context, item *Item) (bool, error)
	FindItems(ctx context.Context, uri string) ([]Item, error)
	UpdateItems(ctx context.Context, uri, author string, changes ItemChanges) (int64, error)
	DeleteItems(ctx context.Context, uri, author string) (int64, error)
	ThreadOwners(ctx context.Context, uri string) ([]int64, error)
	ItemExists(ctx context.Context, uri string) (bool, error)
	FindNote(ctx context.Context, uri string) (*activity.Note, error)
}

func (s *sqliteDatabase) InsertItem(ctx context.Context, item *Item) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	tx := db.Clauses(clause.OnConflict{DoNothing: true}).Create(item)
	if tx.Error != nil {
		return false, fmt.Errorf("inserting item %s for uid %d: %w", item.URI, item.UID, tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

func (s *sqliteDatabase) FindItems(ctx context.Context, uri string) (items []Item, err error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	tx := db.Where("uri = ?", uri).Order("uid").Find(&items)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return items, nil
}

func (s *sqliteDatabase) UpdateItems(ctx context.Context, uri, author string, changes ItemChanges) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	tx := db.Model(&Item{}).Where("uri = ? AND author = ?", uri, author).Updates(map[string]interface{}{
		"title":     changes.Title,
		"summary":   changes.Summary,
		"body":      changes.Body,
		"sensitive": changes.Sensitive,
		"edited":    changes.Edited,
	})
	return tx.RowsAffected, tx.Error
}

func (s *sqliteDatabase) DeleteItems(ctx context.Context, uri, author string) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	tx := db.Where("uri = ? AND author = ?", uri, author).Delete(&Item{})
	return tx.RowsAffected, tx.Error
}

func (s *sqliteDatabase) ThreadOwners(ctx context.Context, uri string) ([]int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var uids []int64
	tx := db.Model(&Item{}).Where("uri = ?", uri).Distinct().Order("uid").Pluck("uid", &uids)
	return uids, tx.Error
}

// ItemExists only counts posts and comments, not activities.
func (s *sqliteDatabase) ItemExists(ctx context.Context, uri string) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	var count int64
	tx := db.Model(&Item{}).Where("uri = ? AND gravity IN ?", uri, []int{GravityParent, GravityComment}).Count(&count)
	return count > 0, tx.Error
}

// FindNote rebuilds a stored post or comment as a Note.
func (s *sqliteDatabase) FindNote(ctx context.Context, uri string) (*activity.Note, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var items []Item
	tx := db.Where("uri = ? AND gravity IN ?", uri, []int{GravityParent, GravityComment}).Order("uid").Find(&items)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if len(items) == 0 {
		return nil, nil
	}

	item := items[0]
	note := &activity.Note{
		Context:      activity.Context,
		Type:         activity.NoteType,
		ID:           item.URI,
		AttributedTo: item.Author,
		Name:         item.Title,
		Summary:      item.Summary,
		Content:      item.Body,
		Sensitive:    item.Sensitive,
	}
	// parent_uri is the thread root, thr_parent the post replied to
	if item.ThrParent != "" && item.ThrParent != item.URI {
		note.InReplyTo = item.ThrParent
	}
	if !item.Published.IsZero() {
		note.Published = item.Published.UTC().Format(activity.TimeFormat)
	}
	if !item.Edited.IsZero() {
		note.Updated = item.Edited.UTC().Format(activity.TimeFormat)
	}
	// uid 0 only holds public items
	if item.UID == 0 {
		note.To = []string{activity.Context + "#Public"}
	}
	return note, nil
}
