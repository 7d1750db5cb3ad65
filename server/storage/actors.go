package storage

import (
	"context"
	"time"

	"github.com/tkrehbiel/inboxlace/server/receiver"
)

// Actor represents an ORM object for a _remote_ actor, not a local one
type Actor struct {
	URL         string `gorm:"column:url;primaryKey"`
	Type        string
	Followers   string
	Inbox       string
	SharedInbox string
	Photo       string
	Name        string
	Nick        string
	Alias       string
	Network     string
	PubKeyID    string `gorm:"column:pub_key_id;index"`
	PubKey      string `gorm:"column:pub_key"`
	Updated     time.Time
}

// Profile returns the part of the actor the receiver works with.
func (a Actor) Profile() receiver.ActorProfile {
	return receiver.ActorProfile{
		URL:       a.URL,
		Type:      a.Type,
		Followers: a.Followers,
		Inbox:     a.Inbox,
		Photo:     a.Photo,
		Name:      a.Name,
		Nick:      a.Nick,
		Alias:     a.Alias,
		Network:   a.Network,
	}
}

type Actors interface {
	FindActor(ctx context.Context, url string) (*Actor, error)
	FindActorByKey(ctx context.Context, keyID string) (*Actor, error)
	SaveActor(ctx context.Context, a *Actor) error
}

func (s *sqliteDatabase) findActor(ctx context.Context, query string, arg string) (*Actor, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var actor Actor
	tx := db.First(&actor, query, arg)
	if notFound(tx.Error) {
		return nil, nil
	} else if tx.Error != nil {
		return nil, tx.Error
	}
	return &actor, nil
}

func (s *sqliteDatabase) FindActor(ctx context.Context, url string) (*Actor, error) {
	return s.findActor(ctx, "url = ?", url)
}

func (s *sqliteDatabase) FindActorByKey(ctx context.Context, keyID string) (*Actor, error) {
	return s.findActor(ctx, "pub_key_id = ?", keyID)
}

func (s *sqliteDatabase) SaveActor(ctx context.Context, a *Actor) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	a.Updated = time.Now().UTC()
	tx := db.Save(a)
	return tx.Error
}
