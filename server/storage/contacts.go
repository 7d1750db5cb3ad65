package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/tkrehbiel/inboxlace/server/receiver"
)

// Contact represents an ORM object for a remote account as seen by one
// local account, or the local account itself when Self is set.
type Contact struct {
	ID          int64  `gorm:"primaryKey"`
	UID         int64  `gorm:"column:uid;index"`
	URL         string `gorm:"column:url"`
	NURL        string `gorm:"column:nurl;index"`
	Alias       string `gorm:"column:alias;index"`
	Name        string
	Nick        string
	Photo       string
	Network     string `gorm:"column:network"`
	Rel         int    `gorm:"column:rel"`
	ContactType int    `gorm:"column:contact_type"`
	Self        bool   `gorm:"column:self"`
	Archive     bool   `gorm:"column:archive"`
	Pending     bool   `gorm:"column:pending"`
	Updated     time.Time
}

func (c Contact) record() receiver.Contact {
	return receiver.Contact{
		ID:          c.ID,
		UID:         c.UID,
		URL:         c.URL,
		NURL:        c.NURL,
		Alias:       c.Alias,
		Name:        c.Name,
		Nick:        c.Nick,
		Photo:       c.Photo,
		Network:     c.Network,
		Rel:         receiver.Rel(c.Rel),
		ContactType: receiver.ContactType(c.ContactType),
		Self:        c.Self,
		Archive:     c.Archive,
		Pending:     c.Pending,
	}
}

func contactRow(c receiver.Contact) Contact {
	nurl := c.NURL
	if nurl == "" {
		nurl = receiver.NormaliseLink(c.URL)
	}
	return Contact{
		ID:          c.ID,
		UID:         c.UID,
		URL:         c.URL,
		NURL:        nurl,
		Alias:       c.Alias,
		Name:        c.Name,
		Nick:        c.Nick,
		Photo:       c.Photo,
		Network:     c.Network,
		Rel:         int(c.Rel),
		ContactType: int(c.ContactType),
		Self:        c.Self,
		Archive:     c.Archive,
		Pending:     c.Pending,
	}
}

type Contacts interface {
	receiver.ContactStore
	// FindContact returns the remote contact nurl of local account uid.
	FindContact(ctx context.Context, uid int64, nurl string) (*receiver.Contact, error)
	// SaveContact inserts c, or updates it when it has an ID.
	SaveContact(ctx context.Context, c *receiver.Contact) error
	DeleteContact(ctx context.Context, id int64) error
	// ArchiveContacts archives every remote contact with nurl.
	ArchiveContacts(ctx context.Context, nurl string) (int64, error)
	// EnsureSelf creates the self contact of a local account if it is missing.
	EnsureSelf(ctx context.Context, c receiver.Contact) (*receiver.Contact, error)
}

func (s *sqliteDatabase) FindContacts(ctx context.Context, q receiver.ContactQuery) ([]receiver.Contact, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	tx := db.Model(&Contact{}).Where("self = ?", false)
	if len(q.UIDs) > 0 {
		tx = tx.Where("uid IN ?", q.UIDs)
	}
	if q.NURL != "" {
		tx = tx.Where("nurl = ?", q.NURL)
	}
	if len(q.Aliases) > 0 {
		tx = tx.Where("alias IN ?", q.Aliases)
	}
	if len(q.Rels) > 0 {
		rels := make([]int, len(q.Rels))
		for i, r := range q.Rels {
			rels[i] = int(r)
		}
		tx = tx.Where("rel IN ?", rels)
	}
	if len(q.Networks) > 0 {
		tx = tx.Where("network IN ?", q.Networks)
	}
	if q.Active {
		tx = tx.Where("archive = ? AND pending = ?", false, false)
	}

	var rows []Contact
	if err := tx.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("finding contacts: %w", err)
	}
	contacts := make([]receiver.Contact, len(rows))
	for i, row := range rows {
		contacts[i] = row.record()
	}
	return contacts, nil
}

// first returns the first contact matching the conditions, or nil.
func (s *sqliteDatabase) first(ctx context.Context, query string, args ...interface{}) (*receiver.Contact, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var row Contact
	tx := db.Where(query, args...).Order("id").First(&row)
	if notFound(tx.Error) {
		return nil, nil
	} else if tx.Error != nil {
		return nil, tx.Error
	}
	c := row.record()
	return &c, nil
}

func (s *sqliteDatabase) SelfContact(ctx context.Context, nurl string) (*receiver.Contact, error) {
	return s.first(ctx, "self = ? AND nurl = ?", true, nurl)
}

func (s *sqliteDatabase) Owner(ctx context.Context, uid int64) (*receiver.Contact, error) {
	return s.first(ctx, "self = ? AND uid = ?", true, uid)
}

func (s *sqliteDatabase) Contact(ctx context.Context, id int64) (*receiver.Contact, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *sqliteDatabase) FindContact(ctx context.Context, uid int64, nurl string) (*receiver.Contact, error) {
	return s.first(ctx, "self = ? AND uid = ? AND nurl = ?", false, uid, nurl)
}

func (s *sqliteDatabase) SwitchProtocol(ctx context.Context, id int64, profile receiver.ActorProfile) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	fields := map[string]interface{}{
		"network": receiver.NetworkActivityPub,
		"url":     profile.URL,
		"nurl":    receiver.NormaliseLink(profile.URL),
		"updated": time.Now().UTC(),
	}
	if profile.Alias != "" {
		fields["alias"] = profile.Alias
	}
	if profile.Name != "" {
		fields["name"] = profile.Name
	}
	if profile.Nick != "" {
		fields["nick"] = profile.Nick
	}
	tx := db.Model(&Contact{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return fmt.Errorf("switching contact %d: %w", id, tx.Error)
	}
	return nil
}

func (s *sqliteDatabase) UpdateAvatar(ctx context.Context, id, uid int64, photo string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	tx := db.Model(&Contact{}).Where("id = ? AND uid = ?", id, uid).Update("photo", photo)
	return tx.Error
}

func (s *sqliteDatabase) SaveContact(ctx context.Context, c *receiver.Contact) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	row := contactRow(*c)
	row.Updated = time.Now().UTC()
	if err := db.Save(&row).Error; err != nil {
		return fmt.Errorf("saving contact %s for uid %d: %w", c.URL, c.UID, err)
	}
	c.ID = row.ID
	c.NURL = row.NURL
	return nil
}

func (s *sqliteDatabase) DeleteContact(ctx context.Context, id int64) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return db.Delete(&Contact{}, id).Error
}

func (s *sqliteDatabase) ArchiveContacts(ctx context.Context, nurl string) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	tx := db.Model(&Contact{}).Where("self = ? AND nurl = ?", false, nurl).Update("archive", true)
	return tx.RowsAffected, tx.Error
}

func (s *sqliteDatabase) EnsureSelf(ctx context.Context, c receiver.Contact) (*receiver.Contact, error) {
	existing, err := s.Owner(ctx, c.UID)
	if err != nil || existing != nil {
		return existing, err
	}
	c.ID = 0
	c.Self = true
	if err := s.SaveContact(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
