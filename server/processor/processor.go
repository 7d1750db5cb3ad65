// Package processor applies dispatched activities to local storage.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tkrehbiel/inboxlace/server/receiver"
	"github.com/tkrehbiel/inboxlace/server/storage"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

// VerbPost marks items that are posts or comments rather than activities.
const VerbPost = "post"

var ErrNotLocal = errors.New("no local account involved")

// Store is the part of the database the processor writes to.
type Store interface {
	storage.Contacts
	storage.Items
}

// Responder answers follow requests for a local account.
type Responder interface {
	AcceptFollow(ctx context.Context, uid int64, follow *receiver.Activity) error
}

type Options struct {
	// AutoAccept accepts follow requests right away instead of leaving them pending.
	AutoAccept bool
}

type Processor struct {
	store     Store
	profiles  receiver.ActorProfiles
	responder Responder
	opts      Options
	now       func() time.Time
}

func New(store Store, profiles receiver.ActorProfiles, responder Responder, opts Options) *Processor {
	return &Processor{
		store:     store,
		profiles:  profiles,
		responder: responder,
		opts:      opts,
		now:       time.Now,
	}
}

// CreateItem stores a copy of the object for every receiver.
func (p *Processor) CreateItem(ctx context.Context, a *receiver.Activity) error {
	o := a.Object
	if o == nil || o.ID == "" {
		return fmt.Errorf("%s without object", a.Type)
	}

	item := storage.Item{
		URI:       o.ID,
		Verb:      VerbPost,
		Gravity:   storage.GravityParent,
		ParentURI: o.ID,
		ThrParent: o.ReplyToID,
		Author:    o.Author,
		Title:     o.Name,
		Summary:   o.Summary,
		Body:      o.Content,
		Published: p.parseTime(o.Published),
		Edited:    p.parseTime(o.Updated),
		Sensitive: o.Sensitive,
		Location:  o.Location,
	}
	if o.Latitude != "" && o.Longitude != "" {
		item.Coord = o.Latitude + " " + o.Longitude
	}
	if !o.IsRoot() {
		item.Gravity = storage.GravityComment
		item.ParentURI = p.threadRoot(ctx, o.ReplyToID)
	}

	stored := 0
	for _, uid := range a.Receivers.UIDs() {
		row := item
		row.UID = uid
		inserted, err := p.store.InsertItem(ctx, &row)
		if err != nil {
			return err
		}
		if inserted {
			stored++
		}
	}
	telemetry.Increment("items_created", stored)
	telemetry.Debug("stored %s [%s] for %d of %d receivers", item.Verb, item.URI, stored, len(a.Receivers))
	return nil
}

// threadRoot finds the top post of the thread uri belongs to.
func (p *Processor) threadRoot(ctx context.Context, uri string) string {
	items, err := p.store.FindItems(ctx, uri)
	if err != nil {
		telemetry.Error(err, "looking up parent [%s]", uri)
	}
	if len(items) > 0 && items[0].ParentURI != "" {
		return items[0].ParentURI
	}
	return uri
}

// CreateActivity stores a like or attendance for the accounts holding its object.
func (p *Processor) CreateActivity(ctx context.Context, a *receiver.Activity, verb string) error {
	if a.ID == "" {
		return fmt.Errorf("%s activity without id", verb)
	}
	owners, err := p.store.ThreadOwners(ctx, a.ObjectID)
	if err != nil {
		return fmt.Errorf("looking up owners of [%s]: %w", a.ObjectID, err)
	}
	if len(owners) == 0 {
		telemetry.Debug("%s on unknown object [%s], nothing stored", verb, a.ObjectID)
		return nil
	}

	item := storage.Item{
		URI:       a.ID,
		Verb:      verb,
		Gravity:   storage.GravityActivity,
		ParentURI: p.threadRoot(ctx, a.ObjectID),
		ThrParent: a.ObjectID,
		Author:    a.Actor,
		Published: p.parseTime(a.Published),
	}
	for _, uid := range owners {
		row := item
		row.UID = uid
		if _, err := p.store.InsertItem(ctx, &row); err != nil {
			return err
		}
	}
	telemetry.Increment("activities_created", 1)
	return nil
}

// UpdateItem edits the author's copies of the object.
func (p *Processor) UpdateItem(ctx context.Context, a *receiver.Activity) error {
	o := a.Object
	if o == nil {
		return fmt.Errorf("update without object")
	}
	n, err := p.store.UpdateItems(ctx, o.ID, o.Author, storage.ItemChanges{
		Title:     o.Name,
		Summary:   o.Summary,
		Body:      o.Content,
		Sensitive: o.Sensitive,
		Edited:    p.parseTime(o.Updated),
	})
	if err != nil {
		return fmt.Errorf("updating [%s]: %w", o.ID, err)
	}
	if n == 0 {
		telemetry.Debug("update of unknown item [%s]", o.ID)
	}
	return nil
}

// UpdatePerson refreshes the stored profile and the avatars of its contacts.
func (p *Processor) UpdatePerson(ctx context.Context, a *receiver.Activity, body []byte) error {
	profile, err := p.profiles.Refresh(ctx, a.ObjectID)
	if err != nil {
		return fmt.Errorf("refreshing profile [%s]: %w", a.ObjectID, err)
	}
	if profile == nil {
		return fmt.Errorf("profile [%s] not found", a.ObjectID)
	}
	contacts, err := p.store.FindContacts(ctx, receiver.ContactQuery{NURL: receiver.NormaliseLink(profile.URL)})
	if err != nil {
		return err
	}
	for _, c := range contacts {
		if c.Photo == profile.Photo {
			continue
		}
		if err := p.store.UpdateAvatar(ctx, c.ID, c.UID, profile.Photo); err != nil {
			telemetry.Error(err, "updating avatar of contact %d", c.ID)
		}
	}
	telemetry.Debug("updated profile [%s] (%d bytes)", profile.URL, len(body))
	return nil
}

func (p *Processor) DeleteItem(ctx context.Context, a *receiver.Activity, body []byte) error {
	n, err := p.store.DeleteItems(ctx, a.ObjectID, a.Actor)
	if err != nil {
		return fmt.Errorf("deleting [%s]: %w", a.ObjectID, err)
	}
	telemetry.Increment("items_deleted", int(n))
	telemetry.Debug("deleted %d copies of [%s] by [%s]", n, a.ObjectID, a.Actor)
	return nil
}

// DeletePerson archives the contacts of an account that deleted itself.
func (p *Processor) DeletePerson(ctx context.Context, a *receiver.Activity, body []byte) error {
	nurl := receiver.NormaliseLink(a.ObjectID)
	if nurl != receiver.NormaliseLink(a.Actor) {
		return fmt.Errorf("[%s] can't delete account [%s]", a.Actor, a.ObjectID)
	}
	n, err := p.store.ArchiveContacts(ctx, nurl)
	if err != nil {
		return fmt.Errorf("archiving contacts of [%s]: %w", a.ObjectID, err)
	}
	telemetry.Log("account [%s] was deleted, archived %d contacts", a.ObjectID, n)
	return nil
}

func (p *Processor) parseTime(s string) time.Time {
	if s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
		telemetry.Debug("unparseable time [%s]", s)
	}
	return p.now().UTC()
}
