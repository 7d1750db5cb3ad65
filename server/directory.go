package server

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/receiver"
	"github.com/tkrehbiel/inboxlace/server/storage"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

var ErrNotActor = errors.New("document is not an actor")

// ActorDirectory knows the remote actors: their profiles and public keys.
// Actors are kept in the database and in a memory cache in front of it.
type ActorDirectory struct {
	remote *RemoteClient
	store  storage.Actors
	cache  *ccache.Cache[*storage.Actor]
	ttl    time.Duration
}

func NewActorDirectory(remote *RemoteClient, store storage.Actors, ttl time.Duration) *ActorDirectory {
	return &ActorDirectory{
		remote: remote,
		store:  store,
		cache:  ccache.New(ccache.Configure[*storage.Actor]().MaxSize(5000)),
		ttl:    ttl,
	}
}

func (d *ActorDirectory) remember(a *storage.Actor) {
	d.cache.Set("url:"+a.URL, a, d.ttl)
	if a.PubKeyID != "" {
		d.cache.Set("key:"+a.PubKeyID, a, d.ttl)
	}
}

func (d *ActorDirectory) cached(key string) *storage.Actor {
	if item := d.cache.Get(key); item != nil && !item.Expired() {
		telemetry.Increment("actor_cache_hits", 1)
		return item.Value()
	}
	return nil
}

// find looks for a known actor without going to the network.
func (d *ActorDirectory) find(ctx context.Context, url string) (*storage.Actor, error) {
	if a := d.cached("url:" + url); a != nil {
		return a, nil
	}
	a, err := d.store.FindActor(ctx, url)
	if err != nil || a == nil {
		return nil, err
	}
	d.remember(a)
	return a, nil
}

// fetch dereferences an actor and stores what it found.
func (d *ActorDirectory) fetch(ctx context.Context, url string) (*storage.Actor, error) {
	b, err := d.remote.Fetch(ctx, url, 0)
	if err != nil {
		return nil, err
	}
	a, err := parseActor(b)
	if err != nil {
		return nil, fmt.Errorf("[%s]: %w", url, err)
	}
	return a, d.save(ctx, a)
}

func (d *ActorDirectory) save(ctx context.Context, a *storage.Actor) error {
	telemetry.Increment("actor_fetches", 1)
	if err := d.store.SaveActor(ctx, a); err != nil {
		return fmt.Errorf("storing actor [%s]: %w", a.URL, err)
	}
	d.remember(a)
	return nil
}

// parseActor reads an actor document into its stored form.
func parseActor(b []byte) (*storage.Actor, error) {
	var doc activity.Actor
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotActor, err)
	}
	if doc.ID == "" || !activity.IsAccountType(doc.Type) {
		return nil, ErrNotActor
	}
	a := &storage.Actor{
		URL:         doc.ID,
		Type:        doc.Type,
		Followers:   doc.Followers,
		Inbox:       doc.Inbox,
		SharedInbox: doc.Endpoints.SharedInbox,
		Photo:       doc.IconURL(),
		Name:        doc.Name,
		Nick:        doc.PreferredUsername,
		Network:     receiver.NetworkActivityPub,
		PubKeyID:    doc.PublicKey.ID,
		PubKey:      doc.PublicKey.PublicKeyPem,
	}
	if profile := doc.ProfileURL(); profile != doc.ID {
		a.Alias = profile
	}
	return a, nil
}

func profileOf(a *storage.Actor) *receiver.ActorProfile {
	if a == nil {
		return nil
	}
	p := a.Profile()
	return &p
}

// Lookup implements receiver.ActorProfiles from stored actors only.
func (d *ActorDirectory) Lookup(ctx context.Context, url string) (*receiver.ActorProfile, error) {
	a, err := d.find(ctx, url)
	return profileOf(a), err
}

// GetByURL implements receiver.ActorProfiles, fetching unknown actors.
func (d *ActorDirectory) GetByURL(ctx context.Context, url string) (*receiver.ActorProfile, error) {
	a, err := d.find(ctx, url)
	if err != nil {
		return nil, err
	}
	if a == nil {
		if a, err = d.fetch(ctx, url); err != nil {
			return nil, err
		}
	}
	return profileOf(a), nil
}

// Refresh implements receiver.ActorProfiles, always fetching a fresh copy.
func (d *ActorDirectory) Refresh(ctx context.Context, url string) (*receiver.ActorProfile, error) {
	a, err := d.fetch(ctx, url)
	return profileOf(a), err
}

// PublicKey implements jsonld.KeyResolver.
func (d *ActorDirectory) PublicKey(ctx context.Context, actor string) (crypto.PublicKey, error) {
	a, err := d.find(ctx, actor)
	if err != nil {
		return nil, err
	}
	if a == nil {
		if a, err = d.fetch(ctx, actor); err != nil {
			return nil, err
		}
	}
	if a.PubKey == "" {
		return nil, fmt.Errorf("actor [%s] has no public key", actor)
	}
	return parsePublicKey(a.PubKey)
}

// KeyOwner returns the actor owning keyID and the key itself.
func (d *ActorDirectory) KeyOwner(ctx context.Context, keyID string) (string, crypto.PublicKey, error) {
	a := d.cached("key:" + keyID)
	if a == nil {
		var err error
		if a, err = d.store.FindActorByKey(ctx, keyID); err != nil {
			return "", nil, err
		}
		if a != nil {
			d.remember(a)
		}
	}
	if a == nil {
		return d.RefreshKey(ctx, keyID)
	}
	return keyOf(a, keyID)
}

// RefreshKey fetches the document behind keyID again. That is usually
// the actor itself, but some servers publish keys as separate documents
// pointing to their owner.
func (d *ActorDirectory) RefreshKey(ctx context.Context, keyID string) (string, crypto.PublicKey, error) {
	url, _, _ := strings.Cut(keyID, "#")
	b, err := d.remote.Fetch(ctx, url, 0)
	if err != nil {
		return "", nil, err
	}
	a, err := parseActor(b)
	if errors.Is(err, ErrNotActor) {
		var key activity.PublicKey
		if jsonErr := json.Unmarshal(b, &key); jsonErr != nil || key.Owner == "" {
			return "", nil, fmt.Errorf("[%s]: %w", url, err)
		}
		a, err = d.fetch(ctx, key.Owner)
		if err != nil {
			return "", nil, err
		}
		return keyOf(a, keyID)
	} else if err != nil {
		return "", nil, err
	}
	if err := d.save(ctx, a); err != nil {
		return "", nil, err
	}
	return keyOf(a, keyID)
}

func keyOf(a *storage.Actor, keyID string) (string, crypto.PublicKey, error) {
	if a.PubKeyID != keyID {
		return "", nil, fmt.Errorf("actor [%s] does not own key [%s]", a.URL, keyID)
	}
	key, err := parsePublicKey(a.PubKey)
	if err != nil {
		return "", nil, err
	}
	return a.URL, key, nil
}
