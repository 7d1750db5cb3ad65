package processor

import (
	"context"
	"fmt"

	"github.com/tkrehbiel/inboxlace/server/receiver"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

// localUID finds the local account among candidate urls,
// falling back to the first account receiving the activity.
func (p *Processor) localUID(ctx context.Context, a *receiver.Activity, candidates ...string) (int64, error) {
	for _, url := range candidates {
		if url == "" {
			continue
		}
		self, err := p.store.SelfContact(ctx, receiver.NormaliseLink(url))
		if err != nil {
			return 0, err
		}
		if self != nil {
			return self.UID, nil
		}
	}
	if uid := receiver.FirstUser(a.Receivers); uid != 0 {
		return uid, nil
	}
	return 0, fmt.Errorf("%w in %s from [%s]", ErrNotLocal, a.Type, a.Actor)
}

// contact returns the contact of actor held by uid, or nil.
func (p *Processor) contact(ctx context.Context, uid int64, actor string) (*receiver.Contact, error) {
	return p.store.FindContact(ctx, uid, receiver.NormaliseLink(actor))
}

// FollowUser records actor as a follower of the local account it followed.
func (p *Processor) FollowUser(ctx context.Context, a *receiver.Activity) error {
	self, err := p.store.SelfContact(ctx, receiver.NormaliseLink(a.ObjectID))
	if err != nil {
		return err
	}
	if self == nil {
		return fmt.Errorf("%w: follow of [%s]", ErrNotLocal, a.ObjectID)
	}

	c, err := p.contact(ctx, self.UID, a.Actor)
	if err != nil {
		return err
	}
	if c == nil {
		c = &receiver.Contact{
			UID:     self.UID,
			URL:     a.Actor,
			Network: receiver.NetworkActivityPub,
			Rel:     receiver.RelFollower,
		}
		if profile, err := p.profiles.GetByURL(ctx, a.Actor); err != nil {
			telemetry.Debug("no profile for follower [%s]: %v", a.Actor, err)
		} else if profile != nil {
			c.Name = profile.Name
			c.Nick = profile.Nick
			c.Photo = profile.Photo
			c.Alias = profile.Alias
		}
		c.Pending = !p.opts.AutoAccept
	} else if c.Rel&receiver.RelFollower == 0 {
		c.Rel |= receiver.RelFollower
		c.Pending = !p.opts.AutoAccept
	}
	c.Archive = false
	if err := p.store.SaveContact(ctx, c); err != nil {
		return err
	}
	telemetry.Log("[%s] follows user %d", a.Actor, self.UID)
	telemetry.Increment("follows", 1)

	if !p.opts.AutoAccept || p.responder == nil {
		return nil
	}
	return p.responder.AcceptFollow(ctx, self.UID, a)
}

// AcceptFollowUser completes a follow we sent.
func (p *Processor) AcceptFollowUser(ctx context.Context, a *receiver.Activity) error {
	uid, err := p.localUID(ctx, a, a.ObjectActor)
	if err != nil {
		return err
	}
	c, err := p.contact(ctx, uid, a.Actor)
	if err != nil {
		return err
	}
	if c == nil {
		telemetry.Debug("accept from [%s] without a follow by user %d", a.Actor, uid)
		return nil
	}
	c.Rel |= receiver.RelSharing
	c.Pending = false
	telemetry.Log("[%s] accepted the follow of user %d", a.Actor, uid)
	return p.store.SaveContact(ctx, c)
}

// RejectFollowUser drops our sharing with actor, when a follow is rejected
// or an accepted follow is taken back.
func (p *Processor) RejectFollowUser(ctx context.Context, a *receiver.Activity) error {
	uid, err := p.localUID(ctx, a, a.ObjectActor, a.ObjectObject)
	if err != nil {
		return err
	}
	c, err := p.contact(ctx, uid, a.Actor)
	if err != nil || c == nil {
		return err
	}
	telemetry.Log("[%s] rejected the follow of user %d", a.Actor, uid)
	return p.dropRel(ctx, c, receiver.RelSharing)
}

// UndoFollowUser removes actor from the followers of the local account.
func (p *Processor) UndoFollowUser(ctx context.Context, a *receiver.Activity) error {
	uid, err := p.localUID(ctx, a, a.ObjectObject)
	if err != nil {
		return err
	}
	c, err := p.contact(ctx, uid, a.Actor)
	if err != nil || c == nil {
		return err
	}
	telemetry.Log("[%s] stopped following user %d", a.Actor, uid)
	return p.dropRel(ctx, c, receiver.RelFollower)
}

// dropRel takes one direction out of the relationship; a contact
// left without any is removed.
func (p *Processor) dropRel(ctx context.Context, c *receiver.Contact, rel receiver.Rel) error {
	c.Rel = c.Rel &^ rel
	if c.Rel == receiver.RelNone {
		return p.store.DeleteContact(ctx, c.ID)
	}
	return p.store.SaveContact(ctx, c)
}

// UndoActivity removes the actor's like, dislike or attendance.
func (p *Processor) UndoActivity(ctx context.Context, a *receiver.Activity) error {
	n, err := p.store.DeleteItems(ctx, a.ObjectID, a.Actor)
	if err != nil {
		return fmt.Errorf("undoing [%s]: %w", a.ObjectID, err)
	}
	telemetry.Debug("undid %d copies of [%s]", n, a.ObjectID)
	return nil
}
