package receiver

import (
	"context"

	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/jsonld"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

// Addressing fields, in the order they are read.
var addressFields = []string{"as:to", "as:cc", "as:bto", "as:bcc"}

// Resolver computes which local accounts receive an activity or object.
// It never modifies contacts; see Switcher for that.
type Resolver struct {
	profiles ActorProfiles
	contacts ContactStore
	threads  ThreadStore
	opts     Options
}

func NewResolver(profiles ActorProfiles, contacts ContactStore, threads ThreadStore, opts Options) *Resolver {
	return &Resolver{
		profiles: profiles,
		contacts: contacts,
		threads:  threads,
		opts:     opts.withDefaults(),
	}
}

// Resolve returns the receivers of node sent by actor.
// tags are the object's tags, used to find mentioned communities.
// Lookup errors are logged and skipped, so the result may be partial.
func (r *Resolver) Resolve(ctx context.Context, node jsonld.Node, actor string, tags []Tag) ReceiverSet {
	receivers := make(ReceiverSet)

	// Replies inherit the receivers of the parent
	replyTo := jsonld.FetchElement(node, "as:inReplyTo")
	if replyTo != "" {
		owners, err := r.threads.ThreadOwners(ctx, replyTo)
		if err != nil {
			telemetry.Error(err, "looking up thread owners of [%s]", replyTo)
		}
		for _, uid := range owners {
			receivers.Add(uid)
		}
	}

	followers := ""
	if actor != "" {
		profile, err := r.profiles.GetByURL(ctx, actor)
		if err != nil {
			telemetry.Debug("no profile for actor [%s]: %v", actor, err)
		} else if profile != nil {
			followers = profile.Followers
		}
		telemetry.Trace("actor [%s] followers [%s]", actor, followers)
	} else {
		telemetry.Debug("resolving receivers without an actor")
	}

	for _, element := range addressFields {
		for _, target := range jsonld.FetchIDs(node, element) {
			public := target == activity.PublicCollection
			if public {
				receivers.Add(0)
			}
			if public && actor != "" {
				// Most likely legacy connections that know the actor under an alias
				r.addAliasFollowers(ctx, receivers, actor)
			}
			if actor != "" && (public || target == followers) {
				receivers.Merge(r.ReceiversForActor(ctx, actor, tags))
				continue
			}
			r.addDirect(ctx, receivers, element, target, actor, replyTo, tags)
		}
	}

	return receivers
}

func (r *Resolver) addAliasFollowers(ctx context.Context, receivers ReceiverSet, actor string) {
	contacts, err := r.contacts.FindContacts(ctx, ContactQuery{
		Aliases: []string{actor, NormaliseLink(actor)},
		Rels:    []Rel{RelSharing, RelFriend},
		Active:  true,
	})
	if err != nil {
		telemetry.Error(err, "looking up contacts by alias [%s]", actor)
		return
	}
	for _, c := range contacts {
		if c.UID != 0 {
			receivers.Add(c.UID)
		}
	}
}

// addDirect handles a target that should be one of our own accounts.
func (r *Resolver) addDirect(ctx context.Context, receivers ReceiverSet, element, target, actor, replyTo string, tags []Tag) {
	self, err := r.contacts.SelfContact(ctx, NormaliseLink(target))
	if err != nil {
		telemetry.Error(err, "looking up local account [%s]", target)
		return
	}
	if self == nil {
		return
	}

	switch {
	case self.ContactType == ContactCommunity:
		// Communities only take posts from their members, followers included
		if r.opts.MentionGateDirectCommunity && !isMentioned(tags, self.URL) {
			telemetry.Debug("community [%s] addressed but not mentioned", self.URL)
			return
		}
		if !r.isConnected(ctx, actor, self.UID, []Rel{RelFollower, RelSharing, RelFriend}) {
			return
		}
	case element == "as:to" && replyTo == "":
		// Starting a thread addressed to us directly
	default:
		if !r.isConnected(ctx, actor, self.UID, []Rel{RelSharing, RelFriend}) {
			return
		}
	}
	receivers.Add(self.UID)
}

// isConnected checks that local account uid has an active relationship with actor.
func (r *Resolver) isConnected(ctx context.Context, actor string, uid int64, rels []Rel) bool {
	if actor == "" {
		return false
	}
	contacts, err := r.contacts.FindContacts(ctx, ContactQuery{
		UIDs:     []int64{uid},
		NURL:     NormaliseLink(actor),
		Rels:     rels,
		Networks: FederatedNetworks,
		Active:   true,
	})
	if err != nil {
		telemetry.Error(err, "checking connection of [%s] to uid %d", actor, uid)
		return false
	}
	return len(contacts) > 0
}

// ReceiversForActor expands a followers or public address into
// the local accounts that follow actor.
func (r *Resolver) ReceiversForActor(ctx context.Context, actor string, tags []Tag) ReceiverSet {
	receivers := make(ReceiverSet)
	contacts, err := r.contacts.FindContacts(ctx, ContactQuery{
		NURL:     NormaliseLink(actor),
		Rels:     []Rel{RelSharing, RelFriend, RelFollower},
		Networks: FederatedNetworks,
		Active:   true,
	})
	if err != nil {
		telemetry.Error(err, "looking up contacts of [%s]", actor)
		return receivers
	}
	for _, c := range contacts {
		if r.isValidReceiver(ctx, c, tags) {
			receivers.Add(c.UID)
		}
	}
	return receivers
}

// isValidReceiver decides whether a contact of the actor gets the post.
// Accounts that follow the actor always do. A community the actor merely
// follows only does when the post mentions it.
func (r *Resolver) isValidReceiver(ctx context.Context, c Contact, tags []Tag) bool {
	if c.UID == 0 {
		return false
	}
	if c.Rel == RelSharing || c.Rel == RelFriend {
		return true
	}
	owner, err := r.contacts.Owner(ctx, c.UID)
	if err != nil {
		telemetry.Error(err, "looking up owner of uid %d", c.UID)
		return false
	}
	if owner == nil || owner.ContactType != ContactCommunity {
		return false
	}
	return isMentioned(tags, owner.URL)
}

func isMentioned(tags []Tag, url string) bool {
	for _, tag := range tags {
		if tag.Type == activity.MentionType && tag.Href == url {
			return true
		}
	}
	return false
}
