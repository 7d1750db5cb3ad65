// Package receiver processes activities delivered to our inboxes.
//
// A message is checked for signatures, compacted, turned into an
// Activity record with its receivers resolved, and finally handed to
// one Processor action chosen by the activity and object types.
// Anything that can't be trusted or understood is dropped quietly;
// inbox deliveries are never answered with an error.
package receiver

import (
	"context"
	"fmt"
	"time"

	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/jsonld"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

// Dependencies are the collaborators a Receiver works with.
type Dependencies struct {
	Verifier      SignatureVerifier
	Compactor     Compactor
	Content       ContentFetcher
	Profiles      ActorProfiles
	Contacts      ContactStore
	Threads       ThreadStore
	Conversations ConversationLog
	Processor     Processor
	Sender        OutboundSender
}

type Receiver struct {
	verifier      SignatureVerifier
	compactor     Compactor
	conversations ConversationLog
	processor     Processor
	resolver      *Resolver
	switcher      *Switcher
	fetcher       *Fetcher
	now           func() time.Time
}

func New(deps Dependencies, opts Options) *Receiver {
	opts = opts.withDefaults()
	resolver := NewResolver(deps.Profiles, deps.Contacts, deps.Threads, opts)
	switcher := NewSwitcher(deps.Profiles, deps.Contacts, deps.Sender)
	normalizer := NewNormalizer(resolver, switcher)
	return &Receiver{
		verifier:      deps.Verifier,
		compactor:     deps.Compactor,
		conversations: deps.Conversations,
		processor:     deps.Processor,
		resolver:      resolver,
		switcher:      switcher,
		fetcher:       NewFetcher(deps.Compactor, deps.Content, deps.Threads, deps.Profiles, normalizer, opts),
		now:           time.Now,
	}
}

// ProcessInbox establishes trust in a delivered message and processes it.
func (r *Receiver) ProcessInbox(ctx context.Context, msg InboundMessage) (Result, error) {
	telemetry.Increment("inbox_messages", 1)

	signer, err := r.verifier.HTTPSigner(ctx, msg)
	if err != nil || signer == "" {
		telemetry.Debug("invalid http signature, message will be discarded: %v", err)
		telemetry.Increment("inbox_unsigned", 1)
		return Discarded, fmt.Errorf("%w: no http signer: %v", ErrUntrusted, err)
	}
	telemetry.Trace("http signature is signed by [%s]", signer)

	doc, err := jsonld.Decode(msg.Body)
	if err != nil {
		telemetry.Debug("invalid body: %v", err)
		return Discarded, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	node, err := r.compactor.CompactDocument(doc)
	if err != nil {
		telemetry.Debug("compacting body: %v", err)
		return Discarded, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	in := TrustInput{
		HTTPSigner: signer,
		Actor:      jsonld.FetchElement(node, "as:actor"),
		LDSigned:   r.verifier.IsSigned(doc),
	}
	if in.LDSigned {
		in.LDSigner, err = r.verifier.LDSigner(ctx, doc)
		if err != nil {
			telemetry.Debug("invalid ld signature from [%s]: %v", in.Actor, err)
		}
	}
	trusted, reason := EvaluateTrust(in)
	telemetry.Debug("message for user %d from actor [%s]: %s", msg.UID, in.Actor, reason)

	return r.ProcessActivity(ctx, node, msg.Body, msg.UID, trusted)
}

// ProcessActivity builds the record for a compacted activity and dispatches it.
// uid is the owner of the inbox it came in on, 0 for the shared inbox.
func (r *Receiver) ProcessActivity(ctx context.Context, node jsonld.Node, body []byte, uid int64, trusted bool) (Result, error) {
	typ := jsonld.FetchString(node, jsonld.TypeKey)
	if typ == "" {
		return r.discard(fmt.Errorf("%w: empty type", ErrMalformed))
	}
	objectID := jsonld.FetchElement(node, "as:object")
	if objectID == "" {
		return r.discard(fmt.Errorf("%w: empty object", ErrMalformed))
	}
	actor := jsonld.FetchElement(node, "as:actor")
	if actor == "" {
		return r.discard(fmt.Errorf("%w: empty actor", ErrMalformed))
	}

	// The content could be forged when the actor isn't the author
	if trusted && typ == activity.Compact(activity.CreateType) && jsonld.IsObject(node, "as:object") {
		attributedTo := jsonld.FetchElement(jsonld.FetchNode(node, "as:object"), "as:attributedTo")
		trusted = actor == attributedTo
		if !trusted {
			telemetry.Debug("not trusting actor [%s], it differs from attributedTo [%s]", actor, attributedTo)
		}
	}

	rec, err := r.prepare(ctx, node, typ, actor, objectID, uid, &trusted)
	if err != nil {
		return r.discard(err)
	}
	if !trusted {
		telemetry.Debug("no trust for activity type [%s], so we quit now", rec.Type)
		telemetry.Increment("activities_untrusted", 1)
		return Untrusted, ErrUntrusted
	}

	r.storeConversation(ctx, rec, body)

	rt := findRoute(rec)
	if rt == nil {
		telemetry.Debug("unknown activity: %s %s", rec.Type, rec.ObjectType)
		telemetry.Increment("activities_unhandled", 1)
		return Unhandled, nil
	}
	telemetry.Debug("%s: %s %s %s", rt.name, rec.Type, rec.ObjectType, rec.ID)
	telemetry.Increment("activities_dispatched", 1)
	if err := rt.handle(ctx, r.processor, rec, body); err != nil {
		telemetry.Error(err, "%s for [%s]", rt.name, rec.ID)
		return Dispatched, fmt.Errorf("%s: %w", rt.name, err)
	}
	return Dispatched, nil
}

func (r *Receiver) discard(err error) (Result, error) {
	telemetry.Debug("discarding activity: %v", err)
	telemetry.Increment("activities_discarded", 1)
	return Discarded, err
}

// prepare builds the Activity record. trusted is raised when the
// object could be fetched from its origin, and lowered for announces.
func (r *Receiver) prepare(ctx context.Context, node jsonld.Node, typ, actor, objectID string, uid int64, trusted *bool) (*Activity, error) {
	receivers := r.resolver.Resolve(ctx, node, actor, nil)
	r.switcher.SwitchContacts(ctx, receivers, actor)

	if uid != 0 {
		// Delivered to a personal inbox
		receivers.Add(uid)
	} else {
		// Some account is needed to sign fetches of non public content
		uid = FirstUser(receivers)
	}
	telemetry.Trace("receivers for uid %d: %v", uid, receivers.UIDs())

	name := activity.TypeName(typ)
	inner := jsonld.FetchNode(node, "as:object")
	var rec *Activity
	switch {
	case name == activity.UpdateType && activity.IsAccountType(activity.TypeName(jsonld.FetchString(inner, jsonld.TypeKey))):
		// Profiles are refreshed from their origin later, the embedded copy isn't used
		rec = &Activity{
			ID:         jsonld.FetchString(node, jsonld.IDKey),
			ObjectID:   objectID,
			ObjectType: activity.TypeName(jsonld.FetchString(inner, jsonld.TypeKey)),
		}
	case name == activity.CreateType || name == activity.UpdateType || name == activity.AnnounceType:
		if name == activity.AnnounceType {
			*trusted = false
		}
		object, err := r.fetcher.Fetch(ctx, objectID, inner, *trusted, uid)
		if err != nil {
			return nil, fmt.Errorf("object data of [%s] couldn't be processed: %w", objectID, err)
		}
		// The object came from a source we trust
		*trusted = true
		rec = &Activity{
			ID:         object.ID,
			ObjectID:   objectID,
			ObjectType: object.ObjectType,
			Object:     object,
		}
	case name == activity.LikeType || name == activity.DislikeType:
		// The liked object is never fetched, so its type stays unknown
		object, err := readObject(node)
		if err != nil {
			object = &Object{}
		}
		object.Name = name
		object.Author = actor
		object.Receivers = make(ReceiverSet)
		rec = &Activity{
			ID:       jsonld.FetchString(node, jsonld.IDKey),
			ObjectID: objectID,
			Object:   object,
		}
	default:
		rec = &Activity{
			ID:           jsonld.FetchString(node, jsonld.IDKey),
			ObjectID:     objectID,
			ObjectActor:  jsonld.FetchElement(inner, "as:actor"),
			ObjectObject: jsonld.FetchElement(inner, "as:object"),
			ObjectType:   activity.TypeName(jsonld.FetchString(inner, jsonld.TypeKey)),
		}
		// An undo is done on the object of an object
		if name == activity.UndoType {
			rec.ObjectObjectType = activity.TypeName(r.fetcher.ObjectType(ctx, nil, rec.ObjectObject, uid))
		}
		if rec.ObjectType == "" {
			rec.ObjectType = activity.TypeName(r.fetcher.ObjectType(ctx, node, objectID, uid))
		}
	}

	addActivityFields(rec, node)
	rec.Type = name
	rec.Actor = actor
	rec.Receivers = make(ReceiverSet)
	if rec.Object != nil {
		rec.Receivers.Merge(rec.Object.Receivers)
	}
	rec.Receivers.Merge(receivers)

	telemetry.Debug("processing %s %s %s", rec.Type, rec.ObjectType, rec.ID)
	return rec, nil
}

// addActivityFields copies envelope fields the object doesn't have.
func addActivityFields(rec *Activity, node jsonld.Node) {
	if rec.Object != nil {
		rec.Published = rec.Object.Published
		rec.DiasporaGUID = rec.Object.DiasporaGUID
	}
	if rec.Published == "" {
		rec.Published = jsonld.FetchValue(node, "as:published")
	}
	if rec.DiasporaGUID == "" {
		rec.DiasporaGUID = jsonld.FetchString(node, "diaspora:guid")
	}
	rec.Service = jsonld.FetchTypedElement(node, "as:instrument", "as:name", jsonld.TypeKey, activity.Compact(activity.ServiceType))
}

// storeConversation logs the raw message, everything is stored, not only posts.
func (r *Receiver) storeConversation(ctx context.Context, rec *Activity, body []byte) {
	if len(body) == 0 || rec.ID == "" {
		return
	}
	c := Conversation{
		ItemURI:  rec.ID,
		Protocol: ProtocolActivityPub,
		Source:   string(body),
		Received: r.now().UTC(),
	}
	if rec.Object != nil {
		c.ReplyToURI = rec.Object.ReplyToID
		c.ConversationHref = rec.Object.Context
		c.ConversationURI = rec.Object.Conversation
	}
	if err := r.conversations.InsertConversation(ctx, c); err != nil {
		telemetry.Error(err, "storing conversation [%s]", rec.ID)
	}
}
