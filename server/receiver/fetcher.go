package receiver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/jsonld"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

// Fetcher resolves object references into canonical objects.
type Fetcher struct {
	compactor  Compactor
	content    ContentFetcher
	threads    ThreadStore
	profiles   ActorProfiles
	normalizer *Normalizer
	opts       Options
}

func NewFetcher(compactor Compactor, content ContentFetcher, threads ThreadStore, profiles ActorProfiles, normalizer *Normalizer, opts Options) *Fetcher {
	return &Fetcher{
		compactor:  compactor,
		content:    content,
		threads:    threads,
		profiles:   profiles,
		normalizer: normalizer,
		opts:       opts.withDefaults(),
	}
}

// Fetch returns the object objectID. The embedded copy is only used
// when trusted, otherwise the object is fetched from its origin, and
// failing that rebuilt from local storage. Announces are unwrapped,
// never trusting the announced copy.
func (f *Fetcher) Fetch(ctx context.Context, objectID string, embedded jsonld.Node, trusted bool, uid int64) (*Object, error) {
	return f.fetch(ctx, objectID, embedded, trusted, uid, 0)
}

func (f *Fetcher) fetch(ctx context.Context, objectID string, object jsonld.Node, trusted bool, uid int64, depth int) (*Object, error) {
	if depth > f.opts.MaxFetchDepth {
		return nil, fmt.Errorf("%w: %s at depth %d", ErrDepthExceeded, objectID, depth)
	}

	if !trusted || jsonld.FetchString(object, jsonld.TypeKey) == "" {
		fetched, err := f.dereference(ctx, objectID, uid)
		if err != nil {
			return nil, err
		}
		object = fetched
	} else {
		telemetry.Trace("using original object for [%s]", objectID)
	}

	typ := jsonld.FetchString(object, jsonld.TypeKey)
	switch {
	case typ == "":
		return nil, fmt.Errorf("%w: %s has no type", ErrInvalidObject, objectID)
	case activity.IsContentType(activity.TypeName(typ)):
		return f.normalizer.Normalize(ctx, object)
	case typ == activity.Compact(activity.AnnounceType):
		inner := jsonld.FetchElement(object, "as:object")
		if inner == "" {
			return nil, fmt.Errorf("%w: announce %s has no object", ErrInvalidObject, objectID)
		}
		return f.fetch(ctx, inner, nil, false, uid, depth+1)
	}
	telemetry.Debug("unhandled object type [%s] for [%s]", typ, objectID)
	return nil, fmt.Errorf("%w: unhandled type %s", ErrInvalidObject, typ)
}

// dereference fetches the object from its origin, falling back to a stored copy.
func (f *Fetcher) dereference(ctx context.Context, objectID string, uid int64) (jsonld.Node, error) {
	node, err := f.fetchRemote(ctx, objectID, uid)
	if err == nil {
		telemetry.Trace("fetched content for [%s]", objectID)
		return node, nil
	}
	telemetry.Debug("empty content for [%s], checking local storage: %v", objectID, err)

	note, err := f.threads.FindNote(ctx, objectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvable, objectID, err)
	}
	if note == nil {
		return nil, fmt.Errorf("%w: %s not found locally", ErrUnresolvable, objectID)
	}
	telemetry.Trace("using stored item for [%s]", objectID)
	b, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("marshaling stored note %s: %w", objectID, err)
	}
	return f.compactor.Compact(b)
}

func (f *Fetcher) fetchRemote(ctx context.Context, id string, uid int64) (jsonld.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.FetchTimeout)
	defer cancel()
	telemetry.Increment("object_fetches", 1)
	raw, err := f.content.Fetch(ctx, id, uid)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty response")
	}
	return f.compactor.Compact(raw)
}

// ObjectType finds the compacted type of objectID: from the embedded
// object, a stored item, a known actor, or finally the object itself.
// Returns "" when nothing is known.
func (f *Fetcher) ObjectType(ctx context.Context, node jsonld.Node, objectID string, uid int64) string {
	if typ := jsonld.FetchString(jsonld.FetchNode(node, "as:object"), jsonld.TypeKey); typ != "" {
		return typ
	}
	if objectID == "" {
		return ""
	}

	exists, err := f.threads.ItemExists(ctx, objectID)
	if err != nil {
		telemetry.Error(err, "looking up item [%s]", objectID)
	}
	if exists {
		// Any content type is handled the same from here on
		return activity.Compact(activity.NoteType)
	}

	profile, err := f.profiles.Lookup(ctx, objectID)
	if err != nil {
		telemetry.Error(err, "looking up profile [%s]", objectID)
	}
	if profile != nil && profile.Type != "" {
		return activity.Compact(profile.Type)
	}

	object, err := f.fetchRemote(ctx, objectID, uid)
	if err != nil {
		telemetry.Debug("fetching type of [%s]: %v", objectID, err)
		return ""
	}
	return jsonld.FetchString(object, jsonld.TypeKey)
}
