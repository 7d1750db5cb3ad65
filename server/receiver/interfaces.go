package receiver

import (
	"context"

	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/jsonld"
)

// SignatureVerifier recovers the identities behind the two signature schemes.
type SignatureVerifier interface {
	// HTTPSigner returns the actor that signed the http request.
	HTTPSigner(ctx context.Context, msg InboundMessage) (string, error)
	// IsSigned reports whether the raw document has a linked data signature.
	IsSigned(doc map[string]interface{}) bool
	// LDSigner returns the actor that signed the raw document.
	LDSigner(ctx context.Context, doc map[string]interface{}) (string, error)
}

// Compactor turns json-ld documents into compacted graphs.
type Compactor interface {
	Compact(raw []byte) (jsonld.Node, error)
	CompactDocument(doc map[string]interface{}) (jsonld.Node, error)
}

// ContentFetcher dereferences an object id, signing as the local account uid.
type ContentFetcher interface {
	Fetch(ctx context.Context, id string, uid int64) ([]byte, error)
}

// ActorProfiles returns remote actor metadata. Not found is (nil, nil).
type ActorProfiles interface {
	// Lookup only consults stored profiles.
	Lookup(ctx context.Context, url string) (*ActorProfile, error)
	// GetByURL returns the stored profile or fetches it.
	GetByURL(ctx context.Context, url string) (*ActorProfile, error)
	// Refresh always fetches a fresh profile and stores it.
	Refresh(ctx context.Context, url string) (*ActorProfile, error)
}

// ContactStore queries and updates contacts. Not found is (nil, nil).
type ContactStore interface {
	FindContacts(ctx context.Context, q ContactQuery) ([]Contact, error)
	// SelfContact finds the local account with the normalized profile url nurl.
	SelfContact(ctx context.Context, nurl string) (*Contact, error)
	// Owner returns the self contact of local account uid.
	Owner(ctx context.Context, uid int64) (*Contact, error)
	Contact(ctx context.Context, id int64) (*Contact, error)
	// SwitchProtocol moves a contact over to the transport of profile.
	SwitchProtocol(ctx context.Context, id int64, profile ActorProfile) error
	UpdateAvatar(ctx context.Context, id, uid int64, photo string) error
}

// ThreadStore looks up locally stored items.
type ThreadStore interface {
	// ThreadOwners returns the local accounts holding an item with uri.
	ThreadOwners(ctx context.Context, uri string) ([]int64, error)
	// ItemExists reports whether a post or comment with uri is stored.
	ItemExists(ctx context.Context, uri string) (bool, error)
	// FindNote rebuilds a stored item as a Note. Not found is (nil, nil).
	FindNote(ctx context.Context, uri string) (*activity.Note, error)
}

// ConversationLog stores the raw source of received activities.
type ConversationLog interface {
	InsertConversation(ctx context.Context, c Conversation) error
}

// Processor performs the side effects of a dispatched activity.
type Processor interface {
	CreateItem(ctx context.Context, a *Activity) error
	CreateActivity(ctx context.Context, a *Activity, verb string) error
	UpdateItem(ctx context.Context, a *Activity) error
	UpdatePerson(ctx context.Context, a *Activity, body []byte) error
	DeleteItem(ctx context.Context, a *Activity, body []byte) error
	DeletePerson(ctx context.Context, a *Activity, body []byte) error
	FollowUser(ctx context.Context, a *Activity) error
	AcceptFollowUser(ctx context.Context, a *Activity) error
	RejectFollowUser(ctx context.Context, a *Activity) error
	UndoFollowUser(ctx context.Context, a *Activity) error
	UndoActivity(ctx context.Context, a *Activity) error
}

// OutboundSender sends an activity of type verb to target as local account uid.
type OutboundSender interface {
	SendActivity(ctx context.Context, verb, target string, uid int64) error
}
