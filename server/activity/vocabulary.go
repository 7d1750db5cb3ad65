package activity

import "strings"

// ActivityPub and ActivityStreams vocabulary

const (
	IDProperty        = "id"
	TypeProperty      = "type"
	PublishedProperty = "published"
)

const (
	Context         = "https://www.w3.org/ns/activitystreams"
	SecurityContext = "https://w3id.org/security/v1"
	IdentityContext = "https://w3id.org/identity/v1"
	ContentType     = `application/activity+json; profile="https://www.w3.org/ns/activitystreams"`
	ContentTypeLD   = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
	ActivityJSON    = "application/activity+json"
	LDJSON          = "application/ld+json"
)

// Namespace prefix used for ActivityStreams terms in compacted documents.
const Prefix = "as:"

// PublicCollection is the compacted form of the public addressing collection.
const PublicCollection = Prefix + "Public"

// ActivityPub object types
const (
	NoteType              = "Note"
	ArticleType           = "Article"
	VideoType             = "Video"
	ImageType             = "Image"
	EventType             = "Event"
	PlaceType             = "Place"
	TombstoneType         = "Tombstone"
	MentionType           = "Mention"
	LinkType              = "Link"
	OrderedCollectionType = "OrderedCollection"
	EmojiType             = "toot:Emoji"
)

// ActivityPub actor types
const (
	PersonType       = "Person"
	OrganizationType = "Organization"
	ServiceType      = "Service"
	GroupType        = "Group"
	ApplicationType  = "Application"
)

// ActivityPub activity types
const (
	CreateType          = "Create"
	UpdateType          = "Update"
	DeleteType          = "Delete"
	AnnounceType        = "Announce"
	FollowType          = "Follow"
	AcceptType          = "Accept"
	RejectType          = "Reject"
	TentativeAcceptType = "TentativeAccept"
	LikeType            = "Like"
	DislikeType         = "Dislike"
	UndoType            = "Undo"
)

var (
	// ContentTypes are objects that become items
	ContentTypes = []string{NoteType, ArticleType, VideoType, ImageType, EventType}
	// AccountTypes are actors
	AccountTypes = []string{PersonType, OrganizationType, ServiceType, GroupType, ApplicationType}
	// ActivityTypes are the activities that can be undone as a whole
	ActivityTypes = []string{LikeType, DislikeType, AcceptType, RejectType, TentativeAcceptType}
)

func IsContentType(t string) bool  { return contains(ContentTypes, t) }
func IsAccountType(t string) bool  { return contains(AccountTypes, t) }
func IsActivityType(t string) bool { return contains(ActivityTypes, t) }

func contains(list []string, t string) bool {
	for _, s := range list {
		if s == t {
			return true
		}
	}
	return false
}

// TypeName turns a compacted type like "as:Note" into "Note".
// Types from other vocabularies keep their prefix.
func TypeName(t string) string {
	return strings.TrimPrefix(t, Prefix)
}

// Compact turns "Note" into "as:Note".
func Compact(t string) string {
	if t == "" || strings.Contains(t, ":") {
		return t
	}
	return Prefix + t
}

const (
	// ActivityPub time format string
	TimeFormat = "2006-01-02T15:04:05Z"
)
