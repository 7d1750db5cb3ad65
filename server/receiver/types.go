package receiver

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"
)

var (
	ErrMalformed     = errors.New("malformed activity")
	ErrUntrusted     = errors.New("untrusted activity")
	ErrInvalidObject = errors.New("invalid object")
	ErrUnresolvable  = errors.New("object could not be resolved")
	ErrDepthExceeded = errors.New("fetch depth exceeded")
)

// Result is the outcome of processing one inbound message.
// None of these are reported back to the sending server.
type Result int

const (
	Discarded Result = iota
	Untrusted
	Dispatched
	Unhandled
)

func (r Result) String() string {
	switch r {
	case Discarded:
		return "discarded"
	case Untrusted:
		return "untrusted"
	case Dispatched:
		return "dispatched"
	case Unhandled:
		return "unhandled"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// InboundMessage is an inbox delivery as it arrived over http.
// UID is the owner of a personal inbox, 0 for the shared inbox.
type InboundMessage struct {
	Method string
	Target string // path and query of the request
	Host   string
	Header http.Header
	Body   []byte
	UID    int64
}

// ReceiverSet maps "uid:N" to N. uid 0 is the public collection.
type ReceiverSet map[string]int64

func receiverKey(uid int64) string {
	return fmt.Sprintf("uid:%d", uid)
}

func (rs ReceiverSet) Add(uid int64) {
	rs[receiverKey(uid)] = uid
}

func (rs ReceiverSet) Has(uid int64) bool {
	_, ok := rs[receiverKey(uid)]
	return ok
}

// Merge adds every entry of other.
func (rs ReceiverSet) Merge(other ReceiverSet) {
	for k, v := range other {
		rs[k] = v
	}
}

// UIDs returns the account ids in ascending order.
func (rs ReceiverSet) UIDs() []int64 {
	uids := make([]int64, 0, len(rs))
	for _, uid := range rs {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

type Tag struct {
	Type string
	Href string
	Name string
}

type Emoji struct {
	Name string
	Href string
}

type Attachment struct {
	Type      string
	MediaType string
	Name      string
	URL       string
}

type Source struct {
	Content   string
	MediaType string
}

// Object is the canonical form of a content object (Note, Article, ...).
type Object struct {
	ID           string
	ObjectType   string
	Actor        string
	Author       string
	ReplyToID    string
	Published    string
	Updated      string
	Context      string
	Conversation string
	Sensitive    bool
	Name         string
	Summary      string
	Content      string
	Source       Source
	Location     string
	Latitude     string
	Longitude    string
	StartTime    string
	EndTime      string
	Attachments  []Attachment
	Tags         []Tag
	Emojis       []Emoji
	Generator    string
	AlternateURL string

	DiasporaGUID    string
	DiasporaComment string
	DiasporaLike    string

	Receivers ReceiverSet
}

// IsRoot reports whether the object starts a thread.
func (o *Object) IsRoot() bool {
	return o.ReplyToID == "" || o.ReplyToID == o.ID
}

// Activity is the record handed to the processor.
// Object is nil for activities that don't carry content, like Follow.
type Activity struct {
	Type             string
	ObjectType       string
	ObjectObjectType string
	Actor            string
	ID               string
	ObjectID         string
	ObjectActor      string
	ObjectObject     string
	Receivers        ReceiverSet
	Published        string
	DiasporaGUID     string
	Service          string

	Object *Object
}

// ActorProfile is the cached metadata of a remote actor.
type ActorProfile struct {
	URL       string
	Type      string
	Followers string
	Inbox     string
	Photo     string
	Name      string
	Nick      string
	Alias     string
	Network   string
}

// Relationship between a local account and a contact.
// The values are bits, a friend is both follower and sharing.
type Rel int

const (
	RelNone Rel = iota
	RelFollower
	RelSharing
	RelFriend
)

// ContactType describes the kind of account a contact is.
type ContactType int

const (
	ContactPerson ContactType = iota
	ContactOrganisation
	ContactNews
	ContactCommunity
)

// Transport networks of a contact
const (
	NetworkActivityPub = "apub"
	NetworkDFRN        = "dfrn"
	NetworkDiaspora    = "dspr"
	NetworkOStatus     = "stat"
)

// FederatedNetworks can deliver to us.
var FederatedNetworks = []string{NetworkActivityPub, NetworkDFRN, NetworkDiaspora, NetworkOStatus}

// Contact is a remote account as seen by one local account (UID).
// Self contacts describe the local accounts themselves.
type Contact struct {
	ID          int64
	UID         int64
	URL         string
	NURL        string
	Alias       string
	Name        string
	Nick        string
	Photo       string
	Network     string
	Rel         Rel
	ContactType ContactType
	Self        bool
	Archive     bool
	Pending     bool
}

// ContactQuery selects contacts. Empty fields don't restrict the query.
// Active excludes archived and pending contacts.
type ContactQuery struct {
	UIDs     []int64
	NURL     string
	Aliases  []string
	Rels     []Rel
	Networks []string
	Active   bool
}

// Conversation is the raw message log entry of a received activity.
type Conversation struct {
	ItemURI          string
	ReplyToURI       string
	ConversationHref string
	ConversationURI  string
	Protocol         string
	Source           string
	Received         time.Time
}

// ProtocolActivityPub marks conversation rows received over ActivityPub.
const ProtocolActivityPub = "activitypub"

// Verbs for CreateActivity
const (
	VerbLike        = "like"
	VerbDislike     = "dislike"
	VerbAttend      = "attend"
	VerbAttendNo    = "attendno"
	VerbAttendMaybe = "attendmaybe"
)

// Options tune receiver policy.
type Options struct {
	// MaxFetchDepth bounds the unwrapping of nested Announce objects.
	MaxFetchDepth int
	// FetchTimeout bounds each remote dereference.
	FetchTimeout time.Duration
	// MentionGateDirectCommunity requires a community addressed directly
	// to be mentioned in the tags as well.
	MentionGateDirectCommunity bool
}

const (
	DefaultMaxFetchDepth = 5
	DefaultFetchTimeout  = 10 * time.Second
)

func DefaultOptions() Options {
	return Options{
		MaxFetchDepth: DefaultMaxFetchDepth,
		FetchTimeout:  DefaultFetchTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxFetchDepth <= 0 {
		o.MaxFetchDepth = DefaultMaxFetchDepth
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	return o
}
