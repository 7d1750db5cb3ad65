package receiver

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"
	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/jsonld"
)

const (
	localURL   = "https://local.example/a/"
	aliceURL   = localURL + "alice"
	bobURL     = localURL + "bob"
	forumURL   = localURL + "forum"
	sally      = "https://remote.example/users/sally"
	sallyFolls = sally + "/followers"
	mallory    = "https://evil.example/users/mallory"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) HTTPSigner(ctx context.Context, msg InboundMessage) (string, error) {
	args := m.Called(msg)
	return args.String(0), args.Error(1)
}

func (m *mockVerifier) IsSigned(doc map[string]interface{}) bool {
	args := m.Called(doc)
	return args.Bool(0)
}

func (m *mockVerifier) LDSigner(ctx context.Context, doc map[string]interface{}) (string, error) {
	args := m.Called(doc)
	return args.String(0), args.Error(1)
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) CreateItem(ctx context.Context, a *Activity) error {
	return m.Called(a).Error(0)
}

func (m *mockProcessor) CreateActivity(ctx context.Context, a *Activity, verb string) error {
	return m.Called(a, verb).Error(0)
}

func (m *mockProcessor) UpdateItem(ctx context.Context, a *Activity) error {
	return m.Called(a).Error(0)
}

func (m *mockProcessor) UpdatePerson(ctx context.Context, a *Activity, body []byte) error {
	return m.Called(a, body).Error(0)
}

func (m *mockProcessor) DeleteItem(ctx context.Context, a *Activity, body []byte) error {
	return m.Called(a, body).Error(0)
}

func (m *mockProcessor) DeletePerson(ctx context.Context, a *Activity, body []byte) error {
	return m.Called(a, body).Error(0)
}

func (m *mockProcessor) FollowUser(ctx context.Context, a *Activity) error {
	return m.Called(a).Error(0)
}

func (m *mockProcessor) AcceptFollowUser(ctx context.Context, a *Activity) error {
	return m.Called(a).Error(0)
}

func (m *mockProcessor) RejectFollowUser(ctx context.Context, a *Activity) error {
	return m.Called(a).Error(0)
}

func (m *mockProcessor) UndoFollowUser(ctx context.Context, a *Activity) error {
	return m.Called(a).Error(0)
}

func (m *mockProcessor) UndoActivity(ctx context.Context, a *Activity) error {
	return m.Called(a).Error(0)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendActivity(ctx context.Context, verb, target string, uid int64) error {
	return m.Called(verb, target, uid).Error(0)
}

// fakeCompactor returns prepared graphs by the id of the document.
type fakeCompactor struct {
	nodes map[string]jsonld.Node
	seen  []map[string]interface{}
}

func (c *fakeCompactor) Compact(raw []byte) (jsonld.Node, error) {
	doc, err := jsonld.Decode(raw)
	if err != nil {
		return nil, err
	}
	return c.CompactDocument(doc)
}

func (c *fakeCompactor) CompactDocument(doc map[string]interface{}) (jsonld.Node, error) {
	c.seen = append(c.seen, doc)
	id, _ := doc["id"].(string)
	if n, ok := c.nodes[id]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("no compacted form of %q", id)
}

type fakeContent struct {
	docs  map[string]string
	calls []string
	uids  []int64
}

func (f *fakeContent) Fetch(ctx context.Context, id string, uid int64) ([]byte, error) {
	f.calls = append(f.calls, id)
	f.uids = append(f.uids, uid)
	if doc, ok := f.docs[id]; ok {
		return []byte(doc), nil
	}
	return nil, fmt.Errorf("404 for %s", id)
}

type fakeProfiles struct {
	profiles  map[string]*ActorProfile
	refreshes map[string]*ActorProfile
	refreshed []string
}

func (f *fakeProfiles) Lookup(ctx context.Context, url string) (*ActorProfile, error) {
	return f.profiles[url], nil
}

func (f *fakeProfiles) GetByURL(ctx context.Context, url string) (*ActorProfile, error) {
	return f.profiles[url], nil
}

func (f *fakeProfiles) Refresh(ctx context.Context, url string) (*ActorProfile, error) {
	f.refreshed = append(f.refreshed, url)
	return f.refreshes[url], nil
}

type fakeContacts struct {
	contacts []Contact
	switched []int64
	avatars  []string
}

func containsUID(list []int64, v int64) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

func containsRel(list []Rel, v Rel) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

func (f *fakeContacts) FindContacts(ctx context.Context, q ContactQuery) ([]Contact, error) {
	var found []Contact
	for _, c := range f.contacts {
		switch {
		case c.Self:
		case len(q.UIDs) > 0 && !containsUID(q.UIDs, c.UID):
		case q.NURL != "" && c.NURL != q.NURL:
		case len(q.Aliases) > 0 && (c.Alias == "" || !containsString(q.Aliases, c.Alias)):
		case len(q.Rels) > 0 && !containsRel(q.Rels, c.Rel):
		case len(q.Networks) > 0 && !containsString(q.Networks, c.Network):
		case q.Active && (c.Archive || c.Pending):
		default:
			found = append(found, c)
		}
	}
	return found, nil
}

func (f *fakeContacts) SelfContact(ctx context.Context, nurl string) (*Contact, error) {
	for i := range f.contacts {
		if f.contacts[i].Self && f.contacts[i].NURL == nurl {
			return &f.contacts[i], nil
		}
	}
	return nil, nil
}

func (f *fakeContacts) Owner(ctx context.Context, uid int64) (*Contact, error) {
	for i := range f.contacts {
		if f.contacts[i].Self && f.contacts[i].UID == uid {
			return &f.contacts[i], nil
		}
	}
	return nil, nil
}

func (f *fakeContacts) Contact(ctx context.Context, id int64) (*Contact, error) {
	for i := range f.contacts {
		if f.contacts[i].ID == id {
			return &f.contacts[i], nil
		}
	}
	return nil, nil
}

func (f *fakeContacts) SwitchProtocol(ctx context.Context, id int64, profile ActorProfile) error {
	f.switched = append(f.switched, id)
	for i := range f.contacts {
		if f.contacts[i].ID == id {
			f.contacts[i].Network = NetworkActivityPub
			f.contacts[i].URL = profile.URL
			f.contacts[i].NURL = NormaliseLink(profile.URL)
		}
	}
	return nil
}

func (f *fakeContacts) UpdateAvatar(ctx context.Context, id, uid int64, photo string) error {
	f.avatars = append(f.avatars, photo)
	return nil
}

// add appends a remote contact and returns its id.
func (f *fakeContacts) add(c Contact) int64 {
	c.ID = int64(len(f.contacts) + 1)
	if c.NURL == "" {
		c.NURL = NormaliseLink(c.URL)
	}
	if c.Network == "" {
		c.Network = NetworkActivityPub
	}
	f.contacts = append(f.contacts, c)
	return c.ID
}

type fakeThreads struct {
	owners map[string][]int64
	items  map[string]bool
	notes  map[string]*activity.Note
}

func (f *fakeThreads) ThreadOwners(ctx context.Context, uri string) ([]int64, error) {
	return f.owners[uri], nil
}

func (f *fakeThreads) ItemExists(ctx context.Context, uri string) (bool, error) {
	return f.items[uri], nil
}

func (f *fakeThreads) FindNote(ctx context.Context, uri string) (*activity.Note, error) {
	return f.notes[uri], nil
}

type fakeConversations struct {
	rows []Conversation
}

func (f *fakeConversations) InsertConversation(ctx context.Context, c Conversation) error {
	f.rows = append(f.rows, c)
	return nil
}

type testEnv struct {
	verifier  *mockVerifier
	compactor *fakeCompactor
	content   *fakeContent
	profiles  *fakeProfiles
	contacts  *fakeContacts
	threads   *fakeThreads
	convs     *fakeConversations
	processor *mockProcessor
	sender    *mockSender
	opts      Options
}

// newEnv has three local accounts: alice (1), bob (2) and a community (3).
func newEnv() *testEnv {
	e := &testEnv{
		verifier:  &mockVerifier{},
		compactor: &fakeCompactor{nodes: make(map[string]jsonld.Node)},
		content:   &fakeContent{docs: make(map[string]string)},
		profiles:  &fakeProfiles{profiles: make(map[string]*ActorProfile), refreshes: make(map[string]*ActorProfile)},
		contacts:  &fakeContacts{},
		threads:   &fakeThreads{owners: make(map[string][]int64), items: make(map[string]bool), notes: make(map[string]*activity.Note)},
		convs:     &fakeConversations{},
		processor: &mockProcessor{},
		sender:    &mockSender{},
		opts:      DefaultOptions(),
	}
	e.contacts.add(Contact{UID: 1, URL: aliceURL, Self: true, Rel: RelFriend})
	e.contacts.add(Contact{UID: 2, URL: bobURL, Self: true, Rel: RelFriend})
	e.contacts.add(Contact{UID: 3, URL: forumURL, Self: true, Rel: RelFriend, ContactType: ContactCommunity})
	for _, u := range []string{aliceURL, bobURL, forumURL} {
		e.profiles.profiles[u] = &ActorProfile{URL: u, Type: activity.PersonType}
	}
	return e
}

func (e *testEnv) deps() Dependencies {
	return Dependencies{
		Verifier:      e.verifier,
		Compactor:     e.compactor,
		Content:       e.content,
		Profiles:      e.profiles,
		Contacts:      e.contacts,
		Threads:       e.threads,
		Conversations: e.convs,
		Processor:     e.processor,
		Sender:        e.sender,
	}
}

func (e *testEnv) receiver() *Receiver {
	return New(e.deps(), e.opts)
}

func (e *testEnv) resolver() *Resolver {
	return NewResolver(e.profiles, e.contacts, e.threads, e.opts)
}

func (e *testEnv) switcher() *Switcher {
	return NewSwitcher(e.profiles, e.contacts, e.sender)
}

func (e *testEnv) fetcher() *Fetcher {
	normalizer := NewNormalizer(e.resolver(), e.switcher())
	return NewFetcher(e.compactor, e.content, e.threads, e.profiles, normalizer, e.opts)
}

// remote makes id fetchable, returning node once compacted.
func (e *testEnv) remote(id string, node jsonld.Node) {
	e.content.docs[id] = fmt.Sprintf(`{"id": %q}`, id)
	e.compactor.nodes[id] = node
}

func ref(id string) map[string]interface{} {
	return map[string]interface{}{"@id": id}
}

func refs(ids ...string) []interface{} {
	list := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		list = append(list, ref(id))
	}
	return list
}

// note builds a compacted Note attributed to author.
func note(id, author string) jsonld.Node {
	return jsonld.Node{
		"@id":             id,
		"@type":           "as:Note",
		"as:attributedTo": ref(author),
		"as:content":      "hello",
		"as:published":    map[string]interface{}{"@type": "xsd:dateTime", "@value": "2023-01-02T03:04:05Z"},
		"as:to":           ref(activity.PublicCollection),
	}
}
