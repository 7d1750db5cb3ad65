package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/receiver"
)

const sally = "https://remote.example/users/sally"

func openTestDB(t *testing.T) Database {
	db, err := NewDatabase("", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, db.Open())
	t.Cleanup(db.Close)
	return db
}

func TestNewDatabase_Drivers(t *testing.T) {
	_, err := NewDatabase(DriverSQLite3, "file::memory:")
	assert.NoError(t, err)
	_, err = NewDatabase("postgres", "host=db")
	assert.Error(t, err)
}

func TestDatabase_NotOpen(t *testing.T) {
	db, err := NewDatabase("", "file::memory:")
	require.NoError(t, err)
	_, err = db.FindContacts(context.Background(), receiver.ContactQuery{})
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestContacts_Find(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	self, err := db.EnsureSelf(ctx, receiver.Contact{UID: 1, URL: "https://local.example/a/alice", ContactType: receiver.ContactCommunity})
	require.NoError(t, err)
	again, err := db.EnsureSelf(ctx, receiver.Contact{UID: 1, URL: "https://local.example/a/other"})
	require.NoError(t, err)
	assert.Equal(t, self.ID, again.ID)

	contacts := []receiver.Contact{
		{UID: 1, URL: sally, Rel: receiver.RelFriend, Network: receiver.NetworkActivityPub},
		{UID: 2, URL: sally, Rel: receiver.RelFollower, Network: receiver.NetworkActivityPub},
		{UID: 3, URL: sally, Rel: receiver.RelSharing, Network: receiver.NetworkActivityPub, Archive: true},
		{UID: 4, URL: "https://remote.example/sally", Alias: sally, Rel: receiver.RelSharing, Network: receiver.NetworkOStatus},
	}
	for i := range contacts {
		require.NoError(t, db.SaveContact(ctx, &contacts[i]))
		assert.NotZero(t, contacts[i].ID)
	}

	found, err := db.FindContacts(ctx, receiver.ContactQuery{
		NURL:   receiver.NormaliseLink(sally),
		Rels:   []receiver.Rel{receiver.RelSharing, receiver.RelFriend},
		Active: true,
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(1), found[0].UID)
	assert.Equal(t, receiver.RelFriend, found[0].Rel)

	found, err = db.FindContacts(ctx, receiver.ContactQuery{NURL: receiver.NormaliseLink(sally)})
	require.NoError(t, err)
	assert.Len(t, found, 3)

	found, err = db.FindContacts(ctx, receiver.ContactQuery{
		UIDs:     []int64{4},
		Aliases:  []string{sally},
		Networks: []string{receiver.NetworkOStatus},
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, contacts[3].ID, found[0].ID)

	// self contacts are never returned as remote contacts
	found, err = db.FindContacts(ctx, receiver.ContactQuery{UIDs: []int64{1}})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	owner, err := db.SelfContact(ctx, receiver.NormaliseLink("https://local.example/a/alice/"))
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, receiver.ContactCommunity, owner.ContactType)

	owner, err = db.Owner(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, self.ID, owner.ID)

	missing, err := db.Owner(ctx, 9)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestContacts_SwitchAndArchive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	c := receiver.Contact{UID: 4, URL: "https://remote.example/sally", Rel: receiver.RelSharing, Network: receiver.NetworkOStatus}
	require.NoError(t, db.SaveContact(ctx, &c))

	require.NoError(t, db.SwitchProtocol(ctx, c.ID, receiver.ActorProfile{URL: sally, Name: "Sally"}))
	require.NoError(t, db.UpdateAvatar(ctx, c.ID, 4, "https://remote.example/sally.png"))

	switched, err := db.Contact(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, receiver.NetworkActivityPub, switched.Network)
	assert.Equal(t, sally, switched.URL)
	assert.Equal(t, receiver.NormaliseLink(sally), switched.NURL)
	assert.Equal(t, "Sally", switched.Name)
	assert.Equal(t, "https://remote.example/sally.png", switched.Photo)

	byURL, err := db.FindContact(ctx, 4, receiver.NormaliseLink(sally))
	require.NoError(t, err)
	require.NotNil(t, byURL)

	n, err := db.ArchiveContacts(ctx, receiver.NormaliseLink(sally))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, db.DeleteContact(ctx, c.ID))
	gone, err := db.Contact(ctx, c.ID)
	assert.NoError(t, err)
	assert.Nil(t, gone)
}

func TestItems(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	uri := "https://remote.example/notes/1"
	published := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

	for _, uid := range []int64{0, 2, 1} {
		inserted, err := db.InsertItem(ctx, &Item{URI: uri, UID: uid, ParentURI: uri, Author: sally, Body: "hello", Published: published})
		require.NoError(t, err)
		assert.True(t, inserted)
	}
	inserted, err := db.InsertItem(ctx, &Item{URI: uri, UID: 1, Author: sally, Body: "duplicate"})
	require.NoError(t, err)
	assert.False(t, inserted)

	like := "https://remote.example/likes/1"
	_, err = db.InsertItem(ctx, &Item{URI: like, UID: 1, Verb: "like", Gravity: GravityActivity, ThrParent: uri, Author: sally})
	require.NoError(t, err)

	owners, err := db.ThreadOwners(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2}, owners)

	exists, err := db.ItemExists(ctx, uri)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = db.ItemExists(ctx, like)
	require.NoError(t, err)
	assert.False(t, exists, "activities are not posts")

	note, err := db.FindNote(ctx, uri)
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, activity.NoteType, note.Type)
	assert.Equal(t, sally, note.AttributedTo)
	assert.Empty(t, note.InReplyTo)
	assert.Equal(t, "2023-01-02T03:04:05Z", note.Published)
	assert.Equal(t, []string{"https://www.w3.org/ns/activitystreams#Public"}, note.To)

	// a reply to a reply keeps its direct parent
	root, parent, child := uri, "https://remote.example/notes/2", "https://remote.example/notes/3"
	_, err = db.InsertItem(ctx, &Item{URI: child, UID: 1, Gravity: GravityComment, ParentURI: root, ThrParent: parent, Author: sally})
	require.NoError(t, err)
	reply, err := db.FindNote(ctx, child)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, parent, reply.InReplyTo)
	assert.Empty(t, reply.To)

	missing, err := db.FindNote(ctx, "https://remote.example/notes/404")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	n, err := db.UpdateItems(ctx, uri, sally, ItemChanges{Body: "edited", Edited: published.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	items, err := db.FindItems(ctx, uri)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "edited", items[0].Body)

	n, err = db.DeleteItems(ctx, uri, "https://evil.example/users/mallory")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = db.DeleteItems(ctx, uri, sally)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestConversations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := receiver.Conversation{
		ItemURI:    "https://remote.example/notes/1",
		ReplyToURI: "https://remote.example/notes/1",
		Protocol:   receiver.ProtocolActivityPub,
		Source:     `{"id":"first"}`,
		Received:   time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, db.InsertConversation(ctx, c))
	c.Source = `{"id":"second"}`
	require.NoError(t, db.InsertConversation(ctx, c))

	var stored Conversation
	require.NoError(t, db.(*sqliteDatabase).db.First(&stored, "item_uri = ?", c.ItemURI).Error)
	assert.Equal(t, `{"id":"first"}`, stored.Source)
	assert.Equal(t, receiver.ProtocolActivityPub, stored.Protocol)
}

func TestActors(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := &Actor{URL: sally, Type: activity.PersonType, Followers: sally + "/followers", PubKeyID: sally + "#main-key", PubKey: "PEM"}
	require.NoError(t, db.SaveActor(ctx, a))
	a.Name = "Sally"
	require.NoError(t, db.SaveActor(ctx, a))

	found, err := db.FindActor(ctx, sally)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Sally", found.Name)
	assert.Equal(t, sally+"/followers", found.Profile().Followers)

	byKey, err := db.FindActorByKey(ctx, sally+"#main-key")
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, sally, byKey.URL)

	missing, err := db.FindActor(ctx, "https://remote.example/users/nobody")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}
