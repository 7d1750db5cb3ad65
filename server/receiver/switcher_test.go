package receiver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tkrehbiel/inboxlace/server/activity"
)

func TestSwitchContacts_SharedContactIsFollowed(t *testing.T) {
	e := newEnv()
	id := e.contacts.add(Contact{UID: 1, URL: sally, Rel: RelSharing, Network: NetworkOStatus})
	e.profiles.refreshes[sally] = &ActorProfile{URL: sally, Photo: "https://remote.example/sally.png"}
	e.sender.On("SendActivity", activity.FollowType, sally, int64(1)).Return(nil)

	e.switcher().SwitchContacts(context.Background(), ReceiverSet{"uid:1": 1}, sally)

	assert.Equal(t, []int64{id}, e.contacts.switched)
	assert.Equal(t, []string{"https://remote.example/sally.png"}, e.contacts.avatars)
	c, _ := e.contacts.Contact(context.Background(), id)
	assert.Equal(t, NetworkActivityPub, c.Network)
	e.sender.AssertExpectations(t)
}

func TestSwitchContacts_ByAlias(t *testing.T) {
	e := newEnv()
	id := e.contacts.add(Contact{UID: 2, URL: "https://remote.example/sally", Alias: sally, Rel: RelFollower, Network: NetworkOStatus})
	e.profiles.refreshes[sally] = &ActorProfile{URL: sally}

	e.switcher().SwitchContacts(context.Background(), ReceiverSet{"uid:2": 2}, sally)

	assert.Equal(t, []int64{id}, e.contacts.switched)
	// followers only don't get a follow back
	e.sender.AssertNotCalled(t, "SendActivity", mock.Anything, mock.Anything, mock.Anything)
}

func TestSwitchContacts_Skipped(t *testing.T) {
	e := newEnv()
	e.contacts.add(Contact{UID: 1, URL: sally, Rel: RelFriend})
	e.contacts.add(Contact{UID: 2, URL: sally, Rel: RelFriend, Network: NetworkOStatus})

	// not a receiver, or not on the legacy network
	e.switcher().SwitchContacts(context.Background(), ReceiverSet{"uid:1": 1}, sally)
	e.switcher().SwitchContacts(context.Background(), ReceiverSet{"uid:2": 2}, "")
	assert.Empty(t, e.profiles.refreshed)
	assert.Empty(t, e.contacts.switched)

	// probing finds no ActivityPub actor
	e.switcher().SwitchContacts(context.Background(), ReceiverSet{"uid:2": 2}, sally)
	assert.Equal(t, []string{sally}, e.profiles.refreshed)
	assert.Empty(t, e.contacts.switched)
}

func TestSwitchContact_PublicAccount(t *testing.T) {
	e := newEnv()
	id := e.contacts.add(Contact{UID: 0, URL: sally, Rel: RelFriend, Network: NetworkOStatus})
	e.profiles.refreshes[sally] = &ActorProfile{URL: sally}

	err := e.switcher().SwitchContact(context.Background(), id, 0, sally)
	assert.NoError(t, err)
	assert.Equal(t, []int64{id}, e.contacts.switched)
	e.sender.AssertNotCalled(t, "SendActivity", mock.Anything, mock.Anything, mock.Anything)
}
