package receiver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/jsonld"
)

func TestResolve_PublicOnly(t *testing.T) {
	e := newEnv()
	node := jsonld.Node{"as:to": ref(activity.PublicCollection)}
	receivers := e.resolver().Resolve(context.Background(), node, sally, nil)
	assert.Equal(t, ReceiverSet{"uid:0": 0}, receivers)
}

func TestResolve_ReplyInheritsThreadOwners(t *testing.T) {
	e := newEnv()
	parent := "https://remote.example/notes/parent"
	e.threads.owners[parent] = []int64{1, 2}

	node := jsonld.Node{"as:inReplyTo": ref(parent)}
	receivers := e.resolver().Resolve(context.Background(), node, sally, nil)
	assert.True(t, receivers.Has(1))
	assert.True(t, receivers.Has(2))
	assert.Len(t, receivers, 2)

	// explicit addressing only adds to the inherited owners
	node["as:cc"] = ref(activity.PublicCollection)
	receivers = e.resolver().Resolve(context.Background(), node, sally, nil)
	assert.True(t, receivers.Has(1))
	assert.True(t, receivers.Has(2))
	assert.True(t, receivers.Has(0))
}

func TestResolve_DirectToThreadRoot(t *testing.T) {
	e := newEnv()
	node := jsonld.Node{"as:to": ref(aliceURL)}
	receivers := e.resolver().Resolve(context.Background(), node, sally, nil)
	assert.Equal(t, ReceiverSet{"uid:1": 1}, receivers)
}

func TestResolve_DirectRequiresConnection(t *testing.T) {
	e := newEnv()
	r := e.resolver()

	cc := jsonld.Node{"as:cc": ref(aliceURL)}
	assert.Empty(t, r.Resolve(context.Background(), cc, sally, nil))

	reply := jsonld.Node{"as:to": ref(aliceURL), "as:inReplyTo": ref("https://remote.example/notes/x")}
	assert.Empty(t, r.Resolve(context.Background(), reply, sally, nil))

	// a follower relationship isn't enough
	e.contacts.add(Contact{UID: 1, URL: sally, Rel: RelFollower})
	assert.Empty(t, r.Resolve(context.Background(), cc, sally, nil))

	e.contacts.add(Contact{UID: 1, URL: sally, Rel: RelSharing})
	assert.Equal(t, ReceiverSet{"uid:1": 1}, r.Resolve(context.Background(), cc, sally, nil))
	assert.Equal(t, ReceiverSet{"uid:1": 1}, r.Resolve(context.Background(), reply, sally, nil))
}

func TestResolve_DirectIgnoresInactiveConnection(t *testing.T) {
	e := newEnv()
	e.contacts.add(Contact{UID: 1, URL: sally, Rel: RelFriend, Archive: true})
	e.contacts.add(Contact{UID: 1, URL: sally, Rel: RelFriend, Pending: true})
	node := jsonld.Node{"as:cc": ref(aliceURL)}
	assert.Empty(t, e.resolver().Resolve(context.Background(), node, sally, nil))
}

func TestResolve_FollowersExpansion(t *testing.T) {
	e := newEnv()
	e.profiles.profiles[sally] = &ActorProfile{URL: sally, Type: activity.PersonType, Followers: sallyFolls}
	e.contacts.add(Contact{UID: 1, URL: sally, Rel: RelSharing})
	e.contacts.add(Contact{UID: 2, URL: sally, Rel: RelFollower})
	e.contacts.add(Contact{UID: 3, URL: sally, Rel: RelFollower})
	e.contacts.add(Contact{UID: 0, URL: sally, Rel: RelFriend})
	e.contacts.add(Contact{UID: 4, URL: sally, Rel: RelFriend, Archive: true})
	e.contacts.add(Contact{UID: 5, URL: sally, Rel: RelFriend, Network: "mail"})

	node := jsonld.Node{"as:to": ref(sallyFolls)}
	receivers := e.resolver().Resolve(context.Background(), node, sally, nil)
	assert.Equal(t, ReceiverSet{"uid:1": 1}, receivers)

	// the community only gets posts it is mentioned in
	mention := []Tag{{Type: activity.MentionType, Href: forumURL, Name: "@forum"}}
	receivers = e.resolver().Resolve(context.Background(), node, sally, mention)
	assert.Equal(t, ReceiverSet{"uid:1": 1, "uid:3": 3}, receivers)

	hashtag := []Tag{{Type: "Hashtag", Href: forumURL, Name: "#forum"}}
	receivers = e.resolver().Resolve(context.Background(), node, sally, hashtag)
	assert.Equal(t, ReceiverSet{"uid:1": 1}, receivers)
}

func TestResolve_PublicExpandsFollowersAndAliases(t *testing.T) {
	e := newEnv()
	e.contacts.add(Contact{UID: 1, URL: sally, Rel: RelFriend})
	// a legacy contact that only knows sally by alias
	e.contacts.add(Contact{UID: 2, URL: "https://remote.example/sally", Alias: sally, Rel: RelSharing, Network: NetworkOStatus})
	e.contacts.add(Contact{UID: 0, URL: "https://remote.example/sally", Alias: sally, Rel: RelSharing, Network: NetworkOStatus})

	node := jsonld.Node{"as:cc": ref(activity.PublicCollection)}
	receivers := e.resolver().Resolve(context.Background(), node, sally, nil)
	assert.Equal(t, ReceiverSet{"uid:0": 0, "uid:1": 1, "uid:2": 2}, receivers)
}

func TestResolve_NoActor(t *testing.T) {
	e := newEnv()
	e.contacts.add(Contact{UID: 1, URL: sally, Rel: RelFriend})
	node := jsonld.Node{
		"as:to": refs(activity.PublicCollection, sallyFolls, aliceURL),
	}
	receivers := e.resolver().Resolve(context.Background(), node, "", nil)
	assert.Equal(t, ReceiverSet{"uid:0": 0, "uid:1": 1}, receivers)
}

func TestResolve_DirectCommunity(t *testing.T) {
	e := newEnv()
	node := jsonld.Node{"as:cc": ref(forumURL)}
	mention := []Tag{{Type: activity.MentionType, Href: forumURL}}

	// strangers can't post into a community, even via "to" on a thread root
	assert.Empty(t, e.resolver().Resolve(context.Background(), node, sally, nil))
	to := jsonld.Node{"as:to": ref(forumURL)}
	assert.Empty(t, e.resolver().Resolve(context.Background(), to, sally, mention))

	// following the community is enough
	e.contacts.add(Contact{UID: 3, URL: sally, Rel: RelFollower})
	receivers := e.resolver().Resolve(context.Background(), node, sally, nil)
	assert.Equal(t, ReceiverSet{"uid:3": 3}, receivers)
	assert.Equal(t, ReceiverSet{"uid:3": 3}, e.resolver().Resolve(context.Background(), to, sally, nil))

	e.opts.MentionGateDirectCommunity = true
	gated := e.resolver()
	assert.Empty(t, gated.Resolve(context.Background(), node, sally, nil))
	assert.Equal(t, ReceiverSet{"uid:3": 3}, gated.Resolve(context.Background(), node, sally, mention))
}

func TestResolve_IdempotentAndOrderIndependent(t *testing.T) {
	e := newEnv()
	e.profiles.profiles[sally] = &ActorProfile{URL: sally, Followers: sallyFolls}
	e.contacts.add(Contact{UID: 2, URL: sally, Rel: RelFriend})
	e.contacts.add(Contact{UID: 3, URL: sally, Rel: RelSharing})

	node := jsonld.Node{
		"as:to":  refs(aliceURL, activity.PublicCollection),
		"as:cc":  refs(sallyFolls, bobURL),
		"as:bto": ref(forumURL),
		"as:bcc": refs("https://elsewhere.example/u/x"),
	}
	shuffled := jsonld.Node{
		"as:to":  refs(activity.PublicCollection, aliceURL),
		"as:cc":  refs(bobURL, sallyFolls),
		"as:bto": ref(forumURL),
		"as:bcc": refs("https://elsewhere.example/u/x"),
	}

	r := e.resolver()
	first := r.Resolve(context.Background(), node, sally, nil)
	second := r.Resolve(context.Background(), node, sally, nil)
	third := r.Resolve(context.Background(), shuffled, sally, nil)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
	assert.Equal(t, ReceiverSet{"uid:0": 0, "uid:1": 1, "uid:2": 2, "uid:3": 3}, first)
}

func TestReceiverSet(t *testing.T) {
	rs := make(ReceiverSet)
	rs.Add(3)
	rs.Add(0)
	rs.Add(3)
	other := ReceiverSet{"uid:1": 1}
	rs.Merge(other)
	assert.Equal(t, []int64{0, 1, 3}, rs.UIDs())
	assert.Equal(t, int64(1), FirstUser(rs))
	assert.Equal(t, int64(0), FirstUser(ReceiverSet{"uid:0": 0}))
}
