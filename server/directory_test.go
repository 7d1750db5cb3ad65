package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/receiver"
)

// remoteServer serves actor documents for paths under its own url.
type remoteServer struct {
	*httptest.Server
	docs    map[string]func(base string) interface{}
	fetches atomic.Int32
}

func newRemoteServer(t *testing.T) *remoteServer {
	rs := &remoteServer{docs: make(map[string]func(string) interface{})}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.fetches.Add(1)
		doc, ok := rs.docs[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", activity.ActivityJSON)
		json.NewEncoder(w).Encode(doc(rs.URL))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func actorDoc(path string) func(string) interface{} {
	return func(base string) interface{} {
		return map[string]interface{}{
			"@context":          []string{activity.Context, activity.SecurityContext},
			"type":              "Person",
			"id":                base + path,
			"url":               base + "/@sally",
			"name":              "Sally",
			"preferredUsername": "sally",
			"inbox":             base + path + "/inbox",
			"followers":         base + path + "/followers",
			"endpoints":         map[string]string{"sharedInbox": base + "/inbox"},
			"icon":              map[string]string{"type": "Image", "url": base + "/sally.png"},
			"publicKey": map[string]string{
				"id":           base + path + "#main-key",
				"owner":        base + path,
				"publicKeyPem": testPublicKey,
			},
		}
	}
}

func newTestDirectory(t *testing.T) *ActorDirectory {
	return NewActorDirectory(NewRemoteClient(http.DefaultClient, nil, defaultMaxBodyBytes), testDatabase(t), time.Minute)
}

func TestActorDirectory_Profiles(t *testing.T) {
	rs := newRemoteServer(t)
	rs.docs["/users/sally"] = actorDoc("/users/sally")
	d := newTestDirectory(t)
	ctx := context.Background()
	sally := rs.URL + "/users/sally"

	missing, err := d.Lookup(ctx, sally)
	require.NoError(t, err)
	assert.Nil(t, missing, "lookup never fetches")
	assert.Equal(t, int32(0), rs.fetches.Load())

	profile, err := d.GetByURL(ctx, sally)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, receiver.ActorProfile{
		URL:       sally,
		Type:      "Person",
		Followers: sally + "/followers",
		Inbox:     sally + "/inbox",
		Photo:     rs.URL + "/sally.png",
		Name:      "Sally",
		Nick:      "sally",
		Alias:     rs.URL + "/@sally",
		Network:   receiver.NetworkActivityPub,
	}, *profile)

	_, err = d.GetByURL(ctx, sally)
	require.NoError(t, err)
	stored, err := d.Lookup(ctx, sally)
	require.NoError(t, err)
	assert.Equal(t, profile, stored)
	assert.Equal(t, int32(1), rs.fetches.Load())

	_, err = d.Refresh(ctx, sally)
	require.NoError(t, err)
	assert.Equal(t, int32(2), rs.fetches.Load(), "refresh always fetches")

	key, err := d.PublicKey(ctx, sally)
	require.NoError(t, err)
	expected, err := parsePublicKey(testPublicKey)
	require.NoError(t, err)
	assert.Equal(t, expected, key)
}

func TestActorDirectory_NotAnActor(t *testing.T) {
	rs := newRemoteServer(t)
	rs.docs["/notes/1"] = func(base string) interface{} {
		return map[string]string{"type": "Note", "id": base + "/notes/1"}
	}
	d := newTestDirectory(t)

	_, err := d.GetByURL(context.Background(), rs.URL+"/notes/1")
	assert.ErrorIs(t, err, ErrNotActor)

	_, err = d.GetByURL(context.Background(), rs.URL+"/users/nobody")
	assert.Error(t, err)
}

func TestActorDirectory_KeyOwner(t *testing.T) {
	rs := newRemoteServer(t)
	rs.docs["/users/sally"] = actorDoc("/users/sally")
	d := newTestDirectory(t)
	ctx := context.Background()
	sally := rs.URL + "/users/sally"

	owner, key, err := d.KeyOwner(ctx, sally+"#main-key")
	require.NoError(t, err)
	assert.Equal(t, sally, owner)
	assert.NotNil(t, key)

	_, _, err = d.KeyOwner(ctx, sally+"#main-key")
	require.NoError(t, err)
	assert.Equal(t, int32(1), rs.fetches.Load())

	_, _, err = d.KeyOwner(ctx, sally+"#other-key")
	assert.Error(t, err, "sally doesn't own that key")
}

func TestActorDirectory_SeparateKeyDocument(t *testing.T) {
	rs := newRemoteServer(t)
	rs.docs["/users/sally"] = func(base string) interface{} {
		doc := actorDoc("/users/sally")(base).(map[string]interface{})
		doc["publicKey"] = map[string]string{
			"id":           base + "/keys/sally",
			"owner":        base + "/users/sally",
			"publicKeyPem": testPublicKey,
		}
		return doc
	}
	rs.docs["/keys/sally"] = func(base string) interface{} {
		return map[string]string{
			"id":           base + "/keys/sally",
			"owner":        base + "/users/sally",
			"publicKeyPem": testPublicKey,
		}
	}
	d := newTestDirectory(t)

	owner, _, err := d.KeyOwner(context.Background(), rs.URL+"/keys/sally")
	require.NoError(t, err)
	assert.Equal(t, rs.URL+"/users/sally", owner)
}
