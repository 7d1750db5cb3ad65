package server

import (
	"context"
	"crypto"
	"fmt"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tkrehbiel/inboxlace/server/receiver"
	"github.com/tkrehbiel/inboxlace/server/storage"
)

type mockKeys struct {
	mock.Mock
}

func (m *mockKeys) KeyOwner(ctx context.Context, keyID string) (string, crypto.PublicKey, error) {
	args := m.Called(keyID)
	return args.String(0), args.Get(1), args.Error(2)
}

func (m *mockKeys) RefreshKey(ctx context.Context, keyID string) (string, crypto.PublicKey, error) {
	args := m.Called(keyID)
	return args.String(0), args.Get(1), args.Error(2)
}

func (m *mockKeys) PublicKey(ctx context.Context, actor string) (crypto.PublicKey, error) {
	args := m.Called(actor)
	return args.Get(0), args.Error(1)
}

type mockInbox struct {
	mock.Mock
}

func (m *mockInbox) ProcessInbox(ctx context.Context, msg receiver.InboundMessage) (receiver.Result, error) {
	args := m.Called(msg)
	return args.Get(0).(receiver.Result), args.Error(1)
}

type mockProfiles struct {
	mock.Mock
}

func (m *mockProfiles) profile(args mock.Arguments) (*receiver.ActorProfile, error) {
	if p, ok := args.Get(0).(*receiver.ActorProfile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfiles) Lookup(ctx context.Context, url string) (*receiver.ActorProfile, error) {
	return m.profile(m.Called(url))
}

func (m *mockProfiles) GetByURL(ctx context.Context, url string) (*receiver.ActorProfile, error) {
	return m.profile(m.Called(url))
}

func (m *mockProfiles) Refresh(ctx context.Context, url string) (*receiver.ActorProfile, error) {
	return m.profile(m.Called(url))
}

// testDatabase is an in-memory database private to the test.
func testDatabase(t *testing.T) storage.Database {
	db, err := storage.NewDatabase("", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	require.NoError(t, db.Open())
	t.Cleanup(db.Close)
	return db
}
