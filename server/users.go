package server

import (
	"crypto/rsa"
	"fmt"
	"sort"

	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/page"
	"github.com/tkrehbiel/inboxlace/server/receiver"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

// localUser is an account hosted here.
type localUser struct {
	uid  int64
	name string
	meta page.UserMetaData
	key  *rsa.PrivateKey
}

func (u *localUser) keyID() string {
	return u.meta.UserPublicKeyID()
}

// contactType maps the actor type onto the kind of account the receiver sees.
func (u *localUser) contactType() receiver.ContactType {
	switch u.meta.UserType {
	case activity.GroupType:
		return receiver.ContactCommunity
	case activity.OrganizationType:
		return receiver.ContactOrganisation
	case activity.ServiceType, activity.ApplicationType:
		return receiver.ContactNews
	}
	return receiver.ContactPerson
}

// selfContact describes the account to the contact store.
func (u *localUser) selfContact() receiver.Contact {
	return receiver.Contact{
		UID:         u.uid,
		URL:         u.meta.UserID,
		Name:        u.meta.UserDisplayName,
		Nick:        u.name,
		Network:     receiver.NetworkActivityPub,
		ContactType: u.contactType(),
		Self:        true,
	}
}

// localUsers are the configured accounts in uid order.
type localUsers []*localUser

func newLocalUsers(cfg Config, meta page.MetaData) (localUsers, error) {
	users := make(localUsers, 0, len(cfg.Users))
	for _, usercfg := range cfg.Users {
		u := &localUser{
			uid:  usercfg.UID,
			name: usercfg.Name,
			meta: meta.NewUserMetaData(usercfg.Name),
		}
		u.meta.UserDisplayName = usercfg.DisplayName
		u.meta.UserType = activity.PersonType
		if usercfg.Type != "" {
			u.meta.UserType = usercfg.Type
		}
		if usercfg.PrivKeyFile != "" {
			key, pub, err := loadKeys(usercfg.PrivKeyFile, usercfg.PubKeyFile)
			if err != nil {
				return nil, fmt.Errorf("keys of user [%s]: %w", usercfg.Name, err)
			}
			u.key = key
			u.meta.UserPublicKey = pub
		} else {
			telemetry.Log("user [%s] has no private key, requests made for it are signed by another account", usercfg.Name)
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].uid < users[j].uid })
	return users, nil
}

func (l localUsers) byUID(uid int64) *localUser {
	for _, u := range l {
		if u.uid == uid {
			return u
		}
	}
	return nil
}

// signer picks the account to sign a request made for uid. Requests
// not made for a particular account are signed by the first one with a key.
func (l localUsers) signer(uid int64) *localUser {
	if u := l.byUID(uid); u != nil && u.key != nil {
		return u
	}
	for _, u := range l {
		if u.key != nil {
			return u
		}
	}
	return nil
}
