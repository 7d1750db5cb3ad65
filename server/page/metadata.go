package page

import (
	"fmt"
	"net/url"
)

// MetaData contains server information typically used in templates
type MetaData struct {
	URL      string // full server URL with scheme, host, port
	Scheme   string // http or https
	HostName string // server hostname
}

// WebFingerAccount gets a webfinger user account name
func (m MetaData) WebFingerAccount(name string) string {
	return fmt.Sprintf("acct:%s@%s", name, m.HostName)
}

// ActorURL gets an ActivtyPub Actor ID and endpoint URL
func (m MetaData) ActorURL(name string) string {
	s, _ := url.JoinPath(m.URL, fmt.Sprintf("a/%s", name))
	return s
}

// SharedInboxURL is the inbox for deliveries to several local accounts at once.
func (m MetaData) SharedInboxURL() string {
	s, _ := url.JoinPath(m.URL, "inbox")
	return s
}

func (m MetaData) NewUserMetaData(name string) UserMetaData {
	return UserMetaData{
		MetaData: m,
		UserName: name,
		UserID:   m.ActorURL(name),
	}
}

func NewMetaData(u *url.URL) MetaData {
	return MetaData{
		URL:      u.String(),
		Scheme:   u.Scheme,
		HostName: u.Hostname(),
	}
}

// UserMetaData contains user information typically used in templates
type UserMetaData struct {
	MetaData
	UserName        string // Plain undecorated username
	UserID          string // ActivityPub user ID (an URL for application/json+activity)
	UserDisplayName string
	UserSummary     string
	UserType        string // ActivityPub Actor type (Person, Group, etc.)
	UserPublicKey   string // PEM
}

func (m UserMetaData) InboxURL() string {
	s, _ := url.JoinPath(m.URL, fmt.Sprintf("a/%s/inbox", m.UserName))
	return s
}

// UserPublicKeyID is the keyId remote servers see in our signatures.
func (m UserMetaData) UserPublicKeyID() string {
	return m.UserID + "#main-key"
}
