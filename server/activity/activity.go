package activity

// Activity is the outbound shape of an activity we send.
// Actor and Object may be a plain id string or an embedded object.
type Activity struct {
	Context interface{} `json:"@context,omitempty"`
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Name    string      `json:"name,omitempty"`
	Actor   interface{} `json:"actor,omitempty"`
	Object  interface{} `json:"object,omitempty"`
	Target  interface{} `json:"target,omitempty"`
	To      []string    `json:"to,omitempty"`
	CC      []string    `json:"cc,omitempty"`
}

// PublicKey is the key block of an actor document
type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// Actor is the subset of a remote actor document we care about.
type Actor struct {
	Context           interface{} `json:"@context,omitempty"`
	Type              string      `json:"type"`
	ID                string      `json:"id"`
	URL               interface{} `json:"url,omitempty"`
	Name              string      `json:"name,omitempty"`
	PreferredUsername string      `json:"preferredUsername,omitempty"`
	Inbox             string      `json:"inbox"`
	Outbox            string      `json:"outbox,omitempty"`
	Followers         string      `json:"followers,omitempty"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox,omitempty"`
	} `json:"endpoints,omitempty"`
	Icon      interface{} `json:"icon,omitempty"`
	PublicKey PublicKey   `json:"publicKey"`
}

// IconURL digs the avatar url out of an icon that may be a string, an Image object or a list of them.
func (a Actor) IconURL() string {
	return linkHref(a.Icon)
}

// ProfileURL is the actor's html url if it has a plain one, else its id.
func (a Actor) ProfileURL() string {
	if s := linkHref(a.URL); s != "" {
		return s
	}
	return a.ID
}

func linkHref(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		for _, k := range []string{"url", "href"} {
			if s := linkHref(t[k]); s != "" {
				return s
			}
		}
	case []interface{}:
		for _, e := range t {
			if s := linkHref(e); s != "" {
				return s
			}
		}
	}
	return ""
}
