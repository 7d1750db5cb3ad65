package page

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

// WebFinger answers account lookups for the local accounts, which is how
// remote servers find the actor (and inbox) behind a mention.
type WebFinger struct {
	StaticPage
	HostName string
	pages    map[string]StaticPageHandler
	aliases  map[string]string
}

// NewWebFinger creates the lookup page for host.
func NewWebFinger(meta MetaData) *WebFinger {
	return &WebFinger{
		StaticPage: StaticPage{
			Path:        "/.well-known/webfinger",
			ContentType: "application/jrd+json",
		},
		HostName: meta.HostName,
		pages:    make(map[string]StaticPageHandler),
		aliases:  make(map[string]string),
	}
}

var WebFingerAccount = StaticPage{
	ContentType: "application/jrd+json",
	Template: `
{
	"subject": {{ json (.WebFingerAccount .UserName) }},
	"aliases": [
		{{ json .UserID }}
	],
	"links": [
		{
			"rel": "self",
			"type": "application/activity+json",
			"href": {{ json .UserID }}
		}
	]
}`,
}

var acctRegex = regexp.MustCompile(`^(?:acct:)?@?([^@]+)@(.+)$`)

// Add a user resource to be served
func (s *WebFinger) Add(meta UserMetaData) error {
	userPage := NewStaticPage(WebFingerAccount)
	if err := userPage.Init(meta); err != nil {
		return err
	}
	s.pages[meta.UserName] = userPage
	s.aliases[meta.UserID] = meta.UserName
	return nil
}

// lookup finds the user name a resource refers to, either acct:user@host or the actor url.
func (s *WebFinger) lookup(resource string) (string, bool) {
	if name, ok := s.aliases[resource]; ok {
		return name, true
	}
	matches := acctRegex.FindStringSubmatch(resource)
	if matches == nil || !strings.EqualFold(matches[2], s.HostName) {
		return "", false
	}
	_, ok := s.pages[matches[1]]
	return matches[1], ok
}

func (s *WebFinger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		telemetry.Debug("webfinger request without resource param")
		telemetry.Increment("webfinger_missing", 1)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	name, ok := s.lookup(resource)
	if !ok {
		telemetry.Debug("unrecognized webfinger resource [%s]", resource)
		telemetry.Increment("webfinger_unrecognized", 1)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.pages[name].ServeHTTP(w, r)
}

func (s *WebFinger) Path() string {
	return s.StaticPage.Path
}

// Match answers any client, webfinger is asked with all sorts of Accept headers.
func (s *WebFinger) Match(r *http.Request) bool {
	return true
}

func (s *WebFinger) Init(meta any) error {
	return nil // no template here, only user templates
}
