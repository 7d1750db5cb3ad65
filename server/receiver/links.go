package receiver

import (
	"net/http"
	"strings"

	"github.com/tkrehbiel/inboxlace/server/activity"
)

// NormaliseLink makes profile urls comparable: http scheme,
// no www host prefix, no trailing slash.
func NormaliseLink(url string) string {
	url = strings.Replace(url, "https:", "http:", 1)
	url = strings.Replace(url, "//www.", "//", 1)
	return strings.TrimRight(url, "/")
}

// IsActivityRequest reports whether the client asked for ActivityPub json.
func IsActivityRequest(r *http.Request) bool {
	accept := strings.ToLower(r.Header.Get("Accept"))
	return strings.Contains(accept, activity.ActivityJSON) || strings.Contains(accept, activity.LDJSON)
}

// FirstUser picks a local account to sign fetches with
// when a message came in through the shared inbox.
func FirstUser(receivers ReceiverSet) int64 {
	for _, uid := range receivers.UIDs() {
		if uid != 0 {
			return uid
		}
	}
	return 0
}
