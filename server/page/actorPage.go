package page

import "github.com/tkrehbiel/inboxlace/server/receiver"

// ActorEndpoint is a template for an ActivityPub Actor endpoint.
// Remote servers fetch it for the key that verifies our signed fetches and deliveries.
var ActorEndpoint = StaticPage{
	Path:        "", // must be set for each actor
	Accepts:     receiver.IsActivityRequest,
	ContentType: "application/activity+json",
	Template: `
{
	"@context": [
      "https://www.w3.org/ns/activitystreams",
      "https://w3id.org/security/v1"
  	],
	"type": {{ json .UserType }},
	"id": {{ json .UserID }},
	"inbox": {{ json .InboxURL }},
	"endpoints": {
		"sharedInbox": {{ json .SharedInboxURL }}
	},
	"name": {{ json .UserDisplayName }},
	"preferredUsername": {{ json .UserName }},
	"manuallyApprovesFollowers": false,
    "publicKey": {
        "id": {{ json .UserPublicKeyID }},
        "owner": {{ json .UserID }},
        "publicKeyPem": {{ json .UserPublicKey }}
    },
	"summary": {{ json .UserSummary }}
}`,
}
