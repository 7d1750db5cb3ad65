package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/jsonld"
	"github.com/tkrehbiel/inboxlace/server/receiver"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

// ActivitySender delivers activities of local accounts to remote inboxes.
// Activities carry a linked data signature when ld is set, so they can be relayed.
type ActivitySender struct {
	users    localUsers
	profiles receiver.ActorProfiles
	remote   *RemoteClient
	pipeline *OutputPipeline
	ld       *jsonld.Signatures
}

func NewActivitySender(users localUsers, profiles receiver.ActorProfiles, remote *RemoteClient, pipeline *OutputPipeline, ld *jsonld.Signatures) *ActivitySender {
	return &ActivitySender{users: users, profiles: profiles, remote: remote, pipeline: pipeline, ld: ld}
}

func (s *ActivitySender) activityID(u *localUser) string {
	return fmt.Sprintf("%s/activity/%s", u.meta.UserID, uuid.NewString())
}

// SendActivity implements receiver.OutboundSender.
// It is how a switched contact gets followed over ActivityPub.
func (s *ActivitySender) SendActivity(ctx context.Context, verb, target string, uid int64) error {
	u := s.users.byUID(uid)
	if u == nil {
		return fmt.Errorf("no local user %d", uid)
	}
	act := activity.Activity{
		Context: activity.Context,
		Type:    verb,
		ID:      s.activityID(u),
		Actor:   u.meta.UserID,
		Object:  target,
		To:      []string{target},
	}
	return s.deliver(ctx, u, target, act)
}

// AcceptFollow implements processor.Responder.
func (s *ActivitySender) AcceptFollow(ctx context.Context, uid int64, follow *receiver.Activity) error {
	u := s.users.byUID(uid)
	if u == nil {
		return fmt.Errorf("no local user %d", uid)
	}
	act := activity.Activity{
		Context: activity.Context,
		Type:    activity.AcceptType,
		ID:      s.activityID(u),
		Actor:   u.meta.UserID,
		To:      []string{follow.Actor}, // Pleroma seems to require a to array
		Object: activity.Activity{
			// Return the information that was sent to us
			Type:   activity.FollowType,
			ID:     follow.ID,
			Actor:  follow.Actor,
			Object: follow.ObjectID,
		},
	}
	return s.deliver(ctx, u, follow.Actor, act)
}

func (s *ActivitySender) deliver(ctx context.Context, u *localUser, recipient string, act activity.Activity) error {
	profile, err := s.profiles.GetByURL(ctx, recipient)
	if err != nil {
		return fmt.Errorf("looking up [%s]: %w", recipient, err)
	}
	if profile == nil || profile.Inbox == "" {
		return fmt.Errorf("no inbox for [%s]", recipient)
	}
	body, err := s.encode(u, act)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", act.Type, err)
	}
	return s.pipeline.Queue(ctx, &delivery{
		remote: s.remote,
		uid:    u.uid,
		inbox:  profile.Inbox,
		typ:    act.Type,
		id:     act.ID,
		body:   body,
	})
}

// encode marshals the activity, signed by u when it has a key.
func (s *ActivitySender) encode(u *localUser, act activity.Activity) ([]byte, error) {
	body, err := json.Marshal(&act)
	if err != nil || s.ld == nil || u.key == nil {
		return body, err
	}
	doc, err := jsonld.Decode(body)
	if err != nil {
		return nil, err
	}
	signed, err := s.ld.Sign(doc, u.meta.UserID, u.key)
	if err != nil {
		return nil, err
	}
	return json.Marshal(signed)
}

// delivery is one activity on its way to a remote inbox.
type delivery struct {
	remote *RemoteClient
	uid    int64
	inbox  string
	typ    string
	id     string
	body   []byte
}

func (d *delivery) String() string {
	return fmt.Sprintf("%s [%s] to %s", d.typ, d.id, d.inbox)
}

func (d *delivery) Prepare(ctx context.Context) (*http.Request, error) {
	return d.remote.newRequest(ctx, http.MethodPost, d.inbox, d.body, d.uid)
}

func (d *delivery) Receive(resp *http.Response) {
	telemetry.Debug("delivered %s: %d", d, resp.StatusCode)
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		telemetry.Increment("deliveries", 1)
	} else {
		telemetry.Increment("delivery_failures", 1)
	}
}
