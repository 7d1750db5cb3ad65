package receiver

import (
	"context"
	"fmt"

	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

// Switcher upgrades contacts known over the legacy OStatus transport to ActivityPub.
type Switcher struct {
	profiles ActorProfiles
	contacts ContactStore
	sender   OutboundSender
}

func NewSwitcher(profiles ActorProfiles, contacts ContactStore, sender OutboundSender) *Switcher {
	return &Switcher{profiles: profiles, contacts: contacts, sender: sender}
}

// SwitchContacts switches every legacy contact of actor held by one of the receivers.
func (s *Switcher) SwitchContacts(ctx context.Context, receivers ReceiverSet, actor string) {
	if actor == "" {
		return
	}
	nurl := NormaliseLink(actor)
	for _, uid := range receivers.UIDs() {
		queries := []ContactQuery{
			{UIDs: []int64{uid}, Networks: []string{NetworkOStatus}, NURL: nurl},
			{UIDs: []int64{uid}, Networks: []string{NetworkOStatus}, Aliases: []string{nurl, actor}},
		}
		for _, q := range queries {
			contacts, err := s.contacts.FindContacts(ctx, q)
			if err != nil {
				telemetry.Error(err, "looking up legacy contacts of [%s] for uid %d", actor, uid)
				continue
			}
			if len(contacts) == 0 {
				continue
			}
			if err := s.SwitchContact(ctx, contacts[0].ID, uid, actor); err != nil {
				telemetry.Error(err, "switching contact %d", contacts[0].ID)
			}
		}
	}
}

// SwitchContact fetches the profile at url and, if it speaks ActivityPub, moves the contact over.
// Contacts we share with get a fresh Follow so the relationship exists on the new transport.
func (s *Switcher) SwitchContact(ctx context.Context, contactID, uid int64, url string) error {
	profile, err := s.profiles.Refresh(ctx, url)
	if err != nil {
		telemetry.Debug("probing [%s]: %v", url, err)
		return nil
	}
	if profile == nil {
		return nil
	}

	telemetry.Log("switch contact %d (%s) for user %d to ActivityPub", contactID, profile.URL, uid)
	telemetry.Increment("contact_switches", 1)

	if err := s.contacts.SwitchProtocol(ctx, contactID, *profile); err != nil {
		return fmt.Errorf("updating contact %d: %w", contactID, err)
	}
	if err := s.contacts.UpdateAvatar(ctx, contactID, uid, profile.Photo); err != nil {
		telemetry.Error(err, "updating avatar of contact %d", contactID)
	}

	if uid == 0 {
		return nil
	}
	contact, err := s.contacts.Contact(ctx, contactID)
	if err != nil {
		return fmt.Errorf("reading contact %d: %w", contactID, err)
	}
	if contact == nil || (contact.Rel != RelSharing && contact.Rel != RelFriend) {
		return nil
	}
	if err := s.sender.SendActivity(ctx, activity.FollowType, profile.URL, uid); err != nil {
		return fmt.Errorf("sending follow to %s: %w", profile.URL, err)
	}
	telemetry.Debug("sent a new follow request to [%s] for user %d", profile.URL, uid)
	return nil
}
