package receiver

import (
	"context"

	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/jsonld"
)

// Normalizer turns compacted objects into canonical Objects.
type Normalizer struct {
	resolver *Resolver
	switcher *Switcher
}

func NewNormalizer(resolver *Resolver, switcher *Switcher) *Normalizer {
	return &Normalizer{resolver: resolver, switcher: switcher}
}

// Normalize reads every field of a content object and resolves
// its receivers. Objects without an id are invalid.
func (n *Normalizer) Normalize(ctx context.Context, node jsonld.Node) (*Object, error) {
	o, err := readObject(node)
	if err != nil {
		return nil, err
	}
	o.Receivers = n.resolver.Resolve(ctx, node, o.Actor, o.Tags)
	if n.switcher != nil {
		n.switcher.SwitchContacts(ctx, o.Receivers, o.Actor)
	}
	return o, nil
}

// readObject extracts the fields of node without resolving receivers.
func readObject(node jsonld.Node) (*Object, error) {
	id := jsonld.FetchString(node, jsonld.IDKey)
	if id == "" {
		return nil, ErrInvalidObject
	}

	o := &Object{
		ID:         id,
		ObjectType: activity.TypeName(jsonld.FetchString(node, jsonld.TypeKey)),
		ReplyToID:  jsonld.FetchElement(node, "as:inReplyTo"),
		Published:  jsonld.FetchValue(node, "as:published"),
		Updated:    jsonld.FetchValue(node, "as:updated"),
	}
	if o.ReplyToID == "" {
		o.ReplyToID = o.ID
	}
	if o.Updated == "" {
		o.Updated = o.Published
	}
	if o.Published == "" {
		o.Published = o.Updated
	}

	o.Actor = jsonld.FetchElement(node, "as:attributedTo")
	if o.Actor == "" {
		o.Actor = jsonld.FetchElement(node, "as:actor")
	}
	o.Author = o.Actor

	o.DiasporaGUID = jsonld.FetchString(node, "diaspora:guid")
	o.DiasporaComment = jsonld.FetchString(node, "diaspora:comment")
	o.DiasporaLike = jsonld.FetchString(node, "diaspora:like")
	o.Context = jsonld.FetchElement(node, "as:context")
	o.Conversation = jsonld.FetchString(node, "ostatus:conversation")
	o.Sensitive = jsonld.FetchBool(node, "as:sensitive")
	o.Name = jsonld.FetchString(node, "as:name")
	o.Summary = jsonld.FetchString(node, "as:summary")
	o.Content = jsonld.FetchString(node, "as:content")
	if src := jsonld.FetchNode(node, "as:source"); src != nil {
		o.Source = Source{
			Content:   jsonld.FetchString(src, "as:content"),
			MediaType: jsonld.FetchString(src, "as:mediaType"),
		}
	}
	o.StartTime = jsonld.FetchValue(node, "as:startTime")
	o.EndTime = jsonld.FetchValue(node, "as:endTime")

	place := activity.Compact(activity.PlaceType)
	o.Location = jsonld.FetchTypedElement(node, "as:location", "as:name", jsonld.TypeKey, place)
	o.Latitude = jsonld.FetchTypedElement(node, "as:location", "as:latitude", jsonld.TypeKey, place)
	o.Longitude = jsonld.FetchTypedElement(node, "as:location", "as:longitude", jsonld.TypeKey, place)

	o.Attachments = attachments(node)
	o.Tags = tags(node)
	o.Emojis = emojis(node)
	o.Generator = jsonld.FetchTypedElement(node, "as:generator", "as:name", jsonld.TypeKey, activity.Compact(activity.ApplicationType))
	o.AlternateURL = alternateURL(node)
	return o, nil
}

// alternateURL reads as:url, which some servers send as a Link with an href.
func alternateURL(node jsonld.Node) string {
	if url := jsonld.FetchElement(node, "as:url"); url != "" {
		return url
	}
	return jsonld.FetchElement(jsonld.FetchNode(node, "as:url"), "as:href")
}

func tags(node jsonld.Node) []Tag {
	var list []Tag
	for _, t := range jsonld.FetchNodes(node, "as:tag") {
		tag := Tag{
			Type: activity.TypeName(jsonld.FetchString(t, jsonld.TypeKey)),
			Href: jsonld.FetchElement(t, "as:href"),
			Name: jsonld.FetchString(t, "as:name"),
		}
		if tag.Type == "" {
			continue
		}
		list = append(list, tag)
	}
	return list
}

func emojis(node jsonld.Node) []Emoji {
	var list []Emoji
	for _, t := range jsonld.FetchNodes(node, "as:tag") {
		if jsonld.FetchString(t, jsonld.TypeKey) != activity.EmojiType {
			continue
		}
		icon := jsonld.FetchNode(t, "as:icon")
		if icon == nil {
			continue
		}
		list = append(list, Emoji{
			Name: jsonld.FetchString(t, "as:name"),
			Href: jsonld.FetchElement(icon, "as:url"),
		})
	}
	return list
}

func attachments(node jsonld.Node) []Attachment {
	var list []Attachment
	for _, a := range jsonld.FetchNodes(node, "as:attachment") {
		list = append(list, Attachment{
			Type:      activity.TypeName(jsonld.FetchString(a, jsonld.TypeKey)),
			MediaType: jsonld.FetchString(a, "as:mediaType"),
			Name:      jsonld.FetchString(a, "as:name"),
			URL:       jsonld.FetchElement(a, "as:url"),
		})
	}
	return list
}
