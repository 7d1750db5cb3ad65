package receiver

import (
	"context"

	"github.com/tkrehbiel/inboxlace/server/activity"
)

type handler func(ctx context.Context, p Processor, a *Activity, body []byte) error

// route sends activities of one verb to a processor action.
// Routes are tried in order, the first match wins.
type route struct {
	verb   string
	match  func(a *Activity) bool
	name   string
	handle handler
}

func objectIs(t string) func(*Activity) bool {
	return func(a *Activity) bool { return a.ObjectType == t }
}

func objectIn(check func(string) bool) func(*Activity) bool {
	return func(a *Activity) bool { return check(a.ObjectType) }
}

// likes carry no object type since the object isn't fetched
func objectBlankOr(check func(string) bool) func(*Activity) bool {
	return func(a *Activity) bool { return a.ObjectType == "" || check(a.ObjectType) }
}

func undoOf(check func(string) bool, inner func(string) bool) func(*Activity) bool {
	return func(a *Activity) bool { return check(a.ObjectType) && inner(a.ObjectObjectType) }
}

func is(t string) func(string) bool {
	return func(s string) bool { return s == t }
}

func createActivity(verb string) handler {
	return func(ctx context.Context, p Processor, a *Activity, _ []byte) error {
		return p.CreateActivity(ctx, a, verb)
	}
}

var routes = []route{
	{activity.CreateType, objectIn(activity.IsContentType), "create item", func(ctx context.Context, p Processor, a *Activity, _ []byte) error {
		return p.CreateItem(ctx, a)
	}},
	{activity.AnnounceType, objectIn(activity.IsContentType), "create item", func(ctx context.Context, p Processor, a *Activity, _ []byte) error {
		return p.CreateItem(ctx, a)
	}},
	{activity.LikeType, objectBlankOr(activity.IsContentType), "create like", createActivity(VerbLike)},
	{activity.DislikeType, objectBlankOr(activity.IsContentType), "create dislike", createActivity(VerbDislike)},
	{activity.TentativeAcceptType, objectIn(activity.IsContentType), "create attend maybe", createActivity(VerbAttendMaybe)},
	{activity.UpdateType, objectIn(activity.IsContentType), "update item", func(ctx context.Context, p Processor, a *Activity, _ []byte) error {
		return p.UpdateItem(ctx, a)
	}},
	{activity.UpdateType, objectIn(activity.IsAccountType), "update person", func(ctx context.Context, p Processor, a *Activity, body []byte) error {
		return p.UpdatePerson(ctx, a, body)
	}},
	{activity.DeleteType, objectIs(activity.TombstoneType), "delete item", func(ctx context.Context, p Processor, a *Activity, body []byte) error {
		return p.DeleteItem(ctx, a, body)
	}},
	{activity.DeleteType, objectIn(activity.IsAccountType), "delete person", func(ctx context.Context, p Processor, a *Activity, body []byte) error {
		return p.DeletePerson(ctx, a, body)
	}},
	{activity.FollowType, objectIn(activity.IsAccountType), "follow user", func(ctx context.Context, p Processor, a *Activity, _ []byte) error {
		return p.FollowUser(ctx, a)
	}},
	{activity.AcceptType, objectIs(activity.FollowType), "accept follow", func(ctx context.Context, p Processor, a *Activity, _ []byte) error {
		return p.AcceptFollowUser(ctx, a)
	}},
	{activity.AcceptType, objectIn(activity.IsContentType), "create attend", createActivity(VerbAttend)},
	{activity.RejectType, objectIs(activity.FollowType), "reject follow", func(ctx context.Context, p Processor, a *Activity, _ []byte) error {
		return p.RejectFollowUser(ctx, a)
	}},
	{activity.RejectType, objectIn(activity.IsContentType), "create attend no", createActivity(VerbAttendNo)},
	{activity.UndoType, undoOf(is(activity.FollowType), activity.IsAccountType), "undo follow", func(ctx context.Context, p Processor, a *Activity, _ []byte) error {
		return p.UndoFollowUser(ctx, a)
	}},
	// Undoing an Accept of a Follow rejects the follow
	{activity.UndoType, undoOf(is(activity.AcceptType), activity.IsAccountType), "reject follow", func(ctx context.Context, p Processor, a *Activity, _ []byte) error {
		return p.RejectFollowUser(ctx, a)
	}},
	{activity.UndoType, undoOf(activity.IsActivityType, activity.IsContentType), "undo activity", func(ctx context.Context, p Processor, a *Activity, _ []byte) error {
		return p.UndoActivity(ctx, a)
	}},
}

// findRoute returns the action for an activity, or nil when none applies.
func findRoute(a *Activity) *route {
	for i := range routes {
		r := &routes[i]
		if r.verb == a.Type && r.match(a) {
			return r
		}
	}
	return nil
}
