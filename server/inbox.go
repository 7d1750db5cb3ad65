package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/receiver"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

// inboxProcessor handles a delivered message.
type inboxProcessor interface {
	ProcessInbox(ctx context.Context, msg receiver.InboundMessage) (receiver.Result, error)
}

// ActivityInbox is the http side of an inbox. uid 0 is the shared inbox.
type ActivityInbox struct {
	id        string
	uid       int64
	processor inboxProcessor
	maxBody   int64
}

// GetHTTP handles GET requests to the inbox. Its contents are never listed.
func (ai *ActivityInbox) GetHTTP(w http.ResponseWriter, r *http.Request) {
	telemetry.Request(r, "ActivityInbox.GetHTTP [%s]", ai.id)
	telemetry.Increment("get_requests", 1)
	collection := activity.OrderedCollection{
		Context:      activity.Context,
		Type:         activity.OrderedCollectionType,
		ID:           ai.id,
		OrderedItems: make([]interface{}, 0),
	}
	jsonBytes, err := json.Marshal(&collection)
	if err != nil {
		telemetry.Error(err, "marshaling collection")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", activity.ContentTypeLD)
	w.Write(jsonBytes)
}

// PostHTTP handles deliveries from remote federated servers.
// The sender only learns whether we could read the message: whatever
// processing decides is logged but always answered with 202 Accepted.
func (ai *ActivityInbox) PostHTTP(w http.ResponseWriter, r *http.Request) {
	telemetry.Increment("post_requests", 1)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, ai.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			telemetry.Debug("body over %d bytes posted to [%s]", ai.maxBody, ai.id)
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		telemetry.Error(err, "reading body bytes")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	telemetry.Trace("inbox [%s] received %s", ai.id, string(body))

	msg := receiver.InboundMessage{
		Method: r.Method,
		Target: r.URL.RequestURI(),
		Host:   r.Host,
		Header: r.Header.Clone(),
		Body:   body,
		UID:    ai.uid,
	}
	// Processing continues even if the sender hangs up.
	result, err := ai.processor.ProcessInbox(context.WithoutCancel(r.Context()), msg)
	if err != nil {
		telemetry.Debug("inbox [%s] message %s: %v", ai.id, result, err)
	}
	telemetry.Increment("inbox_"+result.String(), 1)
	w.WriteHeader(http.StatusAccepted)
}
