package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

const userAgent = "inboxlace (+https://github.com/tkrehbiel/inboxlace)"

// RemoteClient makes signed requests to other servers on behalf of local accounts.
type RemoteClient struct {
	client  *http.Client
	users   localUsers
	maxBody int64
}

func NewRemoteClient(client *http.Client, users localUsers, maxBody int64) *RemoteClient {
	return &RemoteClient{client: client, users: users, maxBody: maxBody}
}

// newRequest creates a request signed as uid. A nil body makes a GET-style request.
func (c *RemoteClient) newRequest(ctx context.Context, method, target string, body []byte, uid int64) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	r, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Host", r.URL.Host)
	r.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	r.Header.Set("User-Agent", userAgent)
	r.Header.Set("Accept", activity.ContentType+", "+activity.LDJSON)
	if body != nil {
		r.Header.Set("Content-Type", activity.ContentType)
	}
	if u := c.users.signer(uid); u != nil {
		if err := sign(u.key, u.keyID(), r); err != nil {
			return nil, fmt.Errorf("signing request to [%s]: %w", target, err)
		}
	}
	return r, nil
}

// Fetch implements receiver.ContentFetcher with a signed GET.
func (c *RemoteClient) Fetch(ctx context.Context, id string, uid int64) ([]byte, error) {
	r, err := c.newRequest(ctx, http.MethodGet, id, nil, uid)
	if err != nil {
		return nil, err
	}
	telemetry.Increment("remote_fetches", 1)
	resp, err := c.client.Do(r)
	if err != nil {
		return nil, fmt.Errorf("fetching [%s]: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching [%s]: %s", id, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading [%s]: %w", id, err)
	}
	return b, nil
}
