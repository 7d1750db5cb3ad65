package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

// OutputPipeline is an asychronous output pipeline for sending http requests.
// Requests are queued by handlers and sent one at a time by Run,
// so nothing waits on a remote server while answering a request.
type OutputPipeline struct {
	client   *http.Client
	pipeline chan OutboundRequest
}

// OutboundRequest builds a request when it's its turn and handles the response.
type OutboundRequest interface {
	fmt.Stringer
	Prepare(ctx context.Context) (*http.Request, error)
	Receive(resp *http.Response)
}

func NewPipeline(client *http.Client, size int) *OutputPipeline {
	return &OutputPipeline{
		client:   client,
		pipeline: make(chan OutboundRequest, size),
	}
}

// Queue adds a request to the pipeline, waiting while the pipeline is full.
func (p *OutputPipeline) Queue(ctx context.Context, req OutboundRequest) error {
	select {
	case p.pipeline <- req:
		telemetry.Trace("queued %s", req)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queueing %s: %w", req, ctx.Err())
	}
}

// SendAndWait sends a request right away.
func (p *OutputPipeline) SendAndWait(ctx context.Context, req OutboundRequest) error {
	r, err := req.Prepare(ctx)
	if err != nil {
		return fmt.Errorf("preparing %s: %w", req, err)
	}
	resp, err := p.client.Do(r)
	if err != nil {
		return fmt.Errorf("sending %s: %w", req, err)
	}
	defer resp.Body.Close()
	req.Receive(resp)
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Run waits for queued requests and sends them until ctx is done.
// Expected to be run in a goroutine.
func (p *OutputPipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-p.pipeline:
			if err := p.SendAndWait(ctx, req); err != nil {
				telemetry.Error(err, "pipeline")
				telemetry.Increment("pipeline_failures", 1)
			}
		}
	}
}
