package jsonld

import (
	"bytes"
	"embed"
	"fmt"
	"net/http"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/piprate/json-gold/ld"
	"github.com/tkrehbiel/inboxlace/server/activity"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

//go:embed contexts/*.jsonld
var contextFiles embed.FS

// Well known contexts are served from embedded copies, nearly every
// inbound activity references them.
var embeddedContexts = map[string]string{
	activity.Context:         "contexts/activitystreams.jsonld",
	activity.SecurityContext: "contexts/security-v1.jsonld",
	activity.IdentityContext: "contexts/identity-v1.jsonld",
}

// Loader resolves remote @context documents for the json-ld processor.
// Embedded and preloaded documents never expire, anything else
// is fetched over http and cached for ttl.
type Loader struct {
	fixed  map[string]*ld.RemoteDocument
	cache  *ccache.Cache[*ld.RemoteDocument]
	ttl    time.Duration
	remote ld.DocumentLoader
}

// NewLoader creates a document loader. A nil client disables remote fetches.
func NewLoader(client *http.Client, ttl time.Duration) (*Loader, error) {
	l := &Loader{
		fixed: make(map[string]*ld.RemoteDocument),
		cache: ccache.New(ccache.Configure[*ld.RemoteDocument]().MaxSize(500)),
		ttl:   ttl,
	}
	if client != nil {
		l.remote = ld.NewDefaultDocumentLoader(client)
	}
	for u, name := range embeddedContexts {
		b, err := contextFiles.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading embedded context %s: %w", name, err)
		}
		if err := l.PreloadBytes(u, b); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Preload makes doc the permanent answer for url.
func (l *Loader) Preload(url string, doc interface{}) {
	l.fixed[url] = &ld.RemoteDocument{DocumentURL: url, Document: doc}
}

// PreloadBytes parses b as json and preloads it for url.
func (l *Loader) PreloadBytes(url string, b []byte) error {
	doc, err := ld.DocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("parsing context %s: %w", url, err)
	}
	l.Preload(url, doc)
	return nil
}

// LoadDocument implements ld.DocumentLoader.
func (l *Loader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	if doc, ok := l.fixed[u]; ok {
		return doc, nil
	}
	if item := l.cache.Get(u); item != nil && !item.Expired() {
		telemetry.Increment("context_cache_hits", 1)
		return item.Value(), nil
	}
	if l.remote == nil {
		return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, fmt.Sprintf("no loader for %s", u))
	}
	telemetry.Increment("context_fetches", 1)
	doc, err := l.remote.LoadDocument(u)
	if err != nil {
		telemetry.Debug("loading context [%s]: %v", u, err)
		return nil, err
	}
	l.cache.Set(u, doc, l.ttl)
	return doc, nil
}
