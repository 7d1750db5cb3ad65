package jsonld

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/piprate/json-gold/ld"
)

// compactionContext maps the vocabularies we read onto short prefixes,
// so that every compacted document uses the same keys regardless of
// how the sender wrote its own @context.
var compactionContext = map[string]interface{}{
	"as":       "https://www.w3.org/ns/activitystreams#",
	"w3id":     "https://w3id.org/security#",
	"sec":      "https://w3id.org/security#",
	"ldp":      "http://www.w3.org/ns/ldp#",
	"vcard":    "http://www.w3.org/2006/vcard/ns#",
	"ostatus":  "http://ostatus.org#",
	"diaspora": "https://diasporafoundation.org/ns/",
	"dc":       "http://purl.org/dc/terms/",
	"toot":     "http://joinmastodon.org/ns#",
	"litepub":  "http://litepub.social/ns#",
	"sc":       "http://schema.org#",
	"pt":       "https://joinpeertube.org/ns#",
}

// Processor compacts and normalizes JSON-LD documents.
type Processor struct {
	proc   *ld.JsonLdProcessor
	loader ld.DocumentLoader
}

func NewProcessor(loader ld.DocumentLoader) *Processor {
	return &Processor{
		proc:   ld.NewJsonLdProcessor(),
		loader: loader,
	}
}

func (p *Processor) options() *ld.JsonLdOptions {
	opts := ld.NewJsonLdOptions("")
	opts.DocumentLoader = p.loader
	return opts
}

// Compact parses raw JSON and compacts it.
func (p *Processor) Compact(raw []byte) (Node, error) {
	doc, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return p.CompactDocument(doc)
}

// CompactDocument compacts an already decoded document.
func (p *Processor) CompactDocument(doc map[string]interface{}) (Node, error) {
	compacted, err := p.proc.Compact(doc, compactionContext, p.options())
	if err != nil {
		return nil, fmt.Errorf("compacting document: %w", err)
	}
	delete(compacted, "@context")
	return compacted, nil
}

// Normalize returns the URDNA2015 n-quads of a document, used for signatures.
func (p *Processor) Normalize(doc interface{}) (string, error) {
	opts := p.options()
	opts.Format = "application/n-quads"
	opts.Algorithm = "URDNA2015"
	normalized, err := p.proc.Normalize(doc, opts)
	if err != nil {
		return "", fmt.Errorf("normalizing document: %w", err)
	}
	s, ok := normalized.(string)
	if !ok {
		return "", fmt.Errorf("normalized document is %T, not a string", normalized)
	}
	return s, nil
}

// Decode parses a JSON object. Anything other than an object is an error.
func Decode(raw []byte) (map[string]interface{}, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("document is not a json object")
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling document: %w", err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("document is empty")
	}
	return doc, nil
}
