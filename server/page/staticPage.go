package page

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"

	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

// StaticPage describes a json document rendered once from account metadata,
// like an actor document or a webfinger answer.
type StaticPage struct {
	Path        string                   // Server path to the page
	Accepts     func(*http.Request) bool // Requests the page answers, nil for any
	ContentType string                   // ContentType of the document
	Template    string                   // Golang template, quote strings with {{ json }}
}

// internalStaticPage is a StaticPage with its rendered document.
type internalStaticPage struct {
	source   StaticPage
	rendered []byte
}

// NewStaticPage turns a StaticPage configuration into a handler.
func NewStaticPage(page StaticPage) StaticPageHandler {
	return &internalStaticPage{
		source: page,
	}
}

// StaticPageHandler is an http.Handler for a document rendered up front.
type StaticPageHandler interface {
	http.Handler
	Init(any) error           // Render the document, must be called before serving
	Path() string             // Path at which the page should respond
	Match(*http.Request) bool // Whether the page answers this request
}

var templateFuncs = template.FuncMap{
	"json": jsonString,
}

// jsonString quotes s as a json string, display names and PEM keys
// carry quotes and newlines.
func jsonString(s string) (string, error) {
	b, err := json.Marshal(s)
	return string(b), err
}

func (s internalStaticPage) Path() string {
	return s.source.Path
}

func (s internalStaticPage) Match(r *http.Request) bool {
	return s.source.Accepts == nil || s.source.Accepts(r)
}

func (s *internalStaticPage) Init(meta any) error {
	s.rendered = nil
	t, err := template.New(s.source.Path).Funcs(templateFuncs).Parse(strings.TrimSpace(s.source.Template))
	if err != nil {
		return fmt.Errorf("parsing template of [%s]: %w", s.source.Path, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, meta); err != nil {
		return fmt.Errorf("rendering [%s]: %w", s.source.Path, err)
	}
	if !json.Valid(buf.Bytes()) {
		return fmt.Errorf("rendering [%s]: not a json document", s.source.Path)
	}
	s.rendered = buf.Bytes()
	return nil
}

// ServeHTTP serves the rendered document, or 500 when Init failed or never ran.
func (s internalStaticPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	telemetry.Request(r, "serving [%s]", s.source.Path)
	if s.rendered == nil {
		telemetry.Log("no rendered document for [%s]", s.source.Path)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if s.source.Accepts != nil {
		w.Header().Add("Vary", "Accept")
	}
	w.Header().Set("Content-Type", s.source.ContentType)
	w.Write(s.rendered)
}
