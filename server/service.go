package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tkrehbiel/inboxlace/server/jsonld"
	"github.com/tkrehbiel/inboxlace/server/page"
	"github.com/tkrehbiel/inboxlace/server/processor"
	"github.com/tkrehbiel/inboxlace/server/receiver"
	"github.com/tkrehbiel/inboxlace/server/storage"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
)

const pipelineSize = 100

type ActivityService struct {
	Config   Config
	Server   http.Server
	router   *mux.Router
	meta     page.MetaData
	users    localUsers
	store    storage.Database
	pipeline *OutputPipeline
	receiver *receiver.Receiver
	stop     context.CancelFunc
}

func (s *ActivityService) addHandlers() error {
	s.router.HandleFunc("/", homeHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	finger := page.NewWebFinger(s.meta)
	for _, user := range s.users {
		if err := finger.Add(user.meta); err != nil {
			return fmt.Errorf("webfinger for [%s]: %w", user.name, err)
		}
	}
	s.addPageHandler(finger, s.meta)

	shared := &ActivityInbox{
		id:        s.meta.SharedInboxURL(),
		processor: s.receiver,
		maxBody:   s.Config.Server.maxBodyBytes(),
	}
	s.addInbox("/inbox", shared)

	for _, user := range s.users {
		pg := page.ActorEndpoint // copy
		pg.Path = fmt.Sprintf("/a/%s", user.name)
		s.addPageHandler(page.NewStaticPage(pg), user.meta)

		s.addInbox(fmt.Sprintf("/a/%s/inbox", user.name), &ActivityInbox{
			id:        user.meta.InboxURL(),
			uid:       user.uid,
			processor: s.receiver,
			maxBody:   s.Config.Server.maxBodyBytes(),
		})
	}
	return nil
}

func (s *ActivityService) addInbox(path string, inbox *ActivityInbox) {
	s.router.HandleFunc(path, RequestLogger{Handler: inbox.GetHTTP}.ServeHTTP).Methods("GET")
	s.router.HandleFunc(path, RequestLogger{Handler: inbox.PostHTTP}.ServeHTTP).Methods("POST")
}

func (s *ActivityService) addPageHandler(pg page.StaticPageHandler, meta any) {
	if err := pg.Init(meta); err != nil {
		telemetry.Error(err, "rendering page [%s]", pg.Path())
	}
	route := s.router.Handle(pg.Path(), pg).Methods("GET")
	if !s.Config.Server.AcceptAll {
		route.MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
			return pg.Match(r)
		})
	}
}

// Start the pipeline and the http listener in the background.
func (s *ActivityService) Start(ctx context.Context) {
	ctx, s.stop = context.WithCancel(ctx)
	go s.pipeline.Run(ctx)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error(err, "listener stopped")
		}
	}()
}

// Stop the listener, then everything behind it.
func (s *ActivityService) Stop(ctx context.Context) {
	if err := s.Server.Shutdown(ctx); err != nil {
		telemetry.Error(err, "shutting down listener")
	}
	if s.stop != nil {
		s.stop()
	}
	s.Close()
}

// Close anything related to the service before exiting
func (s *ActivityService) Close() {
	s.store.Close()
	telemetry.LogCounters()
	telemetry.Sync()
}

func (s *ActivityService) ListenAndServe() error {
	if s.Config.Server.useTLS() {
		telemetry.Log("tls listener starting on port %d", s.Config.Server.Port)
		return s.Server.ListenAndServeTLS(s.Config.Server.Certificate, s.Config.Server.PrivateKey)
	}
	telemetry.Log("http listener starting on port %d", s.Config.Server.Port)
	return s.Server.ListenAndServe()
}

// openStore opens the database and makes sure every local account has its self contact.
func openStore(ctx context.Context, cfg Config, users localUsers) (storage.Database, error) {
	store, err := storage.NewDatabase(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("opening database [%s]: %w", cfg.Database.DSN, err)
	}
	for _, user := range users {
		self, err := store.EnsureSelf(ctx, user.selfContact())
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("self contact of [%s]: %w", user.name, err)
		}
		telemetry.Debug("user %d [%s] is contact %d", user.uid, user.name, self.ID)
	}
	return store, nil
}

func serviceMetaData(cfg Config) (page.MetaData, error) {
	if err := cfg.Validate(); err != nil {
		return page.MetaData{}, err
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return page.MetaData{}, err
	}
	return page.NewMetaData(u), nil
}

// Migrate creates the database tables and the local accounts' self contacts.
func Migrate(ctx context.Context, cfg Config) error {
	meta, err := serviceMetaData(cfg)
	if err != nil {
		return err
	}
	users, err := newLocalUsers(cfg, meta)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg, users)
	if err != nil {
		return err
	}
	store.Close()
	return nil
}

// NewService creates an http service to listen for ActivityPub requests
func NewService(ctx context.Context, cfg Config) (*ActivityService, error) {
	if cfg.Server.LogLevel != "" {
		if err := telemetry.SetLevel(cfg.Server.LogLevel); err != nil {
			return nil, err
		}
	}
	meta, err := serviceMetaData(cfg)
	if err != nil {
		return nil, err
	}
	users, err := newLocalUsers(cfg, meta)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg, users)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cfg.Server.fetchTimeout()}
	loader, err := jsonld.NewLoader(client, cfg.Server.cacheTTL())
	if err != nil {
		store.Close()
		return nil, err
	}
	ldproc := jsonld.NewProcessor(loader)
	remote := NewRemoteClient(client, users, cfg.Server.maxBodyBytes())
	directory := NewActorDirectory(remote, store, cfg.Server.cacheTTL())
	pipeline := NewPipeline(client, pipelineSize)
	signatures := jsonld.NewSignatures(ldproc, directory)
	sender := NewActivitySender(users, directory, remote, pipeline, signatures)

	svc := &ActivityService{
		Config:   cfg,
		router:   mux.NewRouter(),
		meta:     meta,
		users:    users,
		store:    store,
		pipeline: pipeline,
		receiver: receiver.New(receiver.Dependencies{
			Verifier:      NewVerifier(directory, signatures),
			Compactor:     ldproc,
			Content:       remote,
			Profiles:      directory,
			Contacts:      store,
			Threads:       store,
			Conversations: store,
			Processor:     processor.New(store, directory, sender, processor.Options{AutoAccept: cfg.Server.AutoAccept}),
			Sender:        sender,
		}, cfg.Server.receiverOptions()),
	}

	if err := svc.addHandlers(); err != nil {
		store.Close()
		return nil, err
	}

	svc.Server = http.Server{
		Handler:      svc.router,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		WriteTimeout: time.Second * 60,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
	}
	return svc, nil
}

// RequestLogger traces the headers of a request before handling it.
type RequestLogger struct {
	Handler http.HandlerFunc
}

func (rl RequestLogger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	headers := make([]string, 0)
	for k, v := range r.Header {
		s := fmt.Sprintf("%s: %s", k, strings.Join(v, ", "))
		headers = append(headers, s)
	}
	telemetry.Request(r, "%s", r.RemoteAddr)
	telemetry.Trace(strings.Join(headers, " | "))
	rl.Handler(w, r)
}

func homeHandler(w http.ResponseWriter, r *http.Request) {
	telemetry.Request(r, "homeHandler")
	telemetry.Increment("home_requests", 1)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<html><title>inboxlace</title>
<body>
<p>This is <a href="https://github.com/tkrehbiel/inboxlace/">inboxlace</a>,
an ActivityPub inbox. There's nothing to see here.</p>
</body>
</html>`)
}
