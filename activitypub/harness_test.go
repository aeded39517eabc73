package activitypub

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deemkeen/inboxd/broadcast"
	"github.com/deemkeen/inboxd/db"
	"github.com/deemkeen/inboxd/domain"
	"github.com/deemkeen/inboxd/util"
	"github.com/stretchr/testify/require"
)

const localHost = "inboxd.test"

var (
	keyOnce   sync.Once
	sharedKey *rsa.PrivateKey
	sharedPem string
)

// testKey returns one RSA key shared by all fake peers of the test run.
func testKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			panic(err)
		}
		sharedKey = key
		sharedPem = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	})
	return sharedKey, sharedPem
}

// peer is a fake remote instance serving ActivityPub documents.
type peer struct {
	t     *testing.T
	srv   *httptest.Server
	mu    sync.Mutex
	docs  map[string][]byte
	hits  map[string]int
	delay time.Duration
	seq   atomic.Int64
}

func newPeer(t *testing.T) *peer {
	t.Helper()
	p := &peer{t: t, docs: make(map[string][]byte), hits: make(map[string]int)}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.hits[r.URL.Path]++
		doc, ok := p.docs[r.URL.Path]
		delay := p.delay
		p.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", ContentType)
		w.Write(doc)
	}))
	t.Cleanup(p.srv.Close)
	return p
}

// slowDown delays every later response by d.
func (p *peer) slowDown(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

func (p *peer) url(path string) string {
	return p.srv.URL + path
}

func (p *peer) put(path string, doc map[string]any) string {
	p.t.Helper()
	if _, ok := doc["id"]; !ok {
		doc["id"] = p.url(path)
	}
	data, err := json.Marshal(doc)
	require.NoError(p.t, err)
	p.mu.Lock()
	p.docs[path] = data
	p.mu.Unlock()
	return doc["id"].(string)
}

func (p *peer) remove(path string) {
	p.mu.Lock()
	delete(p.docs, path)
	p.mu.Unlock()
}

func (p *peer) hitsFor(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

func (p *peer) totalHits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, h := range p.hits {
		n += h
	}
	return n
}

func (p *peer) actorDoc(typ, path, name string) map[string]any {
	_, pubPem := testKey(p.t)
	id := p.url(path)
	return map[string]any{
		"@context":          "https://www.w3.org/ns/activitystreams",
		"type":              typ,
		"preferredUsername": name,
		"name":              strings.ToUpper(name),
		"inbox":             id + "/inbox",
		"followers":         id + "/followers",
		"publicKey": map[string]any{
			"id":           id + "#main-key",
			"owner":        id,
			"publicKeyPem": pubPem,
		},
	}
}

func (p *peer) person(name string) string {
	return p.put("/u/"+name, p.actorDoc("Person", "/u/"+name, name))
}

func (p *peer) group(name string) string {
	return p.put("/c/"+name, p.actorDoc("Group", "/c/"+name, name))
}

func (p *peer) pageDoc(creator, community, title string) map[string]any {
	return map[string]any{
		"type":         "Page",
		"name":         title,
		"content":      "<p>" + title + "</p>",
		"attributedTo": creator,
		"audience":     community,
		"to":           []string{community, PublicCollection},
		"published":    time.Now().UTC().Format(time.RFC3339),
	}
}

func (p *peer) page(path, creator, community, title string) string {
	return p.put(path, p.pageDoc(creator, community, title))
}

func (p *peer) noteDoc(creator, inReplyTo, content string) map[string]any {
	return map[string]any{
		"type":         "Note",
		"content":      content,
		"attributedTo": creator,
		"inReplyTo":    inReplyTo,
		"to":           []string{PublicCollection},
		"published":    time.Now().UTC().Format(time.RFC3339),
	}
}

func (p *peer) note(path, creator, inReplyTo, content string) string {
	return p.put(path, p.noteDoc(creator, inReplyTo, content))
}

// activity builds an activity with a fresh id on this peer.
func (p *peer) activity(typ, actor string, object any) map[string]any {
	return map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       p.url(fmt.Sprintf("/activities/%s/%d", strings.ToLower(typ), p.seq.Add(1))),
		"type":     typ,
		"actor":    actor,
		"object":   object,
		"to":       []string{PublicCollection},
	}
}

func embed(doc map[string]any, id string) map[string]any {
	out := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["id"] = id
	return out
}

type testEnv struct {
	conf       *util.AppConfig
	db         *db.DB
	hub        *broadcast.Hub
	events     *broadcast.Subscription
	resolver   *Resolver
	dispatcher *Dispatcher
	peer       *peer
}

func testConfig() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.Host = "127.0.0.1"
	conf.Conf.HttpPort = 9999
	conf.Conf.SslDomain = localHost
	conf.Federation.Enabled = true
	conf.Federation.FetchLimit = 25
	conf.Federation.FetchTimeout = 5 * time.Second
	conf.Federation.MaxFetchBytes = 1 << 20
	conf.Federation.AllowHttp = true
	conf.Federation.EnableDownvotes = true
	conf.Federation.ActorRefreshInterval = 24 * time.Hour
	conf.Federation.SignatureMaxSkew = time.Hour
	conf.Federation.ProcessTimeout = 10 * time.Second
	return conf
}

func newTestEnv(t *testing.T, configure ...func(*util.AppConfig)) *testEnv {
	t.Helper()
	conf := testConfig()
	for _, f := range configure {
		f(conf)
	}

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.RunMigrations(context.Background()))

	hub := broadcast.NewHub(64)
	t.Cleanup(hub.Close)

	policy := NewInstancePolicy(conf)
	fetcher := NewHTTPFetcher(conf.Federation.FetchTimeout, "inboxd-test", conf.Federation.MaxFetchBytes)
	resolver := NewResolver(database, fetcher, policy, conf.Federation.ActorRefreshInterval)
	verifier := NewVerifier(resolver, policy, NewHTTPSignatureVerifier(conf.Federation.SignatureMaxSkew))

	return &testEnv{
		conf:       conf,
		db:         database,
		hub:        hub,
		events:     hub.Subscribe(),
		resolver:   resolver,
		dispatcher: NewDispatcher(database, resolver, verifier, hub, OptionsFromConfig(conf)),
		peer:       newPeer(t),
	}
}

// signedRequest builds an inbox POST signed with the key of actorID.
func signedRequest(t *testing.T, body []byte, actorID string) *http.Request {
	t.Helper()
	key, _ := testKey(t)
	req := httptest.NewRequest(http.MethodPost, "https://"+localHost+"/inbox", bytes.NewReader(body))
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.Host)
	require.NoError(t, SignRequest(req, body, key, actorID+"#main-key"))
	return req
}

func (e *testEnv) deliver(t *testing.T, act map[string]any) (*Outcome, error) {
	t.Helper()
	body, err := json.Marshal(act)
	require.NoError(t, err)
	return e.dispatcher.Receive(context.Background(), body, signedRequest(t, body, act["actor"].(string)))
}

// nextEvent waits briefly for a published event.
func (e *testEnv) nextEvent(t *testing.T) domain.Event {
	t.Helper()
	select {
	case evt := <-e.events.C:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("expected an event")
	}
	return domain.Event{}
}

func (e *testEnv) noEvent(t *testing.T) {
	t.Helper()
	select {
	case evt := <-e.events.C:
		t.Fatalf("unexpected event %s %s #%d", evt.Operation, evt.EntityKind, evt.LocalId)
	default:
	}
}

func (e *testEnv) localCommunity(t *testing.T, name string, manual bool) *domain.Community {
	t.Helper()
	_, pubPem := testKey(t)
	c, _, err := e.db.CreateCommunity(context.Background(), &domain.CommunityForm{
		ApId:                      "https://" + localHost + "/c/" + name,
		Name:                      name,
		Title:                     name,
		InboxURL:                  "https://" + localHost + "/c/" + name + "/inbox",
		PublicKey:                 pubPem,
		Local:                     true,
		ManuallyApprovesFollowers: manual,
		Published:                 time.Now(),
	})
	require.NoError(t, err)
	return c
}

func (e *testEnv) localPerson(t *testing.T, name string) *domain.Person {
	t.Helper()
	_, pubPem := testKey(t)
	p, _, err := e.db.CreatePerson(context.Background(), &domain.PersonForm{
		ApId:      "https://" + localHost + "/u/" + name,
		Name:      name,
		InboxURL:  "https://" + localHost + "/u/" + name + "/inbox",
		PublicKey: pubPem,
		Local:     true,
		Published: time.Now(),
	})
	require.NoError(t, err)
	return p
}

// seedPost stores a post by creator in community on the peer and mirrors it
// locally.
func (e *testEnv) seedPost(t *testing.T, path, creator, community string) *domain.Post {
	t.Helper()
	id := e.peer.page(path, creator, community, "seeded "+path)
	post, err := e.resolver.ResolvePost(context.Background(), id, NewBudget(10))
	require.NoError(t, err)
	return post
}
