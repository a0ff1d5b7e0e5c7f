package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mfromawe/hyperhash/internal/generator"
	"github.com/mfromawe/hyperhash/internal/httpapi"
	"github.com/mfromawe/hyperhash/internal/storage"
	"github.com/mfromawe/hyperhash/pkg/billing"
	"github.com/mfromawe/hyperhash/pkg/plan"
	"github.com/mfromawe/hyperhash/pkg/ratelimit"
	"github.com/mfromawe/hyperhash/pkg/subscription"
	"github.com/mfromawe/hyperhash/pkg/token"
	"github.com/mfromawe/hyperhash/pkg/usage"
)

// memUserStore is an in-memory httpapi.UserStore for handler tests.
type memUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]storage.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[uuid.UUID]storage.User)}
}

func (s *memUserStore) Create(_ context.Context, user *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return storage.ErrEmailTaken
		}
	}
	s.users[user.ID] = *user
	return nil
}

func (s *memUserStore) GetByID(_ context.Context, id uuid.UUID) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return &u, nil
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (s *memUserStore) SetEmailVerified(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storage.ErrUserNotFound
	}
	u.EmailVerified = true
	s.users[id] = u
	return nil
}

// fakeMailer records verification sends and signals through a channel so
// tests can wait for the async delivery.
type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	done chan struct{}
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{done: make(chan struct{}, 8)}
}

func (m *fakeMailer) SendVerification(_ context.Context, to, _ string) error {
	m.mu.Lock()
	m.sent = append(m.sent, to)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func (m *fakeMailer) wait(t *testing.T) {
	t.Helper()
	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("verification email was not sent")
	}
}

// fakeAdapter implements billing.Adapter with canned results.
type fakeAdapter struct {
	provider billing.Provider
	events   []billing.Event
	err      error
}

func (f *fakeAdapter) Provider() billing.Provider { return f.provider }

func (f *fakeAdapter) Parse(context.Context, []byte, http.Header) ([]billing.Event, error) {
	return f.events, f.err
}

type fixture struct {
	api     *httpapi.API
	router  http.Handler
	tokens  *token.Service
	users   *memUserStore
	subs    *subscription.MemoryStore
	usage   *usage.Service
	mailer  *fakeMailer
	adapter *fakeAdapter
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	generateLimit int
	adapter       *fakeAdapter
}

func withGenerateLimit(n int) fixtureOption {
	return func(c *fixtureConfig) { c.generateLimit = n }
}

func withAdapter(a *fakeAdapter) fixtureOption {
	return func(c *fixtureConfig) { c.adapter = a }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	fc := &fixtureConfig{generateLimit: 100}
	for _, opt := range opts {
		opt(fc)
	}

	log := slog.New(slog.DiscardHandler)

	tokens, err := token.New([]byte("test-signing-key-32-bytes-long!!"), time.Hour)
	require.NoError(t, err)

	plans, err := plan.NewRegistry(context.Background(), plan.DefaultSource())
	require.NoError(t, err)

	users := newMemUserStore()
	subs := subscription.NewMemoryStore()
	usageSvc := usage.NewService(usage.NewMemoryStore(), subs, plans, log)
	recon := subscription.NewReconciler(subs, plans, log)
	mail := newFakeMailer()

	adapter := fc.adapter
	if adapter == nil {
		adapter = &fakeAdapter{provider: billing.ProviderStripe}
	}
	adapters := []billing.Adapter{adapter}
	if adapter.provider != billing.ProviderPayTR {
		adapters = append(adapters, &fakeAdapter{provider: billing.ProviderPayTR})
	}

	api := httpapi.New(httpapi.Config{}, log, tokens, users, subs, plans,
		usageSvc, recon, adapters, mail, generator.New())

	genStore := ratelimit.NewMemoryStore()
	t.Cleanup(genStore.Close)
	genLimiter, err := ratelimit.NewFixedWindow(genStore, fc.generateLimit, time.Minute)
	require.NoError(t, err)

	return &fixture{
		api:     api,
		router:  api.Router(nil, nil, genLimiter),
		tokens:  tokens,
		users:   users,
		subs:    subs,
		usage:   usageSvc,
		mailer:  mail,
		adapter: adapter,
	}
}

// register creates an account through the API and returns the user id and
// session cookie.
func (f *fixture) register(t *testing.T, email string) (uuid.UUID, *http.Cookie) {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/auth/register",
		map[string]string{"email": email, "password": "hunter2hunter2"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	userID, err := uuid.Parse(resp.ID)
	require.NoError(t, err)

	cookie := sessionCookie(t, rec)
	f.mailer.wait(t)
	return userID, cookie
}

func (f *fixture) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(method, path, reader)
	r.RemoteAddr = "203.0.113.50:40000"
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		r.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == token.CookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}
