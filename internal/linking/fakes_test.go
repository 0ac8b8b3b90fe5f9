package linking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/auth"
	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/patreon"
	"github.com/iliyamo/deckvault/internal/queue"
	"github.com/iliyamo/deckvault/internal/repository"
)

// memStore is an in-memory account and profile store with a unique email
// index, counting every call so tests can assert that nothing was touched.
type memStore struct {
	mu        sync.Mutex
	seq       int
	accounts  map[string]string // email -> id
	passwords map[string]string // id -> secret
	profiles  map[string]model.Profile
	calls     int

	createErr   error
	createEmpty bool
	lookupErr   error
	recoveryErr error
	roleErr     error
	upsertErr   error
	setPassErr  error
	signInErr   error
}

func newMemStore() *memStore {
	return &memStore{
		accounts:  map[string]string{},
		passwords: map[string]string{},
		profiles:  map[string]model.Profile{},
	}
}

func (m *memStore) Create(_ context.Context, email, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.createErr != nil {
		return "", m.createErr
	}
	if m.createEmpty {
		return "", nil
	}
	if _, ok := m.accounts[email]; ok {
		return "", repository.ErrEmailExists
	}
	m.seq++
	id := fmt.Sprintf("acc-%d", m.seq)
	m.accounts[email] = id
	return id, nil
}

func (m *memStore) GenerateRecoveryLink(_ context.Context, email string) (repository.RecoveryLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.recoveryErr != nil {
		return repository.RecoveryLink{}, m.recoveryErr
	}
	id, ok := m.accounts[email]
	if !ok {
		return repository.RecoveryLink{}, repository.ErrNotFound
	}
	return repository.RecoveryLink{AccountID: id, Token: "discarded"}, nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.lookupErr != nil {
		return model.Profile{}, m.lookupErr
	}
	for _, p := range m.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return model.Profile{}, repository.ErrNotFound
}

func (m *memStore) GetRole(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.roleErr != nil {
		return "", m.roleErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	return p.Role, nil
}

func (m *memStore) Upsert(_ context.Context, p model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for id, other := range m.profiles {
		if id != p.ID && p.ExternalID != "" && other.ExternalID == p.ExternalID {
			return fmt.Errorf("%w: duplicate external_id", repository.ErrConflict)
		}
	}
	if existing, ok := m.profiles[p.ID]; ok {
		p.Role = existing.Role
	}
	m.profiles[p.ID] = p
	return nil
}

func (m *memStore) SetPassword(_ context.Context, id, plain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.setPassErr != nil {
		return m.setPassErr
	}
	m.passwords[id] = plain
	return nil
}

func (m *memStore) SignInWithPassword(_ context.Context, email, plain string) (auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.signInErr != nil {
		return auth.Session{}, m.signInErr
	}
	id, ok := m.accounts[email]
	if !ok || m.passwords[id] != plain {
		return auth.Session{}, auth.ErrInvalidCredentials
	}
	return auth.Session{AccountID: id, AccessToken: "at-" + id, RefreshToken: "rt-" + id}, nil
}

func (m *memStore) profileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.profiles)
}

func (m *memStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeIdentity struct {
	membership  patreon.Membership
	exchangeErr error
	fetchErr    error
}

func (f *fakeIdentity) ExchangeCode(_ context.Context, code, _ string) (string, error) {
	if f.exchangeErr != nil {
		return "", f.exchangeErr
	}
	return "token-for-" + code, nil
}

func (f *fakeIdentity) FetchMembership(_ context.Context, _ string) (patreon.Membership, error) {
	if f.fetchErr != nil {
		return f.membership, f.fetchErr
	}
	return f.membership, nil
}

type recorded struct {
	logins []string
	syncs  []string
}

type fakeRecorder struct {
	mu sync.Mutex
	recorded
}

func (f *fakeRecorder) RecordLogin(tier, role string, isNew bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, fmt.Sprintf("%s/%s/%t", tier, role, isNew))
}

func (f *fakeRecorder) RecordSync(tier, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs = append(f.syncs, tier+"/"+status)
}

type fakePublisher struct {
	events chan queue.ProfileSynced
	err    error
}

func (f *fakePublisher) PublishProfileSynced(_ context.Context, ev queue.ProfileSynced) error {
	f.events <- ev
	return f.err
}

type harness struct {
	store    *memStore
	identity *fakeIdentity
	rec      *fakeRecorder
	pub      *fakePublisher
	linker   *Linker
}

func newHarness(t *testing.T, m patreon.Membership) *harness {
	t.Helper()
	log := zap.NewNop()
	h := &harness{
		store:    newMemStore(),
		identity: &fakeIdentity{membership: m},
		rec:      &fakeRecorder{},
		pub:      &fakePublisher{events: make(chan queue.ProfileSynced, 8)},
	}
	h.linker = NewLinker(
		h.identity,
		NewReconciler(h.store, h.store, log),
		NewProfileUpserter(h.store, log),
		NewSessionProvisioner(h.store, log),
		NewReporter(h.rec, h.pub, "https://deckvault.example", true, log),
		log,
	)
	return h
}

var errBoom = errors.New("boom")
