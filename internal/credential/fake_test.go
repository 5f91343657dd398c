package credential

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/toeirei/gitkeeper/internal/db"
	"github.com/toeirei/gitkeeper/internal/model"
	"github.com/toeirei/gitkeeper/internal/resync"
	"github.com/toeirei/gitkeeper/internal/sshkey"
)

// memState is the content of memDB.
type memState struct {
	owners map[int64]model.Owner
	creds  map[int64]model.CredentialState
	deps   []model.DeploymentCredential
	outbox []resync.Event
	audit  []string
	nextID int64
}

func (s memState) clone() memState {
	return memState{
		owners: maps.Clone(s.owners),
		creds:  maps.Clone(s.creds),
		deps:   slices.Clone(s.deps),
		outbox: slices.Clone(s.outbox),
		audit:  slices.Clone(s.audit),
		nextID: s.nextID,
	}
}

// memDB is an in-memory db.TxRunner. Each transaction works on a copy that
// replaces the state only when fn succeeds and commitErr is nil.
type memDB struct {
	mu        sync.Mutex
	state     memState
	commitErr error
}

func newMemDB() *memDB {
	return &memDB{state: memState{
		owners: map[int64]model.Owner{},
		creds:  map[int64]model.CredentialState{},
	}}
}

func (m *memDB) InTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(ctx, &memTx{st: &work}); err != nil {
		return err
	}
	if m.commitErr != nil {
		return m.commitErr
	}
	m.state = work
	return nil
}

func (m *memDB) addOwner(login string, admin bool) *model.Owner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextID++
	o := model.Owner{ID: m.state.nextID, Login: login, GitoliteIdentifier: login, Admin: admin}
	m.state.owners[o.ID] = o
	return &o
}

func (m *memDB) credential(id int64) (model.CredentialState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.creds[id]
	return c, ok
}

func (m *memDB) events() []resync.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.outbox)
}

func (m *memDB) auditLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.audit)
}

func (m *memDB) deployments() []model.DeploymentCredential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.deps)
}

type memTx struct {
	st *memState
}

func (t *memTx) Owner(_ context.Context, id int64) (model.Owner, error) {
	o, ok := t.st.owners[id]
	if !ok {
		return model.Owner{}, db.ErrNotFound
	}
	return o, nil
}

func (t *memTx) Credential(_ context.Context, id int64) (model.Credential, error) {
	c, ok := t.st.creds[id]
	if !ok {
		return model.Credential{}, db.ErrNotFound
	}
	return model.RestoreCredential(c), nil
}

func (t *memTx) ActiveCredentialByPayload(_ context.Context, payloadHash string, excludeID int64) (model.Credential, error) {
	for _, id := range slices.Sorted(maps.Keys(t.st.creds)) {
		c := t.st.creds[id]
		if !c.Active || c.ID == excludeID {
			continue
		}
		if p, err := sshkey.Payload(c.KeyMaterial); err == nil && sshkey.PayloadHash(p) == payloadHash {
			return model.RestoreCredential(c), nil
		}
	}
	return model.Credential{}, db.ErrNotFound
}

func (t *memTx) CountDeployCredentials(_ context.Context, ownerID int64) (int, error) {
	n := 0
	for _, c := range t.st.creds {
		if c.OwnerID == ownerID && c.Kind == model.KeyKindDeploy {
			n++
		}
	}
	return n, nil
}

func (t *memTx) taken(ownerID int64, excludeID int64, match func(model.CredentialState) bool) bool {
	for _, c := range t.st.creds {
		if c.OwnerID == ownerID && c.ID != excludeID && match(c) {
			return true
		}
	}
	return false
}

func (t *memTx) TitleTaken(_ context.Context, ownerID int64, title string, excludeID int64) (bool, error) {
	return t.taken(ownerID, excludeID, func(c model.CredentialState) bool { return strings.EqualFold(c.Title, title) }), nil
}

func (t *memTx) IdentifierTaken(_ context.Context, ownerID int64, ident string, excludeID int64) (bool, error) {
	return t.taken(ownerID, excludeID, func(c model.CredentialState) bool { return strings.EqualFold(c.Identifier, ident) }), nil
}

func (t *memTx) InsertCredential(_ context.Context, c model.Credential) (model.Credential, error) {
	t.st.nextID++
	s := c.State()
	s.ID = t.st.nextID
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	t.st.creds[s.ID] = s
	return model.RestoreCredential(s), nil
}

func (t *memTx) UpdateCredential(_ context.Context, c model.Credential) error {
	old, ok := t.st.creds[c.ID()]
	if !ok {
		return db.ErrNotFound
	}
	s := c.State()
	// write-once columns are not part of the update
	s.OwnerID, s.KeyMaterial, s.Kind, s.Fingerprint = old.OwnerID, old.KeyMaterial, old.Kind, old.Fingerprint
	t.st.creds[c.ID()] = s
	return nil
}

func (t *memTx) DeleteCredential(_ context.Context, id int64) error {
	if _, ok := t.st.creds[id]; !ok {
		return db.ErrNotFound
	}
	delete(t.st.creds, id)
	return nil
}

func (t *memTx) Deployments(_ context.Context, credentialID int64) ([]model.DeploymentCredential, error) {
	var out []model.DeploymentCredential
	for _, d := range t.st.deps {
		if d.CredentialID == credentialID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (t *memTx) InsertDeployment(_ context.Context, d model.DeploymentCredential) (model.DeploymentCredential, error) {
	for _, existing := range t.st.deps {
		if existing.CredentialID == d.CredentialID && existing.Repository == d.Repository {
			return model.DeploymentCredential{}, &db.DuplicateError{Field: db.FieldRepository}
		}
	}
	t.st.nextID++
	d.ID = t.st.nextID
	t.st.deps = append(t.st.deps, d)
	return d, nil
}

func (t *memTx) DeleteDeployment(_ context.Context, credentialID int64, repository string) error {
	for i, d := range t.st.deps {
		if d.CredentialID == credentialID && d.Repository == repository {
			t.st.deps = slices.Delete(t.st.deps, i, i+1)
			return nil
		}
	}
	return db.ErrNotFound
}

func (t *memTx) DeleteDeployments(_ context.Context, credentialID int64) (int, error) {
	before := len(t.st.deps)
	t.st.deps = slices.DeleteFunc(t.st.deps, func(d model.DeploymentCredential) bool { return d.CredentialID == credentialID })
	return before - len(t.st.deps), nil
}

func (t *memTx) EnqueueEvent(_ context.Context, ev resync.Event) error {
	t.st.outbox = append(t.st.outbox, ev)
	return nil
}

func (t *memTx) LogAction(_ context.Context, actor, action, details string) error {
	t.st.audit = append(t.st.audit, actor+" "+action+" "+details)
	return nil
}

// fakeChecker stands in for the external format check.
type fakeChecker struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (f *fakeChecker) Check(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	return f.err
}

func (f *fakeChecker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// steppingClock returns a clock that advances 1.5ms per call.
func steppingClock() func() time.Time {
	t := time.Unix(1700000000, 123456000)
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(1500 * time.Microsecond)
		return t
	}
}
