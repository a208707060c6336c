package consent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

type failingStore struct{ err error }

func (s failingStore) Load(context.Context) (State, bool, error) { return nil, false, s.err }
func (s failingStore) Save(context.Context, State) error         { return s.err }

func (s *MemoryStore) setRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
}

// sameDecisions reports whether a and b allow the same groups of c.
func sameDecisions(a, b State, c *Catalog) bool {
	for _, g := range c.Names() {
		if a.Allowed(g) != b.Allowed(g) {
			return false
		}
	}
	return true
}

func TestDefaultConsentAllowsEverything(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	state := r.DefaultConsent()
	if len(state) != 5 {
		t.Fatalf("expected 5 groups, got %d", len(state))
	}
	for group, allowed := range state {
		if !allowed {
			t.Fatalf("group %q should default to allowed", group)
		}
	}
}

func TestReconcileDropsUnknownAndDefaultsMissing(t *testing.T) {
	r := NewRegistry(nil, nil, nil)
	got := r.Reconcile(State{"Credit History Data": false, "Astrology Data": false})
	if _, ok := got["Astrology Data"]; ok {
		t.Fatalf("unknown group should be dropped")
	}
	if got["Credit History Data"] {
		t.Fatalf("explicit deny lost")
	}
	if !got["Financial Data"] {
		t.Fatalf("missing group should default to allowed")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil, NewMemoryStore(), nil)

	full := r.DefaultConsent()
	full["Demographic Data"] = false
	if _, err := r.SaveConsent(ctx, full); err != nil {
		t.Fatalf("save: %v", err)
	}
	if diff := cmp.Diff(full, r.LoadConsent(ctx)); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	subset := State{"Credit History Data": false}
	if _, err := r.SaveConsent(ctx, subset); err != nil {
		t.Fatalf("save subset: %v", err)
	}
	if !sameDecisions(r.LoadConsent(ctx), subset, r.Catalog()) {
		t.Fatalf("subset state not preserved")
	}
}

func TestLoadFailsOpenOnMalformedState(t *testing.T) {
	store := NewMemoryStore()
	store.setRaw([]byte(`{"Financial Data": "nope"`))
	r := NewRegistry(nil, store, nil)

	got := r.LoadConsent(context.Background())
	if diff := cmp.Diff(r.DefaultConsent(), got); diff != "" {
		t.Fatalf("expected default consent (-want +got):\n%s", diff)
	}
}

func TestLoadFailsOpenOnStoreError(t *testing.T) {
	r := NewRegistry(nil, failingStore{err: errors.New("disk gone")}, nil)
	if diff := cmp.Diff(r.DefaultConsent(), r.LoadConsent(context.Background())); diff != "" {
		t.Fatalf("expected default consent (-want +got):\n%s", diff)
	}
}

func TestSaveSurfacesStoreError(t *testing.T) {
	r := NewRegistry(nil, failingStore{err: errors.New("disk gone")}, nil)
	_, err := r.SaveConsent(context.Background(), State{})
	if !errors.Is(err, ErrConsentStorage) {
		t.Fatalf("expected ErrConsentStorage, got %v", err)
	}
}

func TestResetRestoresDefault(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(nil, nil, nil)
	if _, err := r.SaveConsent(ctx, State{"Financial Data": false}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := r.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if diff := cmp.Diff(r.DefaultConsent(), r.LoadConsent(ctx)); diff != "" {
		t.Fatalf("reset mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "state", "consent.json"))

	if _, found, err := store.Load(ctx); err != nil || found {
		t.Fatalf("missing file: found=%v err=%v", found, err)
	}
	want := State{"Financial Data": true, "Credit History Data": false}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, found, err := store.Load(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("file round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "")
	if _, found, err := store.Load(ctx); err != nil || found {
		t.Fatalf("empty redis: found=%v err=%v", found, err)
	}

	want := State{"Demographic Data": false}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, found, err := store.Load(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("redis round trip mismatch (-want +got):\n%s", diff)
	}

	if err := mr.Set(DefaultRedisKey, "not json"); err != nil {
		t.Fatalf("seed garbage: %v", err)
	}
	r := NewRegistry(nil, store, nil)
	if diff := cmp.Diff(r.DefaultConsent(), r.LoadConsent(ctx)); diff != "" {
		t.Fatalf("expected fail-open default (-want +got):\n%s", diff)
	}
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := DialRedis(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = client.Close()

	if _, err := DialRedis(context.Background(), "127.0.0.1:1", "", 0); err == nil {
		t.Fatalf("expected dial error for closed port")
	}
}

type memRecords struct {
	data []byte
	at   string
}

func (m *memRecords) GetConsentState(context.Context) ([]byte, bool, error) {
	return m.data, m.data != nil, nil
}

func (m *memRecords) PutConsentState(_ context.Context, data []byte, at string) error {
	m.data, m.at = data, at
	return nil
}

func TestDBStore(t *testing.T) {
	ctx := context.Background()
	records := &memRecords{}
	store := NewDBStore(records)
	want := State{"Banking Behaviour Data": false}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if records.at == "" {
		t.Fatalf("expected updated_at to be set")
	}
	got, found, err := store.Load(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("db round trip mismatch (-want +got):\n%s", diff)
	}
}
