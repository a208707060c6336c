package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

func decodeState(data []byte) (State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode consent state: %w", err)
	}
	if state == nil {
		return nil, errors.New("decode consent state: null document")
	}
	return state, nil
}

// MemoryStore keeps the state in process. It round-trips through JSON like the
// durable stores so that a corrupted document behaves the same way in tests.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(context.Context) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, false, nil
	}
	state, err := decodeState(s.data)
	return state, err == nil, err
}

func (s *MemoryStore) Save(_ context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

// FileStore keeps the state as a JSON document on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (s *FileStore) Load(context.Context) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	state, err := decodeState(data)
	return state, err == nil, err
}

// Save writes through a temp file so a crash never leaves half a document.
func (s *FileStore) Save(_ context.Context, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".consent-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

const DefaultRedisKey = "trusai:consent:state"

// RedisStore shares one consent state between gateway replicas.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// DialRedis connects and pings with a short timeout.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Load(ctx context.Context) (State, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	state, err := decodeState(data)
	return state, err == nil, err
}

func (s *RedisStore) Save(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, 0).Err()
}

// RecordStore is the slice of a ledger store that holds the consent document.
type RecordStore interface {
	GetConsentState(ctx context.Context) ([]byte, bool, error)
	PutConsentState(ctx context.Context, stateJSON []byte, updatedAt string) error
}

// DBStore keeps the state in the ledger database.
type DBStore struct {
	records RecordStore
	now     func() time.Time
}

func NewDBStore(records RecordStore) *DBStore {
	return &DBStore{records: records, now: time.Now}
}

func (s *DBStore) Load(ctx context.Context) (State, bool, error) {
	data, ok, err := s.records.GetConsentState(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	state, err := decodeState(data)
	return state, err == nil, err
}

func (s *DBStore) Save(ctx context.Context, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.records.PutConsentState(ctx, data, s.now().UTC().Format(time.RFC3339Nano))
}
