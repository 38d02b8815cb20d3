package secure

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "stagepass"
	namespace   = "stagepass::"
	storeFile   = "secure.dat"
	indexKey    = "stagepass::index"
)

// Credential keys. These never fall back to legacy un-namespaced lookups.
const (
	KeyAccessToken  = "auth.access"
	KeyRefreshToken = "auth.refresh"
	KeyProfile      = "user.profile"
)

type backendKind int

const (
	backendKeyring backendKind = iota
	backendFile
	backendMemory
)

func (b backendKind) String() string {
	switch b {
	case backendKeyring:
		return "keyring"
	case backendFile:
		return "encrypted-file"
	default:
		return "memory"
	}
}

// Store is a namespaced key/value store for credentials and preferences.
// Backends are tried in order: system keyring, AES-GCM encrypted file,
// process memory. The chosen backend is fixed at construction.
type Store struct {
	mu      sync.Mutex
	backend backendKind
	dir     string
	cipher  *fileCipher
	mem     map[string]Record
}

// NewStore creates a store rooted at dir (used for the file fallback and
// its salt). STAGEPASS_NO_KEYRING skips the keyring probe, which tests
// and headless environments rely on.
func NewStore(dir string) *Store {
	s := &Store{dir: dir, mem: make(map[string]Record)}

	if os.Getenv("STAGEPASS_NO_KEYRING") == "" {
		probeKey := namespace + "probe"
		if err := keyring.Set(serviceName, probeKey, "probe"); err == nil {
			_ = keyring.Delete(serviceName, probeKey)
			s.backend = backendKeyring
			return s
		}
	}

	cipher, err := newFileCipher(dir)
	if err == nil {
		s.backend = backendFile
		s.cipher = cipher
		return s
	}

	fmt.Fprintf(os.Stderr, "warning: keyring and encrypted file storage unavailable, credentials held in memory only\n")
	s.backend = backendMemory
	return s
}

// UsingKeyring reports whether the system keyring backs this store.
func (s *Store) UsingKeyring() bool {
	return s.backend == backendKeyring
}

// Backend names the active backend, for diagnostics.
func (s *Store) Backend() string {
	return s.backend.String()
}

// Set stores a value with no expiry.
func (s *Store) Set(key, value string) error {
	return s.SetWithTTL(key, value, 0)
}

// SetWithTTL stores a value that expires ttl after the write. Expired
// entries are purged on the next read.
func (s *Store) SetWithTTL(key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := newRecord(value, s.backend != backendMemory, ttl)
	return s.put(namespace+key, rec)
}

// Get retrieves a value. The second return is false when the key is
// absent or its record expired. Expired records are removed as a side
// effect so partial state cannot linger.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	storageKey := namespace + key
	rec, ok, err := s.fetch(storageKey)
	if err != nil {
		return "", false, err
	}
	if !ok && !isCredentialKey(key) {
		// Pre-namespace installs wrote bare keys. Migrate on first read.
		rec, ok, err = s.fetch(key)
		if err != nil {
			return "", false, err
		}
		if ok {
			if err := s.put(storageKey, rec); err == nil {
				_ = s.delete(key)
			}
		}
	}
	if !ok {
		return "", false, nil
	}
	if rec.Expired() {
		_ = s.delete(storageKey)
		return "", false, nil
	}
	return rec.Value, true, nil
}

// Remove deletes a key. Removing an absent key is not an error.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(namespace + key)
}

// Clear removes every namespaced entry.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.backend {
	case backendKeyring:
		for _, storageKey := range s.loadIndex() {
			_ = keyring.Delete(serviceName, storageKey)
		}
		return s.saveIndex(nil)
	case backendFile:
		return s.saveAll(make(map[string]Record))
	default:
		s.mem = make(map[string]Record)
		return nil
	}
}

func isCredentialKey(key string) bool {
	switch key {
	case KeyAccessToken, KeyRefreshToken, KeyProfile:
		return true
	}
	return false
}

// Credential helpers. Readers treat "not stored" as an empty string so
// callers distinguish "no session" from storage faults.

// SetTokens stores both tokens; an empty refresh token leaves the stored
// one untouched, matching backends that rotate refresh tokens optionally.
func (s *Store) SetTokens(access, refresh string) error {
	if err := s.Set(KeyAccessToken, access); err != nil {
		return err
	}
	if refresh == "" {
		return nil
	}
	return s.Set(KeyRefreshToken, refresh)
}

func (s *Store) SetAccessToken(token string) error  { return s.Set(KeyAccessToken, token) }
func (s *Store) SetRefreshToken(token string) error { return s.Set(KeyRefreshToken, token) }

// AccessToken returns the stored access token, or "" when none exists.
func (s *Store) AccessToken() (string, error) {
	v, _, err := s.Get(KeyAccessToken)
	return v, err
}

// RefreshToken returns the stored refresh token, or "" when none exists.
func (s *Store) RefreshToken() (string, error) {
	v, _, err := s.Get(KeyRefreshToken)
	return v, err
}

// SetProfile stores the serialized user profile.
func (s *Store) SetProfile(profile string) error { return s.Set(KeyProfile, profile) }

// Profile returns the stored profile JSON, or "" when none exists.
func (s *Store) Profile() (string, error) {
	v, _, err := s.Get(KeyProfile)
	return v, err
}

// ClearAuth removes tokens and profile together. Callers rely on this
// being all-or-nothing in effect: each key is removed independently and
// removal of an absent key succeeds, so no partial session survives.
func (s *Store) ClearAuth() error {
	var firstErr error
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyProfile} {
		if err := s.Remove(key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Backend plumbing. Callers hold s.mu.

func (s *Store) put(storageKey string, rec Record) error {
	switch s.backend {
	case backendKeyring:
		data, err := rec.encode()
		if err != nil {
			return err
		}
		if err := keyring.Set(serviceName, storageKey, string(data)); err != nil {
			return err
		}
		return s.indexAdd(storageKey)
	case backendFile:
		all, err := s.loadAll()
		if err != nil {
			return err
		}
		all[storageKey] = rec
		return s.saveAll(all)
	default:
		s.mem[storageKey] = rec
		return nil
	}
}

func (s *Store) fetch(storageKey string) (Record, bool, error) {
	switch s.backend {
	case backendKeyring:
		data, err := keyring.Get(serviceName, storageKey)
		if err != nil {
			// The keyring API reports absence as an error; treat any
			// lookup failure as a miss rather than a fault.
			return Record{}, false, nil
		}
		rec, err := decodeRecord([]byte(data))
		if err != nil {
			_ = keyring.Delete(serviceName, storageKey)
			return Record{}, false, nil
		}
		return rec, true, nil
	case backendFile:
		all, err := s.loadAll()
		if err != nil {
			return Record{}, false, err
		}
		rec, ok := all[storageKey]
		return rec, ok, nil
	default:
		rec, ok := s.mem[storageKey]
		return rec, ok, nil
	}
}

func (s *Store) delete(storageKey string) error {
	switch s.backend {
	case backendKeyring:
		_ = keyring.Delete(serviceName, storageKey)
		return s.indexRemove(storageKey)
	case backendFile:
		all, err := s.loadAll()
		if err != nil {
			return err
		}
		if _, ok := all[storageKey]; !ok {
			return nil
		}
		delete(all, storageKey)
		return s.saveAll(all)
	default:
		delete(s.mem, storageKey)
		return nil
	}
}

// Keyring index. The keyring API has no enumeration, so Clear needs a
// list of keys we have written.

func (s *Store) loadIndex() []string {
	data, err := keyring.Get(serviceName, indexKey)
	if err != nil {
		return nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil
	}
	return keys
}

func (s *Store) saveIndex(keys []string) error {
	if len(keys) == 0 {
		_ = keyring.Delete(serviceName, indexKey)
		return nil
	}
	sort.Strings(keys)
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return keyring.Set(serviceName, indexKey, string(data))
}

func (s *Store) indexAdd(storageKey string) error {
	keys := s.loadIndex()
	for _, k := range keys {
		if k == storageKey {
			return nil
		}
	}
	return s.saveIndex(append(keys, storageKey))
}

func (s *Store) indexRemove(storageKey string) error {
	keys := s.loadIndex()
	out := keys[:0]
	for _, k := range keys {
		if k != storageKey {
			out = append(out, k)
		}
	}
	if len(out) == len(keys) {
		return nil
	}
	return s.saveIndex(out)
}

// Encrypted file backing.

func (s *Store) storePath() string {
	return filepath.Join(s.dir, storeFile)
}

func (s *Store) loadAll() (map[string]Record, error) {
	sealed, err := os.ReadFile(s.storePath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Record), nil
		}
		return nil, err
	}

	plaintext, err := s.cipher.open(sealed)
	if err != nil {
		// Tampered or written under a different host key. Start over
		// rather than serving unauthenticated data.
		return make(map[string]Record), nil
	}

	var all map[string]Record
	if err := json.Unmarshal(plaintext, &all); err != nil {
		return make(map[string]Record), nil
	}
	return all, nil
}

func (s *Store) saveAll(all map[string]Record) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	plaintext, err := json.Marshal(all)
	if err != nil {
		return err
	}
	sealed, err := s.cipher.seal(plaintext)
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.dir, "secure-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(sealed); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	destPath := s.storePath()
	if err := os.Rename(tmpPath, destPath); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(destPath)
			return os.Rename(tmpPath, destPath)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Keys returns the namespaced keys currently stored, without the prefix.
// Keyring-backed stores answer from the index.
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw []string
	switch s.backend {
	case backendKeyring:
		raw = s.loadIndex()
	case backendFile:
		all, err := s.loadAll()
		if err != nil {
			return nil, err
		}
		for k := range all {
			raw = append(raw, k)
		}
	default:
		for k := range s.mem {
			raw = append(raw, k)
		}
	}

	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if strings.HasPrefix(k, namespace) {
			keys = append(keys, strings.TrimPrefix(k, namespace))
		}
	}
	sort.Strings(keys)
	return keys, nil
}
