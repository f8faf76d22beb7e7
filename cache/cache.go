// Package cache stores assembled method bodies in SQLite, keyed by a hash
// of the method's listing, so unchanged methods are not reassembled.
package cache

import (
	"bytes"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/ilasm/ilfile"
	"github.com/chazu/ilasm/metadata"
	"github.com/chazu/ilasm/methodbody"
)

func log() commonlog.Logger { return commonlog.GetLogger("ilasm.cache") }

// ErrMiss indicates the key has no cached body
var ErrMiss = errors.New("cache miss")

// keyVersion changes whenever body encoding changes so stale rows miss.
const keyVersion = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// keyInput is everything that decides the assembled bytes of a method.
type keyInput struct {
	Version    int            `cbor:"1,keyasint"`
	InitLocals bool           `cbor:"2,keyasint"`
	Method     *ilfile.Method `cbor:"3,keyasint"`
}

// Key hashes the canonical CBOR encoding of m together with the assembly
// options. Source positions are not part of the key.
func Key(m *ilfile.Method, initLocals bool) (string, error) {
	enc, err := cborEncMode.Marshal(keyInput{Version: keyVersion, InitLocals: initLocals, Method: m})
	if err != nil {
		return "", fmt.Errorf("cache: encoding key: %w", err)
	}
	sum := sha256.Sum256(enc)
	return hex.EncodeToString(sum[:]), nil
}

// Entry is a cached body. LocalSig holds the LocalVarSig blob, not a
// token, since tokens depend on the order signatures were registered.
type Entry struct {
	Body     []byte
	LocalSig []byte
	BuildID  string
}

// SignatureStore maps local signature blobs to StandAloneSig tokens and
// back. *metadata.Context implements it.
type SignatureStore interface {
	AddStandAloneSig(sig []byte) (metadata.Token, error)
	Signature(t metadata.Token) ([]byte, error)
}

// Restore registers the entry's local signature with store and returns
// the body with its header pointing at the resulting token.
func (e *Entry) Restore(store SignatureStore) ([]byte, metadata.Token, error) {
	body := bytes.Clone(e.Body)
	if len(e.LocalSig) == 0 {
		return body, 0, nil
	}
	tok, err := store.AddStandAloneSig(e.LocalSig)
	if err != nil {
		return nil, 0, err
	}
	if err := methodbody.SetLocalSig(body, tok); err != nil {
		return nil, 0, err
	}
	return body, tok, nil
}

// Cache handles SQLite storage for assembled bodies
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// PRAGMAs apply per connection
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS bodies (
		key        TEXT PRIMARY KEY,
		body       BLOB NOT NULL,
		local_sig  BLOB,
		build_id   TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}
	log().Debugf("opened %s", path)
	return &Cache{db: db, path: path}, nil
}

// Close closes the database connection
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (c *Cache) Path() string { return c.path }

// Get returns the entry stored under key, or ErrMiss.
func (c *Cache) Get(key string) (*Entry, error) {
	var e Entry
	err := c.db.QueryRow("SELECT body, local_sig, build_id FROM bodies WHERE key = ?", key).
		Scan(&e.Body, &e.LocalSig, &e.BuildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("querying body: %w", err)
	}
	return &e, nil
}

// Put stores e under key, replacing any earlier entry.
func (c *Cache) Put(key string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO bodies (key, body, local_sig, build_id, created_at) VALUES (?, ?, ?, ?, ?)",
		key, e.Body, e.LocalSig, e.BuildID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving body: %w", err)
	}
	return nil
}

// PutBody stores a freshly built body, looking its local signature blob up
// in store.
func (c *Cache) PutBody(key, buildID string, body *methodbody.Body, store SignatureStore) error {
	e := Entry{Body: body.Bytes, BuildID: buildID}
	if body.LocalSig != 0 {
		sig, err := store.Signature(body.LocalSig)
		if err != nil {
			return err
		}
		e.LocalSig = sig
	}
	return c.Put(key, e)
}

// Len returns the number of cached bodies.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM bodies").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting bodies: %w", err)
	}
	return n, nil
}

// Prune deletes every entry not written by buildID and returns how many
// were removed.
func (c *Cache) Prune(buildID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec("DELETE FROM bodies WHERE build_id != ?", buildID)
	if err != nil {
		return 0, fmt.Errorf("pruning bodies: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log().Infof("pruned %d stale bodies", n)
	}
	return n, nil
}

// Touch marks key as used by buildID so Prune keeps it.
func (c *Cache) Touch(key, buildID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("UPDATE bodies SET build_id = ? WHERE key = ?", buildID, key); err != nil {
		return fmt.Errorf("touching body: %w", err)
	}
	return nil
}
