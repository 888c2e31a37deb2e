package tracker

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"

	"trackerd/content"
	"trackerd/trackererr"
)

// BackingStore is the backing persistent cache used as a read-through
// fallback once a ring has been removed: the tracker knows only whether
// a hash might exist until the store actually answers.
type BackingStore interface {
	MightExist(hash string) (bool, error)
	Fetch(hash string) (content.Entry, error)
	Put(e content.Entry) error
}

// PebbleBackingStore persists Content Entries to a pebble LSM store,
// CBOR-encoded so the on-disk shape tracks the same schema-evolution
// contract as the wire format.
type PebbleBackingStore struct {
	db *pebble.DB
}

// OpenPebbleBackingStore opens (or creates) a pebble store at dir. If dir
// is locked by another process it tries dir_1 through dir_5 before
// giving up, the same degraded-multi-instance fallback the tracker's
// predecessor used for its primary store.
func OpenPebbleBackingStore(dir string) (*PebbleBackingStore, error) {
	db, err := openWithRetry(dir)
	if err != nil {
		return nil, trackererr.Wrap(trackererr.Corrupted, err, "open backing store at %q", dir)
	}
	return &PebbleBackingStore{db: db}, nil
}

func openWithRetry(dir string) (*pebble.DB, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err == nil {
		return db, nil
	}
	if !isLockErr(err) {
		return nil, err
	}
	for i := 1; i <= 5; i++ {
		candidate := fmt.Sprintf("%s_%d", dir, i)
		db, err = pebble.Open(candidate, &pebble.Options{})
		if err == nil {
			return db, nil
		}
		if !isLockErr(err) {
			return nil, err
		}
	}
	return nil, err
}

func isLockErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "lock") ||
		strings.Contains(msg, "resource temporarily unavailable") ||
		strings.Contains(msg, "being used by another process") ||
		strings.Contains(msg, "cannot access the file")
}

// Close releases the underlying pebble handle.
func (p *PebbleBackingStore) Close() error { return p.db.Close() }

// MightExist reports whether hash has ever been recorded in the backing
// store.
func (p *PebbleBackingStore) MightExist(hash string) (bool, error) {
	_, closer, err := p.db.Get([]byte(hash))
	if err != nil {
		if err == pebble.ErrNotFound {
			return false, nil
		}
		return false, trackererr.Wrap(trackererr.Corrupted, err, "backing store lookup for %q", hash)
	}
	closer.Close()
	return true, nil
}

// Fetch returns the stored entry for hash, Empty if none was ever
// recorded.
func (p *PebbleBackingStore) Fetch(hash string) (content.Entry, error) {
	val, closer, err := p.db.Get([]byte(hash))
	if err != nil {
		if err == pebble.ErrNotFound {
			return content.Empty(hash), nil
		}
		return content.Empty(hash), trackererr.Wrap(trackererr.Corrupted, err, "backing store fetch for %q", hash)
	}
	defer closer.Close()

	var e content.Entry
	if err := cbor.Unmarshal(val, &e); err != nil {
		return content.Empty(hash), trackererr.Wrap(trackererr.Corrupted, err, "backing store decode for %q", hash)
	}
	return e, nil
}

// Put persists e, overwriting whatever was previously stored for its
// hash.
func (p *PebbleBackingStore) Put(e content.Entry) error {
	data, err := cbor.Marshal(e)
	if err != nil {
		return trackererr.Wrap(trackererr.Corrupted, err, "backing store encode for %q", e.Hash)
	}
	return p.db.Set([]byte(e.Hash), data, pebble.Sync)
}
