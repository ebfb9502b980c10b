// Package store keeps an archive of time zone streams in a bbolt database,
// one entry per tzdb version.
//
// Buckets:
//
//	streams     encoded streams keyed by version
//	stream_info JSON Info records keyed by version
//	_meta       schema version, creation time, latest version, IANA ETag
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ngrash/go-tzdb/tzdb/ianadist"
	"github.com/ngrash/go-tzdb/tzstream"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

var (
	bucketStreams  = []byte("streams")
	bucketInfo     = []byte("stream_info")
	bucketInternal = []byte("_meta")

	keySchemaVersion = []byte("schema_version")
	keyCreatedAt     = []byte("created_at")
	keyLatest        = []byte("latest")
	keyETag          = []byte("ianadist_etag")
)

// ErrNoVersion is returned by Put for streams without a version.
var ErrNoVersion = errors.New("store: stream has no version")

// Info describes an archived stream.
type Info struct {
	Version    string    `json:"version"`
	Zones      int       `json:"zones"`
	Aliases    int       `json:"aliases"`
	Bytes      int       `json:"bytes"`
	ImportedAt time.Time `json:"imported_at"`
}

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database at path. Parent directories are
// created automatically.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the file of the open database.
func (s *Store) Path() string { return s.db.Path() }

func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketStreams, bucketInfo, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(bucketInternal)
		if v := meta.Get(keySchemaVersion); v != nil {
			if got, err := strconv.Atoi(string(v)); err != nil || got > schemaVersion {
				return fmt.Errorf("unsupported schema version %q", v)
			}
			return nil
		}
		if err := meta.Put(keySchemaVersion, []byte(strconv.Itoa(schemaVersion))); err != nil {
			return err
		}
		return meta.Put(keyCreatedAt, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// Put archives s under its version, replacing an earlier entry of the
// same version.
func (s *Store) Put(stream *tzstream.Stream) (Info, error) {
	if stream.Version() == "" {
		return Info{}, ErrNoVersion
	}
	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return Info{}, fmt.Errorf("encode stream: %w", err)
	}
	info := Info{
		Version:    stream.Version(),
		Zones:      len(stream.ZoneIDs()),
		Aliases:    len(stream.Aliases()),
		Bytes:      buf.Len(),
		ImportedAt: time.Now().UTC(),
	}
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return Info{}, fmt.Errorf("encode info: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(info.Version)
		if err := tx.Bucket(bucketStreams).Put(key, buf.Bytes()); err != nil {
			return err
		}
		if err := tx.Bucket(bucketInfo).Put(key, infoJSON); err != nil {
			return err
		}
		meta := tx.Bucket(bucketInternal)
		if latest := string(meta.Get(keyLatest)); latest == "" || newer(info.Version, latest) {
			return meta.Put(keyLatest, key)
		}
		return nil
	})
	if err != nil {
		return Info{}, fmt.Errorf("put %s: %w", info.Version, err)
	}
	return info, nil
}

// Get returns the stream archived under version.
// Returns (nil, false, nil) if there is none.
func (s *Store) Get(version string) (*tzstream.Stream, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// Values are only valid inside the transaction.
		data = slices.Clone(tx.Bucket(bucketStreams).Get([]byte(version)))
		return nil
	})
	if err != nil || data == nil {
		return nil, false, err
	}
	stream, err := tzstream.DecodeBytes(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", version, err)
	}
	return stream, true, nil
}

// Latest returns the stream with the highest version.
// Returns (nil, false, nil) if the store is empty.
func (s *Store) Latest() (*tzstream.Stream, bool, error) {
	v, err := s.meta(keyLatest)
	if err != nil || v == "" {
		return nil, false, err
	}
	return s.Get(v)
}

// List returns the info of all archived streams, sorted by version.
func (s *Store) List() ([]Info, error) {
	var infos []Info
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInfo).ForEach(func(k, v []byte) error {
			var info Info
			if err := json.Unmarshal(v, &info); err != nil {
				return fmt.Errorf("decode info %s: %w", k, err)
			}
			infos = append(infos, info)
			return nil
		})
	})
	slices.SortFunc(infos, func(a, b Info) int { return compareVersions(a.Version, b.Version) })
	return infos, err
}

// Delete removes the stream archived under version. Deleting a missing
// version is not an error.
func (s *Store) Delete(version string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(version)
		if err := tx.Bucket(bucketStreams).Delete(key); err != nil {
			return err
		}
		if err := tx.Bucket(bucketInfo).Delete(key); err != nil {
			return err
		}
		meta := tx.Bucket(bucketInternal)
		if string(meta.Get(keyLatest)) != version {
			return nil
		}
		var latest string
		err := tx.Bucket(bucketStreams).ForEach(func(k, _ []byte) error {
			if latest == "" || newer(string(k), latest) {
				latest = string(k)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if latest == "" {
			return meta.Delete(keyLatest)
		}
		return meta.Put(keyLatest, []byte(latest))
	})
}

// ETag returns the ETag of the last IANA release check.
func (s *Store) ETag() (string, error) { return s.meta(keyETag) }

// SetETag records the ETag of an IANA release check.
func (s *Store) SetETag(etag string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInternal).Put(keyETag, []byte(etag))
	})
}

func (s *Store) meta(key []byte) (string, error) {
	var v string
	err := s.db.View(func(tx *bolt.Tx) error {
		v = string(tx.Bucket(bucketInternal).Get(key))
		return nil
	})
	return v, err
}

// compareVersions orders tzdb versions, falling back to plain string order
// for names that are not release versions.
func compareVersions(a, b string) int {
	if c, err := ianadist.CompareVersions(a, b); err == nil {
		return c
	}
	return strings.Compare(a, b)
}

func newer(a, b string) bool { return compareVersions(a, b) > 0 }
