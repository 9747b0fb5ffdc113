package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketProfiles    = "profiles"
	bucketSiteRules   = "site_rules"
	bucketAppRules    = "app_rules"
	bucketActivity    = "activity"
	bucketUsage       = "usage"
	bucketCredentials = "credentials"
)

const credentialsKey = "admin"

type bboltStore struct {
	db *bolt.DB
}

// NewBboltStore opens (or creates) a bbolt database at dataDir/parentguard.db.
func NewBboltStore(dataDir string) (Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "parentguard.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt at %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{
			bucketProfiles, bucketSiteRules, bucketAppRules,
			bucketActivity, bucketUsage, bucketCredentials,
		} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &bboltStore{db: db}, nil
}

// ---- Profiles --------------------------------------------------------------

func (s *bboltStore) GetProfile(id string) (*Profile, error) {
	var p Profile
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketProfiles)).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(v, &p)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

func (s *bboltStore) PutProfile(p Profile) error {
	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal Profile: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketProfiles)).Put([]byte(p.ID), data)
	})
}

func (s *bboltStore) ListProfiles() ([]Profile, error) {
	var result []Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketProfiles)).ForEach(func(k, v []byte) error {
			var p Profile
			if err := msgpack.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshal Profile %s: %w", k, err)
			}
			result = append(result, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteProfileCascade removes the profile and all records it owns in a
// single write transaction, so a crash cannot leave orphaned child records.
func (s *bboltStore) DeleteProfileCascade(id string) (CascadeResult, error) {
	var res CascadeResult
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(bucketProfiles)).Delete([]byte(id)); err != nil {
			return err
		}

		n, err := deleteOwned(tx.Bucket([]byte(bucketSiteRules)), func(v []byte) (bool, error) {
			var r SiteRule
			if err := msgpack.Unmarshal(v, &r); err != nil {
				return false, err
			}
			return r.ProfileID == id, nil
		})
		if err != nil {
			return fmt.Errorf("cascade site rules: %w", err)
		}
		res.SiteRules = n

		n, err = deleteOwned(tx.Bucket([]byte(bucketAppRules)), func(v []byte) (bool, error) {
			var r AppRule
			if err := msgpack.Unmarshal(v, &r); err != nil {
				return false, err
			}
			return r.ProfileID == id, nil
		})
		if err != nil {
			return fmt.Errorf("cascade app rules: %w", err)
		}
		res.AppRules = n

		n, err = deleteOwned(tx.Bucket([]byte(bucketActivity)), func(v []byte) (bool, error) {
			var e ActivityEntry
			if err := msgpack.Unmarshal(v, &e); err != nil {
				return false, err
			}
			return e.ProfileID == id, nil
		})
		if err != nil {
			return fmt.Errorf("cascade activity: %w", err)
		}
		res.Activity = n

		n, err = deleteOwned(tx.Bucket([]byte(bucketUsage)), func(v []byte) (bool, error) {
			var u DayUsage
			if err := msgpack.Unmarshal(v, &u); err != nil {
				return false, err
			}
			return u.ProfileID == id, nil
		})
		if err != nil {
			return fmt.Errorf("cascade usage: %w", err)
		}
		res.Usage = n
		return nil
	})
	if err != nil {
		return CascadeResult{}, err
	}
	return res, nil
}

// deleteOwned deletes every entry in b for which match returns true.
// Keys are collected first; bbolt forbids deletion during ForEach.
func deleteOwned(b *bolt.Bucket, match func(v []byte) (bool, error)) (int, error) {
	var toDelete [][]byte
	if err := b.ForEach(func(k, v []byte) error {
		ok, err := match(v)
		if err != nil {
			return err
		}
		if ok {
			key := make([]byte, len(k))
			copy(key, k)
			toDelete = append(toDelete, key)
		}
		return nil
	}); err != nil {
		return 0, err
	}
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(toDelete), nil
}

// ---- Site rules ------------------------------------------------------------

func (s *bboltStore) GetSiteRule(id string) (*SiteRule, error) {
	var r SiteRule
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketSiteRules)).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(v, &r)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &r, nil
}

func (s *bboltStore) PutSiteRule(r SiteRule) error {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal SiteRule: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSiteRules)).Put([]byte(r.ID), data)
	})
}

func (s *bboltStore) DeleteSiteRule(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSiteRules)).Delete([]byte(id))
	})
}

func (s *bboltStore) ListSiteRules(profileID string) ([]SiteRule, error) {
	var result []SiteRule
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSiteRules)).ForEach(func(k, v []byte) error {
			var r SiteRule
			if err := msgpack.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal SiteRule %s: %w", k, err)
			}
			if profileID == "" || r.ProfileID == profileID {
				result = append(result, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortByCreation(result, func(r SiteRule) (time.Time, string) { return r.CreatedAt, r.ID })
	return result, nil
}

// ---- App rules -------------------------------------------------------------

func (s *bboltStore) GetAppRule(id string) (*AppRule, error) {
	var r AppRule
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketAppRules)).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(v, &r)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &r, nil
}

func (s *bboltStore) PutAppRule(r AppRule) error {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal AppRule: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAppRules)).Put([]byte(r.ID), data)
	})
}

func (s *bboltStore) DeleteAppRule(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAppRules)).Delete([]byte(id))
	})
}

func (s *bboltStore) ListAppRules(profileID string) ([]AppRule, error) {
	var result []AppRule
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAppRules)).ForEach(func(k, v []byte) error {
			var r AppRule
			if err := msgpack.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal AppRule %s: %w", k, err)
			}
			if profileID == "" || r.ProfileID == profileID {
				result = append(result, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortByCreation(result, func(r AppRule) (time.Time, string) { return r.CreatedAt, r.ID })
	return result, nil
}

func sortByCreation[T any](items []T, key func(T) (time.Time, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if ti.Equal(tj) {
			return idi < idj
		}
		return ti.Before(tj)
	})
}

// ---- Activity log ----------------------------------------------------------

// AppendActivity writes the entry under a monotonically increasing sequence
// key and evicts oldest entries beyond maxEntries in the same transaction. maxEntries <= 0
// disables eviction.
func (s *bboltStore) AppendActivity(e ActivityEntry, maxEntries int) (int, error) {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("marshal ActivityEntry: %w", err)
	}
	var evicted int
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketActivity))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(seqKey(seq), data); err != nil {
			return err
		}
		if maxEntries <= 0 {
			return nil
		}

		// Sequence keys are fixed-width, so cursor order is insertion order.
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			key := make([]byte, len(k))
			copy(key, k)
			keys = append(keys, key)
		}
		for len(keys) > maxEntries {
			if err := b.Delete(keys[0]); err != nil {
				return err
			}
			keys = keys[1:]
			evicted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return evicted, nil
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%016x", seq))
}

// ListActivity returns entries newest-first, optionally filtered by profile.
// limit <= 0 returns everything.
func (s *bboltStore) ListActivity(profileID string, limit int) ([]ActivityEntry, error) {
	var result []ActivityEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketActivity)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e ActivityEntry
			if err := msgpack.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshal ActivityEntry %s: %w", k, err)
			}
			if profileID != "" && e.ProfileID != profileID {
				continue
			}
			result = append(result, e)
			if limit > 0 && len(result) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *bboltStore) CountActivity() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketActivity)).ForEach(func(k, v []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// ---- Daily usage -----------------------------------------------------------

func usageKey(profileID, date string) []byte {
	return []byte(profileID + "/" + date)
}

func (s *bboltStore) GetUsage(profileID, date string) (*DayUsage, error) {
	var u DayUsage
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketUsage)).Get(usageKey(profileID, date))
		if v == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(v, &u)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &u, nil
}

func (s *bboltStore) PutUsage(u DayUsage) error {
	data, err := msgpack.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal DayUsage: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketUsage)).Put(usageKey(u.ProfileID, u.Date), data)
	})
}

// ---- Credentials -----------------------------------------------------------

func (s *bboltStore) GetCredentials() (*Credentials, error) {
	var c Credentials
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketCredentials)).Get([]byte(credentialsKey))
		if v == nil {
			return nil
		}
		found = true
		return msgpack.Unmarshal(v, &c)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

func (s *bboltStore) PutCredentials(c Credentials) error {
	data, err := msgpack.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal Credentials: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketCredentials)).Put([]byte(credentialsKey), data)
	})
}

// ---- Utility ---------------------------------------------------------------

func (s *bboltStore) SizeBytes() (int64, error) {
	info, err := os.Stat(s.db.Path())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *bboltStore) Close() error {
	return s.db.Close()
}
