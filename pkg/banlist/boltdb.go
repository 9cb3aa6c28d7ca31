package banlist

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"
	"go.etcd.io/bbolt"
)

var boltDBBucket = []byte("bans")
var log = logging.MustGetLogger("banlist")

type boltDBList struct {
	db *bbolt.DB
}

// NewBoltDB constructs a List persisted in a BoltDB file at path.
func NewBoltDB(path string) (List, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltDBBucket); err != nil {
			return fmt.Errorf("failed to create bucket: %s", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &boltDBList{db: db}, nil
}

func (l *boltDBList) Ban(ip net.IP, until time.Time) error {
	raw, err := json.Marshal(Entry{IP: ip.String(), Until: until})
	if err != nil {
		return err
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltDBBucket).Put([]byte(ip.String()), raw)
	})
}

func (l *boltDBList) Unban(ip net.IP) error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltDBBucket).Delete([]byte(ip.String()))
	})
}

func (l *boltDBList) IsBanned(ip net.IP) (bool, error) {
	var entry *Entry
	err := l.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(boltDBBucket).Get([]byte(ip.String()))
		if raw == nil {
			return nil
		}
		entry = new(Entry)
		return json.Unmarshal(raw, entry)
	})
	if err != nil || entry == nil {
		return false, err
	}
	return entry.Active(time.Now()), nil
}

func (l *boltDBList) Entries() ([]Entry, error) {
	now := time.Now()
	var out []Entry
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltDBBucket).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				log.WithError(err).Warnf("Skipping malformed ban entry %q", k)
				return nil
			}
			if e.Active(now) {
				out = append(out, e)
			}
			return nil
		})
	})
	return out, err
}

func (l *boltDBList) Close() error {
	return l.db.Close()
}
