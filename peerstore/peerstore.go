// Package peerstore keeps the peers a mesh node learned across restarts.
//
// Peers form a set keyed by their UDP address. A record is written once, the
// first time its address is seen, and afterwards only its Acknowledged flag
// can change, from false to true. Nothing is ever removed.
package peerstore

import (
	"sort"
	"time"

	"go.dedis.ch/hey"
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/protobuf"
	bbolt "go.etcd.io/bbolt"
	uuid "gopkg.in/satori/go.uuid.v1"
)

var bucketName = []byte("peers")

// Record is what is stored for a peer.
type Record struct {
	Address string
	// Session identifies the store opening that first learned the peer.
	Session string
	// FirstSeen is a unix timestamp in nanoseconds.
	FirstSeen int64
	// Acknowledged is set once the peer sent the handshake literal.
	Acknowledged bool
}

// Store is a peer set backed by a bbolt database.
type Store struct {
	db      *bbolt.DB
	session string
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, hey.ErrorOrNil(err, "opening peer store")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, hey.ErrorOrNil(err, "creating peer bucket")
	}
	return &Store{db: db, session: uuid.NewV4().String()}, nil
}

// Session returns the identifier stamped on records created by this store.
func (s *Store) Session() string {
	return s.session
}

// Add stores addr if it is unknown. For a known peer it only upgrades the
// acknowledged flag. It reports whether anything was written.
func (s *Store) Add(addr string, acknowledged bool) (bool, error) {
	changed := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		key := []byte(addr)

		var r Record
		if buf := b.Get(key); buf != nil {
			if err := protobuf.Decode(buf, &r); err != nil {
				return err
			}
			if r.Acknowledged || !acknowledged {
				return nil
			}
			r.Acknowledged = true
		} else {
			r = Record{
				Address:      addr,
				Session:      s.session,
				FirstSeen:    time.Now().UnixNano(),
				Acknowledged: acknowledged,
			}
		}

		buf, err := protobuf.Encode(&r)
		if err != nil {
			return err
		}
		changed = true
		return b.Put(key, buf)
	})
	if err != nil {
		return false, hey.ErrorOrNil(err, "storing peer "+addr)
	}
	if changed {
		log.Lvl3("stored peer", addr, "acknowledged:", acknowledged)
	}
	return changed, nil
}

// Records returns every stored peer, ordered by address.
func (s *Store) Records() ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, v []byte) error {
			var r Record
			if err := protobuf.Decode(v, &r); err != nil {
				return err
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, hey.WrapError(err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Address < records[j].Address
	})
	return records, nil
}

// Addresses returns the addresses of every stored peer.
func (s *Store) Addresses() ([]string, error) {
	records, err := s.Records()
	if err != nil {
		return nil, err
	}
	addrs := make([]string, len(records))
	for i, r := range records {
		addrs[i] = r.Address
	}
	return addrs, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return hey.ErrorOrNil(s.db.Close(), "closing peer store")
}
