package coord

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"
)

var bucketTree = []byte("tree")

// node is the persisted representation of one path in the tree.
type node struct {
	Value      []byte `json:"value"`
	Ephemeral  bool   `json:"ephemeral,omitempty"`
	Sequential bool   `json:"sequential,omitempty"`
	Session    string `json:"session,omitempty"`
	Seq        uint64 `json:"seq,omitempty"`
}

// tree is the BoltDB-backed hierarchical store. Keys are normalized to
// start with a leading "/" and carry no trailing slash.
type tree struct {
	db *bolt.DB
}

func newTree(dbPath string) (*tree, error) {
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open coordination store db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTree)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &tree{db: db}, nil
}

func (t *tree) Close() error { return t.db.Close() }

func normalize(path string) string {
	path = filepath.ToSlash(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

func (t *tree) get(path string) (*node, bool, error) {
	path = normalize(path)
	var n node
	var found bool
	err := t.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTree)
		data := b.Get([]byte(path))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &n)
	})
	return &n, found, err
}

func (t *tree) put(path string, n *node) error {
	path = normalize(path)
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTree).Put([]byte(path), data)
	})
}

func (t *tree) delete(path string) error {
	path = normalize(path)
	return t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTree).Delete([]byte(path))
	})
}

// deleteRecursive removes path and every descendant, returning their keys.
func (t *tree) deleteRecursive(path string) ([]string, error) {
	path = normalize(path)
	prefix := path
	if prefix != "/" {
		prefix += "/"
	}
	var removed []string
	err := t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTree)
		c := b.Cursor()
		if v, _ := b.Get([]byte(path)), false; v != nil {
			removed = append(removed, path)
		}
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			removed = append(removed, string(k))
		}
		for _, k := range removed {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

// children returns the direct (one-level) child names under path.
func (t *tree) children(path string) ([]string, error) {
	path = normalize(path)
	prefix := path
	if prefix != "/" {
		prefix += "/"
	}
	seen := map[string]bool{}
	err := t.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTree).Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			rest := strings.TrimPrefix(string(k), prefix)
			name := strings.SplitN(rest, "/", 2)[0]
			if name != "" {
				seen[name] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// nextSequence returns a monotonically increasing counter scoped to
// parent, used to name create(..., sequential=true) children.
func (t *tree) nextSequence(parent string) (uint64, error) {
	parent = normalize(parent)
	seqKey := []byte("\x00seq:" + parent)
	var next uint64
	err := t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTree)
		data := b.Get(seqKey)
		var cur uint64
		if data != nil {
			if err := json.Unmarshal(data, &cur); err != nil {
				return err
			}
		}
		next = cur + 1
		out, err := json.Marshal(next)
		if err != nil {
			return err
		}
		return b.Put(seqKey, out)
	})
	return next, err
}

// ephemeralsBySession lists paths owned by session, used by the janitor.
func (t *tree) ephemeralsBySession(session string) ([]string, error) {
	var out []string
	err := t.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTree).ForEach(func(k, v []byte) error {
			if strings.HasPrefix(string(k), "\x00seq:") {
				return nil
			}
			var n node
			if err := json.Unmarshal(v, &n); err != nil {
				return nil // skip malformed entries rather than fail the scan
			}
			if n.Ephemeral && n.Session == session {
				out = append(out, string(k))
			}
			return nil
		})
	})
	return out, err
}
