package coord

import "fmt"

// Read returns the value at path, or found=false if it does not exist.
// Reads are served from the local replica, not routed through raft.
func (c *Client) Read(path string) (value []byte, found bool, err error) {
	n, found, err := c.tree.get(path)
	if err != nil || !found {
		return nil, found, err
	}
	return n.Value, true, nil
}

// Write atomically sets the value at path. The path must already exist
// (created via Create); Write does not create new nodes.
func (c *Client) Write(path string, value []byte) error {
	if _, found, err := c.tree.get(path); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("coordination store write to missing path: %s", path)
	}
	_, err := c.applyOp(op{Kind: opWrite, Path: path, Value: value})
	return err
}

// WriteAll applies a set of writes to existing paths as a single atomic
// transaction, so observers never see a half-update. Used when ownership
// of a VM moves and /node and /state must change together.
func (c *Client) WriteAll(values map[string][]byte) error {
	ops := make([]op, 0, len(values))
	for path, value := range values {
		ops = append(ops, op{Kind: opWrite, Path: path, Value: value})
	}
	_, err := c.applyOp(op{Kind: opTxn, Ops: ops})
	return err
}

// Create creates a new node at path. If sequential is true, path is
// suffixed with a monotonic counter and the actual created path is
// returned. If ephemeral is true, the node is deleted automatically when
// this client's session expires.
func (c *Client) Create(path string, value []byte, ephemeral, sequential bool) (string, error) {
	res, err := c.applyOp(op{
		Kind:       opCreate,
		Path:       path,
		Value:      value,
		Ephemeral:  ephemeral,
		Sequential: sequential,
		Session:    c.sessionID,
	})
	if err != nil {
		return "", err
	}
	if sequential {
		return res.CreatedPath, nil
	}
	return path, nil
}

// Delete removes path. If recursive is true, every descendant is removed
// too; otherwise path must have no children.
func (c *Client) Delete(path string, recursive bool) error {
	if recursive {
		_, err := c.applyOp(op{Kind: opDeleteRecurse, Path: path})
		return err
	}
	children, err := c.tree.children(path)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return fmt.Errorf("coordination store delete of non-empty path without recursive: %s", path)
	}
	_, err = c.applyOp(op{Kind: opDelete, Path: path})
	return err
}

// ListChildren returns the direct child names under path.
func (c *Client) ListChildren(path string) ([]string, error) {
	return c.tree.children(path)
}

// CompareAndSwap writes newValue at path if and only if the value currently
// there equals old (a path that does not exist compares equal to a nil/empty
// old), returning swapped=false without error on a mismatch. Used for
// contention over a single key, such as primary-coordinator election on
// /primary_node.
func (c *Client) CompareAndSwap(path string, old, newValue []byte) (swapped bool, err error) {
	res, err := c.applyOp(op{Kind: opCAS, Path: path, Value: newValue, OldValue: old})
	if err != nil {
		return false, err
	}
	return res.Swapped, nil
}

// TxnOp is one operation inside a Transaction call.
type TxnOp struct {
	Write  *struct {
		Path  string
		Value []byte
	}
	Delete *struct {
		Path string
	}
}

// Transaction applies a batch of writes/deletes atomically.
func (c *Client) Transaction(ops []TxnOp) error {
	converted := make([]op, 0, len(ops))
	for _, o := range ops {
		switch {
		case o.Write != nil:
			converted = append(converted, op{Kind: opWrite, Path: o.Write.Path, Value: o.Write.Value})
		case o.Delete != nil:
			converted = append(converted, op{Kind: opDelete, Path: o.Delete.Path})
		default:
			return fmt.Errorf("coordination store transaction op with no operation set")
		}
	}
	_, err := c.applyOp(op{Kind: opTxn, Ops: converted})
	return err
}
