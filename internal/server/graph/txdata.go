package graph

// LabelEntry records a label assigned to or removed from a node.
type LabelEntry struct {
	Node  *Node
	Label string
}

// PropertyEntry records a property assigned to or removed from a node.
// Previous is nil when the key had no value before the change.
type PropertyEntry struct {
	Node     *Node
	Key      string
	Value    any
	Previous any
}

// TransactionData is the net change of a transaction. Changes that cancel
// out within the transaction are not reported, and a node created and
// deleted in the same transaction does not appear at all.
type TransactionData struct {
	created          []*Node
	assignedLabels   []LabelEntry
	removedLabels    []LabelEntry
	assignedProps    []PropertyEntry
	removedProps     []PropertyEntry
	deleted          map[int64]bool
	createdThisTx    map[int64]bool
	existedAtTxStart map[int64]map[string]bool
}

func newTransactionData() *TransactionData {
	return &TransactionData{
		deleted:          make(map[int64]bool),
		createdThisTx:    make(map[int64]bool),
		existedAtTxStart: make(map[int64]map[string]bool),
	}
}

func (d *TransactionData) CreatedNodes() []*Node { return append([]*Node(nil), d.created...) }

func (d *TransactionData) AssignedLabels() []LabelEntry {
	return append([]LabelEntry(nil), d.assignedLabels...)
}

func (d *TransactionData) RemovedLabels() []LabelEntry {
	return append([]LabelEntry(nil), d.removedLabels...)
}

func (d *TransactionData) AssignedNodeProperties() []PropertyEntry {
	return append([]PropertyEntry(nil), d.assignedProps...)
}

func (d *TransactionData) RemovedNodeProperties() []PropertyEntry {
	return append([]PropertyEntry(nil), d.removedProps...)
}

// IsDeleted reports whether the node with id was deleted by the transaction.
func (d *TransactionData) IsDeleted(id int64) bool { return d.deleted[id] }

// Empty reports whether the transaction changed anything.
func (d *TransactionData) Empty() bool {
	return len(d.created) == 0 && len(d.assignedLabels) == 0 && len(d.removedLabels) == 0 &&
		len(d.assignedProps) == 0 && len(d.removedProps) == 0 && len(d.deleted) == 0
}

func (d *TransactionData) nodeCreated(n *Node) {
	d.created = append(d.created, n)
	d.createdThisTx[n.id] = true
}

func (d *TransactionData) labelAssigned(n *Node, label string) {
	if i := indexLabel(d.removedLabels, n.id, label); i >= 0 {
		d.removedLabels = removeAt(d.removedLabels, i)
		return
	}
	d.assignedLabels = append(d.assignedLabels, LabelEntry{Node: n, Label: label})
}

func (d *TransactionData) labelRemoved(n *Node, label string) {
	if i := indexLabel(d.assignedLabels, n.id, label); i >= 0 {
		d.assignedLabels = removeAt(d.assignedLabels, i)
		return
	}
	d.removedLabels = append(d.removedLabels, LabelEntry{Node: n, Label: label})
}

// propertyAssigned must be called before the node view is updated.
func (d *TransactionData) propertyAssigned(n *Node, key string, value any) {
	prev, had := n.props[key]
	d.keyExisted(n, key, had)

	if i := indexProperty(d.removedProps, n.id, key); i >= 0 {
		d.removedProps = removeAt(d.removedProps, i)
	}
	if i := indexProperty(d.assignedProps, n.id, key); i >= 0 {
		d.assignedProps[i].Value = value
		d.assignedProps[i].Previous = prev
		return
	}
	d.assignedProps = append(d.assignedProps, PropertyEntry{
		Node: n, Key: key, Value: value, Previous: prev,
	})
}

// propertyRemoved must be called before the node view is updated.
func (d *TransactionData) propertyRemoved(n *Node, key string) {
	prev := n.props[key]
	existed := d.keyExisted(n, key, true)

	if i := indexProperty(d.assignedProps, n.id, key); i >= 0 {
		d.assignedProps = removeAt(d.assignedProps, i)
	}
	if !existed || indexProperty(d.removedProps, n.id, key) >= 0 {
		return
	}
	d.removedProps = append(d.removedProps, PropertyEntry{
		Node: n, Key: key, Previous: prev,
	})
}

// keyExisted remembers, on first touch, whether key was set before the
// transaction changed it.
func (d *TransactionData) keyExisted(n *Node, key string, hadNow bool) bool {
	keys, ok := d.existedAtTxStart[n.id]
	if !ok {
		keys = make(map[string]bool)
		d.existedAtTxStart[n.id] = keys
	}
	existed, seen := keys[key]
	if !seen {
		existed = hadNow && !d.createdThisTx[n.id]
		keys[key] = existed
	}
	return existed
}

func (d *TransactionData) nodeDeleted(n *Node) {
	d.deleted[n.id] = true
	if d.createdThisTx[n.id] {
		d.forget(n.id)
		return
	}
	for _, l := range n.labels {
		d.labelRemoved(n, l)
	}
	for _, k := range n.PropertyKeys() {
		d.propertyRemoved(n, k)
	}
}

// forget drops every record of the node.
func (d *TransactionData) forget(id int64) {
	d.created = filter(d.created, func(n *Node) bool { return n.id != id })
	d.assignedLabels = filter(d.assignedLabels, func(e LabelEntry) bool { return e.Node.id != id })
	d.removedLabels = filter(d.removedLabels, func(e LabelEntry) bool { return e.Node.id != id })
	d.assignedProps = filter(d.assignedProps, func(e PropertyEntry) bool { return e.Node.id != id })
	d.removedProps = filter(d.removedProps, func(e PropertyEntry) bool { return e.Node.id != id })
}

func indexLabel(entries []LabelEntry, id int64, label string) int {
	for i, e := range entries {
		if e.Node.id == id && e.Label == label {
			return i
		}
	}
	return -1
}

func indexProperty(entries []PropertyEntry, id int64, key string) int {
	for i, e := range entries {
		if e.Node.id == id && e.Key == key {
			return i
		}
	}
	return -1
}

func removeAt[T any](s []T, i int) []T {
	return append(s[:i:i], s[i+1:]...)
}

func filter[T any](s []T, keep func(T) bool) []T {
	var out []T
	for _, v := range s {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
