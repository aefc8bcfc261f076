package graph

// SQLite schema DDL constants

const schemaNodes = `
CREATE TABLE IF NOT EXISTS nodes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at DATETIME NOT NULL,
    modified_at DATETIME NOT NULL
)`

// Label order is insertion order, kept by rowid.
const schemaNodeLabels = `
CREATE TABLE IF NOT EXISTS node_labels (
    node_id INTEGER NOT NULL,
    label TEXT NOT NULL,
    UNIQUE(node_id, label)
)`

// Values are stored as JSON.
const schemaNodeProperties = `
CREATE TABLE IF NOT EXISTS node_properties (
    node_id INTEGER NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (node_id, key)
)`

// Index definitions
const indexNodeLabelsNode = `CREATE INDEX IF NOT EXISTS idx_node_labels_node ON node_labels(node_id)`
const indexNodeLabelsLabel = `CREATE INDEX IF NOT EXISTS idx_node_labels_label ON node_labels(label)`

// SQLite pragmas
const pragmaWAL = `PRAGMA journal_mode=WAL`
const pragmaBusyTimeout = `PRAGMA busy_timeout=5000`
const pragmaSynchronous = `PRAGMA synchronous=NORMAL`

// allSchemaStatements returns all schema DDL in order
func allSchemaStatements() []string {
	return []string{
		schemaNodes,
		schemaNodeLabels,
		schemaNodeProperties,
		indexNodeLabelsNode,
		indexNodeLabelsLabel,
	}
}

// allPragmas returns all pragma statements
func allPragmas() []string {
	return []string{
		pragmaWAL,
		pragmaBusyTimeout,
		pragmaSynchronous,
	}
}
