package storage

// formatVersion is bumped whenever the layout below changes incompatibly
const formatVersion = 2

const schemaSQL = `
-- Key/value metadata: name, mode, model, dimensions, count, graph parameters
CREATE TABLE IF NOT EXISTS index_meta (
    key TEXT PRIMARY KEY NOT NULL,
    value TEXT NOT NULL
);

-- Chunk texts; pos is the row of the matching vector
CREATE TABLE IF NOT EXISTS chunks (
    pos INTEGER PRIMARY KEY,
    text TEXT NOT NULL
);

-- Unit-normalised vectors as little-endian float32 blobs
CREATE TABLE IF NOT EXISTS vectors (
    pos INTEGER PRIMARY KEY REFERENCES chunks(pos) ON DELETE CASCADE,
    data BLOB NOT NULL
);

-- Exported HNSW graph keyed by row position (graph mode only)
CREATE TABLE IF NOT EXISTS graph (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    data BLOB NOT NULL
);
`
