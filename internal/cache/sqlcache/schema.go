package sqlcache

// FormatVersion is the cache layout this engine writes.
const FormatVersion = 5

// ReadCompatVersion is the oldest engine format able to read a v5 cache.
// v5 only added columns and indexes a v4 reader ignores.
const ReadCompatVersion = 4

const tablesSQL = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS wikiwords (
	word                  TEXT PRIMARY KEY,
	created               REAL NOT NULL DEFAULT 0,
	modified              REAL NOT NULL DEFAULT 0,
	visited               REAL NOT NULL DEFAULT 0,
	filepath              TEXT NOT NULL DEFAULT '',
	filenamelowercase     TEXT NOT NULL DEFAULT '',
	filesignature         BLOB,
	readonly              INTEGER NOT NULL DEFAULT 0,
	metadataprocessed     INTEGER NOT NULL DEFAULT 0,
	presentationdatablock BLOB
);

CREATE TABLE IF NOT EXISTS wikirelations (
	word         TEXT NOT NULL,
	relation     TEXT NOT NULL,
	firstcharpos INTEGER NOT NULL DEFAULT -1,
	PRIMARY KEY (word, relation)
);

CREATE TABLE IF NOT EXISTS wikiwordattrs (
	word  TEXT NOT NULL,
	key   TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS todos (
	word  TEXT NOT NULL,
	key   TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS wikiwordmatchterms (
	matchterm    TEXT NOT NULL,
	type         INTEGER NOT NULL,
	word         TEXT NOT NULL,
	firstcharpos INTEGER NOT NULL DEFAULT -1,
	charlength   INTEGER NOT NULL DEFAULT -1
);

CREATE TABLE IF NOT EXISTS datablocks (
	unifiedname TEXT PRIMARY KEY,
	data        BLOB
);

CREATE TABLE IF NOT EXISTS datablocksexternal (
	unifiedname       TEXT PRIMARY KEY,
	filepath          TEXT NOT NULL,
	filenamelowercase TEXT NOT NULL,
	filesignature     BLOB
);
`

// indexesSQL is re-applied after every table rebuild.
const indexesSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS wikiwords_filenamelowercase
	ON wikiwords(filenamelowercase) WHERE filenamelowercase != '';
CREATE INDEX IF NOT EXISTS wikiwords_modified ON wikiwords(modified);
CREATE INDEX IF NOT EXISTS wikiwords_metadataprocessed ON wikiwords(metadataprocessed);
CREATE INDEX IF NOT EXISTS wikirelations_relation ON wikirelations(relation);
CREATE INDEX IF NOT EXISTS wikiwordattrs_word ON wikiwordattrs(word);
CREATE INDEX IF NOT EXISTS wikiwordattrs_key ON wikiwordattrs(key);
CREATE INDEX IF NOT EXISTS todos_word ON todos(word);
CREATE INDEX IF NOT EXISTS wikiwordmatchterms_matchterm ON wikiwordmatchterms(matchterm);
CREATE INDEX IF NOT EXISTS wikiwordmatchterms_word ON wikiwordmatchterms(word);
`

// columnDefaults fills columns a table rebuild adds. Values are SQL
// expressions evaluated against the old row.
var columnDefaults = map[string]map[string]string{
	"wikiwords": {
		"created":           "0",
		"modified":          "0",
		"visited":           "modified",
		"filepath":          "''",
		"filenamelowercase": "''",
		"readonly":          "0",
		"metadataprocessed": "0",
	},
	"wikirelations": {
		"firstcharpos": "-1",
	},
	"todos": {
		"key":   "'todo'",
		"value": "todo",
	},
}
