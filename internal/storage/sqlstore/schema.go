package sqlstore

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sites (
    id          BIGSERIAL PRIMARY KEY,
    url         TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL,
    status      TEXT NOT NULL,
    status_time TIMESTAMPTZ NOT NULL,
    last_error  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS pages (
    id      BIGSERIAL PRIMARY KEY,
    site_id BIGINT NOT NULL REFERENCES sites(id),
    path    TEXT NOT NULL,
    code    INTEGER NOT NULL,
    content TEXT NOT NULL,
    UNIQUE (site_id, path)
);

CREATE TABLE IF NOT EXISTS lemmas (
    id        BIGSERIAL PRIMARY KEY,
    site_id   BIGINT NOT NULL REFERENCES sites(id),
    lemma     TEXT NOT NULL,
    frequency INTEGER NOT NULL,
    UNIQUE (site_id, lemma)
);

CREATE TABLE IF NOT EXISTS postings (
    id       BIGSERIAL PRIMARY KEY,
    page_id  BIGINT NOT NULL REFERENCES pages(id),
    lemma_id BIGINT NOT NULL REFERENCES lemmas(id),
    rank     DOUBLE PRECISION NOT NULL,
    UNIQUE (page_id, lemma_id)
);

CREATE INDEX IF NOT EXISTS idx_postings_lemma ON postings(lemma_id);
CREATE INDEX IF NOT EXISTS idx_lemmas_text ON lemmas(lemma);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sites (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    url         TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL,
    status      TEXT NOT NULL,
    status_time DATETIME NOT NULL,
    last_error  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS pages (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id INTEGER NOT NULL REFERENCES sites(id),
    path    TEXT NOT NULL,
    code    INTEGER NOT NULL,
    content TEXT NOT NULL,
    UNIQUE (site_id, path)
);

CREATE TABLE IF NOT EXISTS lemmas (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id   INTEGER NOT NULL REFERENCES sites(id),
    lemma     TEXT NOT NULL,
    frequency INTEGER NOT NULL,
    UNIQUE (site_id, lemma)
);

CREATE TABLE IF NOT EXISTS postings (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    page_id  INTEGER NOT NULL REFERENCES pages(id),
    lemma_id INTEGER NOT NULL REFERENCES lemmas(id),
    rank     REAL NOT NULL,
    UNIQUE (page_id, lemma_id)
);

CREATE INDEX IF NOT EXISTS idx_postings_lemma ON postings(lemma_id);
CREATE INDEX IF NOT EXISTS idx_lemmas_text ON lemmas(lemma);
`
