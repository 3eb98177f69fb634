// Package storage models the blob-storage origin used by the storage mock:
// an Account owns pre-seeded containers, each container owns blobs keyed by
// name. Blob metadata (Content-MD5, Last-Modified, ETag) is assigned on every
// write. Two backends are available, an in-memory map and a SQLite database.
package storage
