package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS containers (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS blobs (
	container     TEXT NOT NULL,
	name          TEXT NOT NULL,
	content       BLOB,
	content_md5   TEXT NOT NULL,
	last_modified INTEGER NOT NULL,
	etag          TEXT NOT NULL,
	PRIMARY KEY (container, name)
);`

type sqliteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend 打开（或创建）SQLite 数据库。path 为空时使用进程内的
// 私有内存数据库。
func NewSQLiteBackend(path string) (Backend, error) {
	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:perfcache-%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// 单连接串行写入，避免 SQLITE_BUSY。
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	if path != "" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}
	return &sqliteBackend{db: db}, nil
}

func (s *sqliteBackend) CreateContainer(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO containers (name) VALUES (?)", name)
	return err
}

func (s *sqliteBackend) Containers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM containers ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *sqliteBackend) PutBlob(ctx context.Context, container, name string, content []byte, props Properties) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := containerExists(ctx, tx, container); err != nil {
			return err
		}
		if content == nil {
			content = []byte{}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO blobs (container, name, content, content_md5, last_modified, etag)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (container, name) DO UPDATE SET
				content = excluded.content,
				content_md5 = excluded.content_md5,
				last_modified = excluded.last_modified,
				etag = excluded.etag`,
			container, name, content, props.ContentMD5, props.LastModified.Unix(), props.ETag)
		return err
	})
}

func (s *sqliteBackend) GetBlob(ctx context.Context, container, name string) (*Blob, error) {
	var blob *Blob
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := containerExists(ctx, tx, container); err != nil {
			return err
		}
		var (
			content      []byte
			md5          string
			lastModified int64
			etag         string
		)
		err := tx.QueryRowContext(ctx,
			"SELECT content, content_md5, last_modified, etag FROM blobs WHERE container = ? AND name = ?",
			container, name).Scan(&content, &md5, &lastModified, &etag)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBlobNotFound
		}
		if err != nil {
			return err
		}
		blob = &Blob{
			Container: container,
			Name:      name,
			Content:   content,
			Properties: Properties{
				ContentMD5:   md5,
				LastModified: time.Unix(lastModified, 0).UTC(),
				ETag:         etag,
				Size:         int64(len(content)),
			},
		}
		return nil
	})
	return blob, err
}

func (s *sqliteBackend) DeleteBlob(ctx context.Context, container, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := containerExists(ctx, tx, container); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM blobs WHERE container = ? AND name = ?", container, name)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrBlobNotFound
		}
		return nil
	})
}

func (s *sqliteBackend) Close() error {
	return s.db.Close()
}

func (s *sqliteBackend) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func containerExists(ctx context.Context, tx *sql.Tx, name string) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM containers WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrContainerNotFound
	}
	return err
}
