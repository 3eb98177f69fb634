// Package api exposes a storage.Account over a blob-service style HTTP
// surface: PUT, GET, HEAD and DELETE on /{container}/{blob}, plus a request
// counter at /-/stats.
package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/perfcache/perfcache/internal/storage"
)

// ServiceVersion 是响应头 x-ms-version 的取值。
const ServiceVersion = "2021-08-06"

// Server 把 storage.Account 暴露为 HTTP 接口。
type Server struct {
	account *storage.Account
	logger  *logrus.Logger
	stats   *Stats
}

// New 构造 HTTP 接口层。
func New(account *storage.Account, logger *logrus.Logger) (*Server, error) {
	if account == nil {
		return nil, errors.New("account is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Server{account: account, logger: logger, stats: newStats()}, nil
}

// Stats 返回请求计数器。
func (s *Server) Stats() *Stats {
	return s.stats
}

// Routes 构建 chi 路由。Blob 名允许包含 “/”。
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/-/stats", s.handleStats)

	r.Group(func(r chi.Router) {
		r.Use(s.countRequests)
		r.Put("/{container}/*", s.handlePut)
		r.Get("/{container}/*", s.handleGet)
		r.Head("/{container}/*", s.handleGet)
		r.Delete("/{container}/*", s.handleDelete)
	})
	return r
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	container, blob, ok := s.blobParams(w, r)
	if !ok {
		return
	}
	content, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "InvalidInput", "Unable to read the request body.")
		return
	}

	props, err := s.account.Put(r.Context(), container, blob, content)
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}

	h := w.Header()
	setMetadataHeaders(h, props)
	h.Set("x-ms-request-server-encrypted", "true")
	h.Set("Content-Length", "0")
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	container, blob, ok := s.blobParams(w, r)
	if !ok {
		return
	}
	stored, err := s.account.Get(r.Context(), container, blob)
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}

	h := w.Header()
	setMetadataHeaders(h, stored.Properties)
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Accept-Ranges", "bytes")
	h.Set("x-ms-blob-type", "BlockBlob")
	h.Set("x-ms-server-encrypted", "true")

	content := stored.Content
	status := http.StatusOK
	rangeHeader := r.Header.Get("x-ms-range")
	if rangeHeader == "" {
		rangeHeader = r.Header.Get("Range")
	}
	if rangeHeader != "" {
		start, end, err := parseByteRange(rangeHeader, stored.Size)
		if err != nil {
			h.Set("Content-Range", "bytes */"+strconv.FormatInt(stored.Size, 10))
			s.writeError(w, r, http.StatusRequestedRangeNotSatisfiable, "InvalidRange", "The range specified is invalid for the current size of the resource.")
			return
		}
		content = content[start : end+1]
		status = http.StatusPartialContent
		h.Set("Content-Range", formatContentRange(start, end, stored.Size))
		// 分段读取时 Content-MD5 描述的是整个 Blob，按服务行为改为单独的头。
		h.Del("Content-MD5")
		h.Set("x-ms-blob-content-md5", stored.ContentMD5)
	}

	h.Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(content)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	container, blob, ok := s.blobParams(w, r)
	if !ok {
		return
	}
	if err := s.account.Delete(r.Context(), container, blob); err != nil {
		s.writeStorageError(w, r, err)
		return
	}
	w.Header().Set("x-ms-delete-type-permanent", "true")
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = writeJSON(w, statsPayload{Account: s.account.Name(), Requests: s.stats.Snapshot()})
}

func (s *Server) blobParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	container := chi.URLParam(r, "container")
	blob := chi.URLParam(r, "*")
	if container == "" || blob == "" {
		s.writeError(w, r, http.StatusBadRequest, "InvalidUri", "The requested URI does not represent any resource on the server.")
		return "", "", false
	}
	return container, blob, true
}

func setMetadataHeaders(h http.Header, props storage.Properties) {
	h.Set("Content-MD5", props.ContentMD5)
	h.Set("Last-Modified", props.LastModified.UTC().Format(http.TimeFormat))
	h.Set("ETag", props.ETag)
}

// requestLogger 为每个请求生成 x-ms-request-id 并记录结构化日志。
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("x-ms-request-id", requestID)
		w.Header().Set("x-ms-version", ServiceVersion)
		w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.WithFields(logrus.Fields{
			"action":     "storage",
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"request_id": requestID,
			"elapsed_ms": time.Since(started).Milliseconds(),
		}).Info("storage_request")
	})
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.stats.Record(r.Method)
		next.ServeHTTP(w, r)
	})
}
