package api

import (
	"encoding/xml"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/perfcache/perfcache/internal/storage"
)

type errorBody struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

func (s *Server) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrContainerNotFound):
		s.writeError(w, r, http.StatusNotFound, "ContainerNotFound", "The specified container does not exist.")
	case errors.Is(err, storage.ErrBlobNotFound):
		s.writeError(w, r, http.StatusNotFound, "BlobNotFound", "The specified blob does not exist.")
	default:
		s.logger.WithFields(logrus.Fields{
			"action": "storage",
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("storage_backend_failed")
		s.writeError(w, r, http.StatusInternalServerError, "InternalError", "The server encountered an internal error. Please retry the request.")
	}
}

// writeError 输出与 Blob 服务一致的 XML 错误体，并设置 x-ms-error-code。
// HEAD 请求只返回状态码与头部。
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := w.Header().Get("x-ms-request-id")
	var b strings.Builder
	b.WriteString(message)
	if requestID != "" {
		b.WriteString("\nRequestId:")
		b.WriteString(requestID)
	}
	b.WriteString("\nTime:")
	b.WriteString(time.Now().UTC().Format("2006-01-02T15:04:05.0000000Z"))

	payload, err := xml.Marshal(errorBody{Code: code, Message: b.String()})
	if err != nil {
		http.Error(w, code, status)
		return
	}
	body := append([]byte(xml.Header), payload...)

	h := w.Header()
	h.Set("x-ms-error-code", code)
	h.Set("Content-Type", "application/xml")
	h.Del("Content-MD5")
	h.Del("ETag")
	h.Del("Last-Modified")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(body)
}
