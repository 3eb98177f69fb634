package proxy

import (
	"bytes"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"

	"github.com/perfcache/perfcache/internal/exchange"
)

// DecodeRequest 把 Fiber 请求转换为与传输无关的 exchange.Request。
// 路径保留原始编码，请求体复制一份，避免 fasthttp 复用缓冲区。
func DecodeRequest(c fiber.Ctx) exchange.Request {
	req := c.Request()
	uri := req.URI()

	path := string(uri.PathOriginal())
	if path == "" {
		path = string(uri.Path())
	}
	if path == "" {
		path = "/"
	}

	contentLength := int64(req.Header.ContentLength())
	var body []byte
	if contentLength > 0 {
		body = bytes.Clone(req.Body())
	}

	return exchange.Request{
		Method:        c.Method(),
		Scheme:        c.Scheme(),
		Host:          string(req.Host()),
		Path:          path,
		RawQuery:      string(uri.QueryString()),
		Proto:         c.Protocol(),
		Header:        requestHeaders(&req.Header),
		Body:          body,
		ContentLength: contentLength,
	}
}

func requestHeaders(h *fasthttp.RequestHeader) http.Header {
	header := http.Header{}
	h.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}
