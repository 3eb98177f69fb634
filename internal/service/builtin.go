package service

// 内置服务：blob/file 的读取结果取决于请求的字节范围，其余服务不区分请求头。
func init() {
	MustRegister(Profile{
		Key:         defaultKey,
		Description: "Generic upstream, no request header is part of the cache key",
	})
	MustRegister(Profile{
		Key:             "blob",
		Description:     "Blob storage, byte-range reads are cached per range",
		CacheKeyHeaders: []string{"x-ms-range", "Range"},
	})
	MustRegister(Profile{
		Key:             "file",
		Description:     "File share storage, byte-range reads are cached per range",
		CacheKeyHeaders: []string{"x-ms-range", "Range"},
	})
}
