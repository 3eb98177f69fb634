// Package service 维护“服务标签 → 缓存键请求头白名单”的静态映射。
//
// 每个上游服务（blob、file 等）声明哪些请求头会影响响应内容，例如 blob
// 读取依赖 x-ms-range。指纹计算只会把白名单中的请求头纳入缓存键，其余请求头
// （时间戳、签名、客户端请求 ID）全部忽略，这样重复的基准测试请求才能命中缓存。
package service
