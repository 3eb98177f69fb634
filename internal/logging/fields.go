package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供监听端口/请求/命中状态字段，供代理请求日志复用。
func RequestFields(listener, method, uri, fingerprint string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"listener":    listener,
		"method":      method,
		"uri":         uri,
		"fingerprint": fingerprint,
		"cache_hit":   cacheHit,
	}
}
