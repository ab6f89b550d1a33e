package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// PackageFields 描述一次包级操作的对象，供 registry 与 archive 日志复用。
func PackageFields(name, version string) logrus.Fields {
	fields := logrus.Fields{"package": name}
	if version != "" {
		fields["version"] = version
	}
	return fields
}

// RequestFields 提供请求级字段，供访问日志与错误日志复用。
func RequestFields(requestID, method, path string, status int, cacheTag string) logrus.Fields {
	fields := logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
	}
	if cacheTag != "" {
		fields["cache_tag"] = cacheTag
	}
	return fields
}
