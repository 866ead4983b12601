package app

import "github.com/jsmooother/ej-development-sub001/pkg/logger"

const serviceName = "mediasync"

// ConfigureLogging installs the process logger described by the server section.
func ConfigureLogging(server ServerConfig) error {
	return logger.Init(logger.Options{
		Level:   server.LogLevel,
		Format:  server.LogFormat,
		Service: serviceName,
	})
}
