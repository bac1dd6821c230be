package httpserver

import "time"

const (
	defaultPort        = "8080"
	defaultMetricsPort = "9090"

	readTimeout       = 3 * time.Second
	readHeaderTimeout = 3 * time.Second
	writeTimeout      = 5 * time.Second
	idleTimeout       = 60 * time.Second
	maxHeaderBytes    = 1 << 12 // 4kb

	// The API surface proxies cluster calls. A refresh runs five listings
	// across two transports with a 10s ceiling each, so the write deadline
	// must outlast that worst case or a degraded cluster loses the error
	// body to a closed connection.
	apiWriteTimeout = 2 * time.Minute

	// refreshTimeout must stay below apiWriteTimeout.
	refreshTimeout = 100 * time.Second
)
