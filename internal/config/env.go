package config

import "time"

// Env key constants. All configuration env vars use the KUBEBRIDGE_ prefix;
// duration values support explicit units (e.g. 5m, 40s, 2h).

// Cluster API server hostname or IP. Required.
const envKeyHost = "KUBEBRIDGE_HOST"

// Cluster API server port.
const (
	envKeyPort     = "KUBEBRIDGE_PORT"
	defaultPort    = 6443
	envMinPort     = 1
	envMaxPortSpan = 65535
)

// Bearer token presented on every cluster API call. Required.
const envKeyAPIToken = "KUBEBRIDGE_API_TOKEN" //nolint:gosec // env key, not a credential

// Optional path to a PEM CA bundle used to verify the API server certificate.
const envKeyCACertFile = "KUBEBRIDGE_CA_CERT_FILE"

// Whether to verify the API server TLS certificate.
const envKeyVerifyTLS = "KUBEBRIDGE_VERIFY_TLS"

// Display name of the cluster, used only in logs.
const envKeyClusterName = "KUBEBRIDGE_CLUSTER_NAME"

// Namespace to monitor when KUBEBRIDGE_ALL_NAMESPACES is false.
const envKeyNamespace = "KUBEBRIDGE_NAMESPACE"

// Monitor every namespace instead of a single one.
const envKeyAllNamespaces = "KUBEBRIDGE_ALL_NAMESPACES"

// Snapshot refresh interval. Units: s, m, h (e.g. 60s, 5m).
const (
	envKeyInterval = "KUBEBRIDGE_INTERVAL"
	envMinInterval = 10 * time.Second
)

// How long a mutation's background verification poll may run.
const (
	envKeyScaleVerificationTimeout = "KUBEBRIDGE_SCALE_VERIFICATION_TIMEOUT"
	envMinScaleVerificationTimeout = 5 * time.Second
)

// Window after a mutation during which periodic reads and further
// mutations are suppressed.
const (
	envKeyScaleCooldown = "KUBEBRIDGE_SCALE_COOLDOWN"
	envMinScaleCooldown = time.Second
)

// Log level: debug, info, warn, error.
const envKeyLogLevel = "KUBEBRIDGE_LOG_LEVEL"

// Log format: json or text.
const envKeyLogFormat = "KUBEBRIDGE_LOG_FORMAT"

// Port for the control-surface/health HTTP server.
const envKeyHTTPPort = "KUBEBRIDGE_HTTP_PORT"

// Port for Prometheus metrics (GET /metrics).
const envKeyMetricsPort = "KUBEBRIDGE_METRICS_PORT"
