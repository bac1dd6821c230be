package control

import "errors"

var (
	ErrCooldownActive  = errors.New("mutation cooldown active")
	ErrUnknownTarget   = errors.New("unknown target resource")
	ErrMutationFailed  = errors.New("mutation rejected by cluster")
	ErrInvalidReplicas = errors.New("invalid replica count")

	// ErrNamespaceForbidden marks a cronjob mutation outside the
	// configured namespace, rejected before any network call.
	ErrNamespaceForbidden = errors.New("cronjob namespace not allowed")
)
