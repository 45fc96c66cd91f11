package httpapi

import "github.com/relaywire/gatewayd/pkg/identity"

// newTestExtractor returns an Extractor with no trusted-proxy CIDRs
// configured, matching the default dev-mode "trust-all" posture, so
// tests don't need to fake a peer address.
func newTestExtractor() *identity.Extractor {
	return identity.New(nil)
}
