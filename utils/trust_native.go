//go:build nativecerts

package utils

// DefaultTrustSource is selected at build time with the nativecerts tag
const DefaultTrustSource = TrustNative
