//go:build !nativecerts

package utils

// DefaultTrustSource is selected at build time, see trust_native.go
const DefaultTrustSource = TrustBuiltin
