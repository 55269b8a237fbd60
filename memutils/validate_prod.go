//go:build !debug_mem_utils

package memutils

// DebugEnabled reports whether memutils was built with the debug_mem_utils build tag
const DebugEnabled = false

// ScrubPayload overwrites a released payload with an easy-to-identify marker so that reads
// through a stale pointer stand out. This method no-ops unless the debug_mem_utils build tag is present.
func ScrubPayload(payload []byte) {
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
}
