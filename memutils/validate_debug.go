//go:build debug_mem_utils

package memutils

// freedPayloadMagicValue is the byte pattern ScrubPayload writes over released payloads
const freedPayloadMagicValue byte = 0xDD

// DebugEnabled reports whether memutils was built with the debug_mem_utils build tag
const DebugEnabled = true

// ScrubPayload overwrites a released payload with an easy-to-identify marker so that reads
// through a stale pointer stand out. This method no-ops unless the debug_mem_utils build tag is present.
func ScrubPayload(payload []byte) {
	for i := range payload {
		payload[i] = freedPayloadMagicValue
	}
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}
