//go:build !appengine

package bytes

import "unsafe"

// ByteToString convert bytes to string without copying
func ByteToString(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

// StringToByte convert string to bytes without copying.
// The returned slice must not be mutated.
func StringToByte(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
