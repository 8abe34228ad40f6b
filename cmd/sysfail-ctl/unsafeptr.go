package main

import "unsafe"

// uintptrOf returns the address of a byte for use as a
// PR_SET_SYSCALL_USER_DISPATCH selector argument.
func uintptrOf(b *byte) uintptr {
	return uintptr(unsafe.Pointer(b))
}
