// Package session owns everything about one connected client from the
// moment its socket is accepted to the moment it disconnects: the
// five-step mutual-authentication handshake, the resulting AES session,
// and the handle/email bookkeeping the dispatcher and catalog layers key
// off of.
package session

import "sort"

// Handle identifies one client for the lifetime of its connection.
// Handles recycle densely: AllocateHandle reuses the smallest
// currently-unused positive integer.
type Handle uint32

// AllocateHandle returns the smallest Handle not present in inUse, never
// 0: handle 0 is reserved and never issued to a connection.
func AllocateHandle(inUse []Handle) Handle {
	sorted := make([]Handle, len(inUse))
	copy(sorted, inUse)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	next := Handle(1)
	for _, h := range sorted {
		if h != next {
			break
		}
		next++
	}
	return next
}
