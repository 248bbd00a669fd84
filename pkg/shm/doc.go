// Package shm provides the single-message shared memory transport behind a
// rendezvous channel.
//
// A segment holds a 16-byte header followed by the payload area:
//
//	offset 0   poison word (uint64, atomic)
//	offset 8   length word (uint64, last encoded payload length)
//	offset 16  payload, Cap() bytes
//
// The buffer itself does no synchronization. Callers serialize access with
// the channel's semaphore handshake.
//
// Example usage:
//
//	buf, err := shm.Open(ctx, shm.OpenOptions{Key: 0x1234, Size: shm.DefaultSize, Create: true})
//	// ...
//	_, err = buf.Write([]byte("hello."))
//	msg, err := buf.Read()
package shm
