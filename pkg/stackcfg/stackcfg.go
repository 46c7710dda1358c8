// Package stackcfg holds the tiny machine-word configuration threaded
// explicitly through the layout core's exported operations: word size in
// bytes and word width in bits. No global state; every caller passes its
// own Config.
package stackcfg

// Config is the machine-word shape the allocator and SP manifestation
// align and size against.
type Config struct {
	WordSize  int // bytes
	WordWidth int // bits
}
