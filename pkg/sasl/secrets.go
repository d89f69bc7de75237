package sasl

// SecretBag collects sensitive buffers for later zeroing. It belongs to a
// single handle and is not safe for concurrent use.
type SecretBag struct {
	bufs [][]byte
}

// Track registers b for wiping and returns it.
func (s *SecretBag) Track(b []byte) []byte {
	if s != nil && len(b) > 0 {
		s.bufs = append(s.bufs, b)
	}
	return b
}

// Len returns the number of tracked buffers.
func (s *SecretBag) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bufs)
}

// Wipe zeroes every tracked buffer and forgets them.
func (s *SecretBag) Wipe() {
	if s == nil {
		return
	}
	for _, b := range s.bufs {
		clear(b)
	}
	s.bufs = nil
}
