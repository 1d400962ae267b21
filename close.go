package ketgo

// Close releases the pages, the staging buffer and the exchange buffers held by
// this rank. File-backed pages are removed. The communicator is not closed.
func (s *Simulator) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	return s.release()
}
