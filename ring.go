package fatlog

// ring is a fixed capacity byte FIFO used as the overflow buffer of a
// streaming file.
type ring struct {
	buf   []byte
	begin int // next byte to read
	end   int // next byte to write
	used  int
}

func newRing(size int) *ring {
	return &ring{buf: make([]byte, size)}
}

func (r *ring) Len() int {
	return r.used
}

func (r *ring) Cap() int {
	return len(r.buf)
}

func (r *ring) Free() int {
	return len(r.buf) - r.used
}

// Write copies as much of p as fits and returns the number of bytes taken.
func (r *ring) Write(p []byte) int {
	n := 0
	for n < len(p) && r.used < len(r.buf) {
		limit := len(r.buf)
		if r.begin > r.end || (r.begin == r.end && r.used > 0) {
			limit = r.begin
		}
		c := copy(r.buf[r.end:limit], p[n:])
		n += c
		r.used += c
		r.end = (r.end + c) % len(r.buf)
	}
	return n
}

// Read moves up to len(p) bytes out of the ring into p.
func (r *ring) Read(p []byte) int {
	n := 0
	for n < len(p) && r.used > 0 {
		limit := len(r.buf)
		if r.end > r.begin {
			limit = r.end
		}
		c := copy(p[n:], r.buf[r.begin:limit])
		n += c
		r.used -= c
		r.begin = (r.begin + c) % len(r.buf)
	}
	return n
}

func (r *ring) Reset() {
	r.begin, r.end, r.used = 0, 0, 0
}
