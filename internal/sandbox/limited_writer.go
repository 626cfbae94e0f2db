package sandbox

import "io"

// limitedWriter caps the bytes forwarded to w and counts the rest.
// It always reports full writes so the copying goroutine in os/exec keeps
// draining the pipe.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func newLimitedWriter(w io.Writer, max int64) *limitedWriter {
	return &limitedWriter{w: w, max: max}
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.max <= 0 {
		return lw.w.Write(p)
	}

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
