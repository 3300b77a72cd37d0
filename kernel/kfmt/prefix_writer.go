package kfmt

import (
	"bytes"
	"io"
)

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// prefix at the beginning of each line.
type PrefixWriter struct {
	// A writer where all writes get sent to. If nil, output goes wherever
	// Printf output goes.
	Sink io.Writer

	// The prefix injected at the beginning of each line.
	Prefix []byte

	// midLine is set while the current line has already been prefixed.
	midLine bool
}

// Write forwards p to the sink, emitting the prefix before the first byte of
// every line. The prefix is not included in the returned byte count.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var (
		written int
		sink    = w.sink()
	)

	for len(p) != 0 {
		if !w.midLine {
			if _, err := sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		chunk := p
		if eol := bytes.IndexByte(p, '\n'); eol != -1 {
			chunk = p[:eol+1]
			w.midLine = false
		}

		n, err := sink.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}

		p = p[len(chunk):]
	}

	return written, nil
}

func (w *PrefixWriter) sink() io.Writer {
	switch {
	case w.Sink != nil:
		return w.Sink
	case outputSink != nil:
		return outputSink
	default:
		return &earlyPrintBuffer
	}
}
