package codec

import (
	"errors"
	"fmt"
	"io"
)

// errAborted unwinds a parked decode goroutine on Reset.
var errAborted = errors.New("codec: stream aborted")

// pump drives a reader-style decoder from push-style Update calls. The
// decoder runs on its own goroutine but only while an Update call is
// blocked waiting for it, so exactly one side is ever running. The
// goroutine parks whenever it needs input that has not been supplied yet
// or has filled the caller's output window.
type pump struct {
	// run decodes everything from r into w.
	run func(r io.Reader, w io.Writer) error

	in    []byte
	out   []byte
	final bool

	produced int
	running  bool
	done     bool
	aborted  bool
	err      error

	resume chan struct{}
	yield  chan struct{}
}

func newPump(run func(r io.Reader, w io.Writer) error) *pump {
	return &pump{run: run}
}

// Update implements Decompressor.Update.
func (p *pump) Update(dst, src []byte, final bool) (int, int, error) {
	if p.done {
		return 0, 0, p.err
	}
	if !p.running && final && len(src) == 0 {
		p.done = true
		return 0, 0, nil
	}

	p.in, p.out, p.final = src, dst, final
	p.produced = 0
	if !p.running {
		p.running = true
		p.resume = make(chan struct{})
		p.yield = make(chan struct{})
		go p.loop()
	}
	p.resume <- struct{}{}
	<-p.yield

	consumed := len(src) - len(p.in)
	produced := p.produced
	p.in, p.out = nil, nil
	if p.done {
		return consumed, produced, p.err
	}
	return consumed, produced, nil
}

// Reset stops a parked decoder and returns the pump to its initial state.
func (p *pump) Reset() {
	if p.running && !p.done {
		p.aborted = true
		p.resume <- struct{}{}
		<-p.yield
	}
	p.in, p.out = nil, nil
	p.final = false
	p.produced = 0
	p.running = false
	p.done = false
	p.aborted = false
	p.err = nil
}

func (p *pump) loop() {
	<-p.resume
	err := p.run(pumpReader{p}, pumpWriter{p})
	switch {
	case p.aborted:
		err = nil
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		err = fmt.Errorf("%w: %v", ErrInputIncomplete, err)
	case errors.Is(err, ErrBufferTooSmall), errors.Is(err, ErrChecksumMismatch):
	default:
		err = fmt.Errorf("%w: %v", ErrDecompressFailed, err)
	}
	p.err = err
	p.done = true
	p.yield <- struct{}{}
}

// park hands control back to the Update caller until the next call.
func (p *pump) park() {
	p.yield <- struct{}{}
	<-p.resume
}

type pumpReader struct{ p *pump }

func (r pumpReader) Read(b []byte) (int, error) {
	p := r.p
	for len(p.in) == 0 {
		if p.aborted {
			return 0, errAborted
		}
		if p.final {
			return 0, io.EOF
		}
		p.park()
	}
	if p.aborted {
		return 0, errAborted
	}
	n := copy(b, p.in)
	p.in = p.in[n:]
	return n, nil
}

type pumpWriter struct{ p *pump }

func (w pumpWriter) Write(b []byte) (int, error) {
	p := w.p
	written := 0
	for len(b) > 0 {
		for len(p.out) == 0 {
			if p.aborted {
				return written, errAborted
			}
			p.park()
		}
		if p.aborted {
			return written, errAborted
		}
		n := copy(p.out, b)
		p.out = p.out[n:]
		p.produced += n
		b = b[n:]
		written += n
	}
	return written, nil
}
