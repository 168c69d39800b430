package pipeline

import (
	"bytes"
	"io"
	"sync"
)

// prefixWriter writes each line it receives to w, preceded by prefix.
type prefixWriter struct {
	mu     sync.Mutex
	w      io.Writer
	prefix []byte
	buf    bytes.Buffer
}

func newPrefixWriter(w io.Writer, prefix string) *prefixWriter {
	return &prefixWriter{w: w, prefix: []byte(prefix)}
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Write(b)
	for {
		i := bytes.IndexByte(p.buf.Bytes(), '\n')
		if i < 0 {
			return len(b), nil
		}
		if err := p.emit(p.buf.Next(i + 1)); err != nil {
			return len(b), err
		}
	}
}

// Flush writes any incomplete last line.
func (p *prefixWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.Len() == 0 {
		return nil
	}
	return p.emit(append(p.buf.Next(p.buf.Len()), '\n'))
}

func (p *prefixWriter) emit(line []byte) error {
	_, err := p.w.Write(append(append([]byte{}, p.prefix...), line...))
	return err
}
