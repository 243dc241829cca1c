package vip

import "log"

// backlog is a ring of lazily formatted log lines, so that tracing every
// instruction costs no formatting unless the trace is eventually emitted.
type backlog struct {
	entries []logEntry
	n       int
}

type logEntry struct {
	format string
	args   []any
}

const maxBacklog = 100

func (b *backlog) LazyPrintf(format string, args ...any) {
	if b.n < len(b.entries) {
		b.entries[b.n] = logEntry{format, args}
	} else {
		b.entries = append(b.entries, logEntry{format, args})
	}
	b.n = (b.n + 1) % maxBacklog
}

// Emit logs the retained entries, oldest first.
func (b *backlog) Emit() {
	b.Each(func(format string, args ...any) { log.Printf(format, args...) })
}

func (b *backlog) Each(f func(format string, args ...any)) {
	if len(b.entries) == 0 {
		return
	}
	for i := b.n; ; i++ {
		i %= len(b.entries)
		f(b.entries[i].format, b.entries[i].args...)
		if (i+1)%maxBacklog == b.n {
			break
		}
	}
}

func (b *backlog) Reset() {
	b.entries = b.entries[:0]
	b.n = 0
}
