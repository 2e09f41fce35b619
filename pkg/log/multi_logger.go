package log

// MultiLogger fans events out to several loggers, typically an .ilog
// FileLogger plus a SlogAdapter for debug output.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger combines loggers. Nil entries and NoopLoggers are
// skipped and nested MultiLoggers are flattened.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		m.add(l)
	}
	return m
}

func (m *MultiLogger) add(l Logger) {
	switch v := l.(type) {
	case nil, NoopLogger:
	case *MultiLogger:
		if v != nil {
			for _, inner := range v.loggers {
				m.add(inner)
			}
		}
	default:
		m.loggers = append(m.loggers, l)
	}
}

// Len returns the number of sinks.
func (m *MultiLogger) Len() int { return len(m.loggers) }

// Log delivers event to every sink in order.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
