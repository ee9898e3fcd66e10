package stream

const defaultBufSize = 1024

// Option configures a Serializer.
type Option func(*config)

type config struct {
	buf int
}

// WithBuffer sets the number of events queued before HandleEvent blocks.
//
// Values < 0 are normalized to 0 (unbuffered).
func WithBuffer(n int) Option {
	return func(c *config) {
		c.buf = n
	}
}
