package tftp

import (
	"time"

	"github.com/sirupsen/logrus"
)

// options configure a transfer. The small functional-options set mirrors
// the shape of the teacher's SDO constructors (e.g. NewSDOClient's
// timeoutMs parameter), scaled down since there is no object dictionary to
// thread through here.
type options struct {
	mode    string
	retries int
	timeout time.Duration
	log     *logrus.Entry
}

// Option configures a Get or Put call.
type Option func(*options)

// WithMode sets the transfer mode string (octet, netascii, mail). The
// engine always treats the payload as opaque bytes; mode is only echoed on
// the wire (spec.md §3).
func WithMode(mode string) Option {
	return func(o *options) { o.mode = mode }
}

// WithRetries overrides the per-packet retry budget (default
// DefaultRetries).
func WithRetries(n int) Option {
	return func(o *options) { o.retries = n }
}

// WithTimeout overrides the initial per-packet backoff (default
// DefaultInitialDelay). It doubles on each retransmission of the same
// outstanding packet (spec.md §5).
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger attaches a logrus entry used for all engine/session logging.
// Defaults to an entry on logrus.StandardLogger() if not given.
func WithLogger(log *logrus.Entry) Option {
	return func(o *options) { o.log = log }
}

func defaultOptions() options {
	return options{
		mode:    DefaultMode,
		retries: DefaultRetries,
		timeout: DefaultInitialDelay,
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
}
