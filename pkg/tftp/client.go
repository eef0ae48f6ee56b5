package tftp

import (
	"context"
	"os"

	"github.com/rs/xid"
)

// Get downloads remoteFile from the server at host:port into localFile
// (spec.md §4.5, RRQ). It resolves the endpoint, opens localFile for
// writing+creation (0666), sends the initial RRQ, and runs the engine to
// completion. Both the socket and the file are closed exactly once,
// regardless of outcome (spec.md §5).
func Get(ctx context.Context, host, port, remoteFile, localFile string, opts ...Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	conn, remote, err := dialRemote(host, port)
	if err != nil {
		return err
	}
	defer conn.Close()

	file, err := os.OpenFile(localFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	defer file.Close()

	sessID := xid.New().String()
	log := o.log.WithField("session", sessID).WithField("direction", Read.String())

	sess := &Session{
		remoteAddr:     remote,
		file:           file,
		direction:      Read,
		mode:           o.mode,
		blockNum:       1,
		state:          stateRRQSent,
		retriesLeft:    o.retries,
		maxRetries:     o.retries,
		initialBackoff: o.timeout,
		id:             sessID,
		log:            log,
	}
	sess.clearTimer()
	if err := sess.setSend(RRQ{Filename: remoteFile, Mode: o.mode}); err != nil {
		return err
	}

	t := newUDPTransport(conn, log)
	return newEngine(sess, t).Run(ctx)
}

// Put uploads localFile to remoteFile on the server at host:port
// (spec.md §4.5, WRQ). It opens localFile read-only, sends the initial
// WRQ with blockNum 0 (the server must ACK block 0 before block 1 is
// sent), and runs the engine to completion.
func Put(ctx context.Context, host, port, localFile, remoteFile string, opts ...Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	conn, remote, err := dialRemote(host, port)
	if err != nil {
		return err
	}
	defer conn.Close()

	file, err := os.Open(localFile)
	if err != nil {
		return err
	}
	defer file.Close()

	sessID := xid.New().String()
	log := o.log.WithField("session", sessID).WithField("direction", Write.String())

	sess := &Session{
		remoteAddr:     remote,
		file:           file,
		direction:      Write,
		mode:           o.mode,
		blockNum:       0,
		state:          stateWRQSent,
		retriesLeft:    o.retries,
		maxRetries:     o.retries,
		initialBackoff: o.timeout,
		id:             sessID,
		log:            log,
	}
	sess.clearTimer()
	if err := sess.setSend(WRQ{Filename: remoteFile, Mode: o.mode}); err != nil {
		return err
	}

	t := newUDPTransport(conn, log)
	return newEngine(sess, t).Run(ctx)
}
