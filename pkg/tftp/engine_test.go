package tftp

import (
	"bytes"
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var testServerAddr = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 6969}

func silentLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(new(bytes.Buffer))
	return logrus.NewEntry(log)
}

func newDownloadSession(t *testing.T) (*Session, *os.File) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "download-*")
	require.NoError(t, err)
	sess := &Session{
		remoteAddr:     testServerAddr,
		file:           f,
		direction:      Read,
		mode:           DefaultMode,
		blockNum:       1,
		state:          stateRRQSent,
		maxRetries:     DefaultRetries,
		retriesLeft:    DefaultRetries,
		initialBackoff: DefaultInitialDelay,
		log:            silentLogger(),
	}
	sess.clearTimer()
	require.NoError(t, sess.setSend(RRQ{Filename: "remote", Mode: DefaultMode}))
	return sess, f
}

func newUploadSession(t *testing.T, contents []byte) (*Session, *os.File) {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/upload-src"
	require.NoError(t, os.WriteFile(path, contents, 0644))
	f, err := os.Open(path)
	require.NoError(t, err)
	sess := &Session{
		remoteAddr:     testServerAddr,
		file:           f,
		direction:      Write,
		mode:           DefaultMode,
		blockNum:       0,
		state:          stateWRQSent,
		maxRetries:     DefaultRetries,
		retriesLeft:    DefaultRetries,
		initialBackoff: DefaultInitialDelay,
		log:            silentLogger(),
	}
	sess.clearTimer()
	require.NoError(t, sess.setSend(WRQ{Filename: "remote", Mode: DefaultMode}))
	return sess, f
}

// Scenario 1: download, single block.
func TestDownloadSingleBlock(t *testing.T) {
	sess, f := newDownloadSession(t)
	payload := bytes.Repeat([]byte{0xAA}, 100)
	tr := newScriptedTransport(testServerAddr, scriptStep{pkt: Data{Block: 1, Payload: payload}})

	err := newEngine(sess, tr).Run(context.Background())
	require.NoError(t, err)

	got, rerr := os.ReadFile(f.Name())
	require.NoError(t, rerr)
	require.Equal(t, payload, got)

	require.Len(t, tr.sent, 2)
	require.IsType(t, RRQ{}, tr.sent[0])
	ack, ok := tr.sent[1].(Ack)
	require.True(t, ok)
	require.Equal(t, uint16(1), ack.Block)
	require.Equal(t, stateClosed, sess.state)
}

// Scenario 2: download, two blocks.
func TestDownloadTwoBlocks(t *testing.T) {
	sess, f := newDownloadSession(t)
	block1 := bytes.Repeat([]byte{0x01}, 512)
	tr := newScriptedTransport(
		testServerAddr,
		scriptStep{pkt: Data{Block: 1, Payload: block1}},
		scriptStep{pkt: Data{Block: 2, Payload: nil}},
	)

	err := newEngine(sess, tr).Run(context.Background())
	require.NoError(t, err)

	got, rerr := os.ReadFile(f.Name())
	require.NoError(t, rerr)
	require.Equal(t, block1, got)

	require.Len(t, tr.sent, 3)
	ack1 := tr.sent[1].(Ack)
	require.Equal(t, uint16(1), ack1.Block)
	ack2 := tr.sent[2].(Ack)
	require.Equal(t, uint16(2), ack2.Block)
}

// Scenario 3: upload, two blocks.
func TestUploadTwoBlocks(t *testing.T) {
	contents := append(bytes.Repeat([]byte{0x02}, 512), bytes.Repeat([]byte{0x03}, 88)...)
	sess, _ := newUploadSession(t, contents)
	tr := newScriptedTransport(
		testServerAddr,
		scriptStep{pkt: Ack{Block: 0}},
		scriptStep{pkt: Ack{Block: 1}},
		scriptStep{pkt: Ack{Block: 2}},
	)

	err := newEngine(sess, tr).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, tr.sent, 3)
	require.IsType(t, WRQ{}, tr.sent[0])
	data1 := tr.sent[1].(Data)
	require.Equal(t, uint16(1), data1.Block)
	require.Equal(t, bytes.Repeat([]byte{0x02}, 512), data1.Payload)
	data2 := tr.sent[2].(Data)
	require.Equal(t, uint16(2), data2.Block)
	require.Equal(t, bytes.Repeat([]byte{0x03}, 88), data2.Payload)
}

// Scenario 4: retransmission — server drops the first two RRQs.
func TestRetransmission(t *testing.T) {
	sess, _ := newDownloadSession(t)
	tr := newScriptedTransport(
		testServerAddr,
		scriptStep{drop: true},
		scriptStep{drop: true},
		scriptStep{pkt: Data{Block: 1, Payload: bytes.Repeat([]byte{0x09}, 10)}},
	)

	err := newEngine(sess, tr).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, tr.sent, 4) // RRQ x3, then ACK
	require.IsType(t, RRQ{}, tr.sent[0])
	require.IsType(t, RRQ{}, tr.sent[1])
	require.IsType(t, RRQ{}, tr.sent[2])
	require.IsType(t, Ack{}, tr.sent[3])
}

// Scenario 5: server reports an error.
func TestServerError(t *testing.T) {
	sess, _ := newDownloadSession(t)
	tr := newScriptedTransport(
		testServerAddr,
		scriptStep{pkt: Error{Code: uint16(ErrCodeFileNotFound), Message: "File not found"}},
	)

	err := newEngine(sess, tr).Run(context.Background())
	require.Error(t, err)
	var perr *PeerError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ErrCodeFileNotFound, perr.Code)
	require.Equal(t, "File not found", perr.Message)
}

// Scenario 6: duplicate / stale ACK during upload is ignored; the later,
// correct ACK advances state.
func TestUploadStaleAckIgnored(t *testing.T) {
	contents := bytes.Repeat([]byte{0x07}, 1024) // three blocks: 512, 512, 0
	sess, _ := newUploadSession(t, contents)
	tr := newScriptedTransport(
		testServerAddr,
		scriptStep{pkt: Ack{Block: 0}},
		scriptStep{pkt: Ack{Block: 1}},
		scriptStep{pkt: Ack{Block: 1}}, // stale, must be ignored
		scriptStep{pkt: Ack{Block: 2}},
		scriptStep{pkt: Ack{Block: 3}},
	)

	err := newEngine(sess, tr).Run(context.Background())
	require.NoError(t, err)

	// WRQ, DATA(1), DATA(2), DATA(3) — the stale ACK(1) produces no send.
	require.Len(t, tr.sent, 4)
	require.IsType(t, WRQ{}, tr.sent[0])
	require.Equal(t, uint16(1), tr.sent[1].(Data).Block)
	require.Equal(t, uint16(2), tr.sent[2].(Data).Block)
	require.Equal(t, uint16(3), tr.sent[3].(Data).Block)
	require.Empty(t, tr.sent[3].(Data).Payload)
}

// Retry-budget invariant: 6 sends total, then ErrRetriesExceeded.
func TestRetryBudgetExhausted(t *testing.T) {
	sess, _ := newDownloadSession(t)
	tr := newScriptedTransport(testServerAddr) // no script entries: every wait times out

	err := newEngine(sess, tr).Run(context.Background())
	require.ErrorIs(t, err, ErrRetriesExceeded)
	require.Len(t, tr.sent, DefaultRetries)
}

// TID locking: once the TID is fixed by the first reply, a datagram from a
// different endpoint does not advance state; the real reply still does.
func TestTIDLocking(t *testing.T) {
	sess, f := newDownloadSession(t)
	block1 := bytes.Repeat([]byte{0xEE}, 512)
	imposter := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}
	tr := newScriptedTransport(
		testServerAddr,
		scriptStep{pkt: Data{Block: 1, Payload: block1}}, // fixes TID to testServerAddr
		scriptStep{pkt: Data{Block: 2, Payload: []byte("nope")}, from: imposter},
		scriptStep{pkt: Data{Block: 2, Payload: nil}}, // from the real server
	)

	err := newEngine(sess, tr).Run(context.Background())
	require.NoError(t, err)
	got, _ := os.ReadFile(f.Name())
	require.Equal(t, block1, got)
	// ACK(1) from us, then the imposter's DATA(2) is dropped silently
	// (no ACK sent for it), then the real DATA(2) produces the final ACK.
	require.Len(t, tr.sent, 3)
	require.IsType(t, RRQ{}, tr.sent[0])
	require.Equal(t, uint16(1), tr.sent[1].(Ack).Block)
	require.Equal(t, uint16(2), tr.sent[2].(Ack).Block)
}

func TestClearTimerResetsBackoff(t *testing.T) {
	sess, _ := newDownloadSession(t)
	sess.timer = time.Now().Add(time.Hour)
	sess.backoff = 999 * time.Second
	sess.clearTimer()
	require.True(t, sess.timer.IsZero())
	require.Equal(t, sess.initialBackoff, sess.backoff)
}
