package engine

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"snq/internal/curve"
	"snq/internal/transport"
)

// The wire format layered above transport.WriteFrame/ReadFrame is a
// single outer part — [seq(8 bytes)][ciphertext] — wrapping an inner,
// plaintext multi-part frame ([command_name][arg1][arg2]…) sealed
// with the session's AEAD key. seq both feeds the nonce derivation
// (internal/curve.NonceFromBase) and is bound into the AAD, so a frame
// whose seq was altered fails at XOpen; a replayed or reordered frame
// is rejected before that by readSecureFrame's strictly-increasing
// seq check.

func writeSecureFrame(w io.Writer, half *sessionHalf, localPub, peerPub PubKey, parts [][]byte) error {
	var inner bytes.Buffer
	if err := transport.WriteFrame(&inner, parts); err != nil {
		return err
	}
	seq := half.seq
	half.seq++
	nonce, err := curve.NonceFromBase(half.sealBase, seq)
	if err != nil {
		return err
	}
	aad := curve.BuildAAD(seq, localPub, peerPub)
	ciphertext, err := curve.XSealWithNonce(half.sealKey, nonce, inner.Bytes(), aad)
	if err != nil {
		return err
	}
	outer := make([]byte, 8+len(ciphertext))
	binary.BigEndian.PutUint64(outer[:8], seq)
	copy(outer[8:], ciphertext)
	return transport.WriteFrame(w, [][]byte{outer})
}

func readSecureFrame(r *bufio.Reader, half *sessionHalf, remotePub, localPub PubKey, maxSize int) ([][]byte, error) {
	outerParts, err := transport.ReadFrame(r, maxSize)
	if err != nil {
		return nil, err
	}
	if len(outerParts) != 1 || len(outerParts[0]) < 8 {
		return nil, fmt.Errorf("engine: malformed secure frame")
	}
	outer := outerParts[0]
	seq := binary.BigEndian.Uint64(outer[:8])
	ciphertext := outer[8:]

	// Reject anything not strictly increasing: this is the one place
	// wire order is actually enforced, since QUIC already delivers a
	// stream in order but a forged or replayed seq must still fail.
	if half.recvInit && seq <= half.recvSeq {
		return nil, fmt.Errorf("engine: out-of-order or replayed frame (seq %d <= %d)", seq, half.recvSeq)
	}

	nonce, err := curve.NonceFromBase(half.openBase, seq)
	if err != nil {
		return nil, err
	}
	aad := curve.BuildAAD(seq, remotePub, localPub)
	plain, err := curve.XOpen(half.openKey, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("engine: frame authentication failed: %w", err)
	}
	half.recvSeq = seq
	half.recvInit = true
	return transport.ReadFrame(bufio.NewReader(bytes.NewReader(plain)), -1)
}
