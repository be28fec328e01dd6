package curve

import (
	"encoding/binary"
	"errors"
)

// Session keys are derived once per handshake and then stepped by a
// counter-based nonce, so the proxy never needs to generate or
// transmit a fresh random nonce per frame.
const (
	labelMaster    = "snq:kdf:master:v1"
	labelInitKey   = "snq:kdf:initkey:v1"
	labelRespKey   = "snq:kdf:respkey:v1"
	labelInitNonce = "snq:kdf:initnonce:v1"
	labelRespNonce = "snq:kdf:respnonce:v1"
)

// SessionKeys holds the two directional AEAD keys and nonce bases
// derived from a completed handshake. The connection initiator seals
// with InitKey/NonceBaseInit and opens with RespKey/NonceBaseResp; the
// side accepting the connection uses the mirror image — see
// SessionKeys.ForRole.
type SessionKeys struct {
	Master        []byte
	InitKey       []byte
	RespKey       []byte
	NonceBaseInit []byte
	NonceBaseResp []byte
}

// DeriveSessionKeys derives SessionKeys from an ECDH shared secret and
// a transcript of the handshake messages exchanged (binds the session
// to that specific handshake, preventing cross-handshake key reuse).
func DeriveSessionKeys(sharedSecret, transcript []byte) (SessionKeys, error) {
	if len(sharedSecret) == 0 || len(transcript) == 0 {
		return SessionKeys{}, errors.New("curve: empty key material")
	}
	master := KDF(labelMaster, sharedSecret, transcript)
	return SessionKeys{
		Master:        master,
		InitKey:       KDF(labelInitKey, master),
		RespKey:       KDF(labelRespKey, master),
		NonceBaseInit: KDF(labelInitNonce, master)[:XNonceSize],
		NonceBaseResp: KDF(labelRespNonce, master)[:XNonceSize],
	}, nil
}

// ForRole returns (sealKey, sealNonceBase, openKey, openNonceBase) for
// one side of the connection.
func (k SessionKeys) ForRole(initiator bool) (sealKey, sealBase, openKey, openBase []byte) {
	if initiator {
		return k.InitKey, k.NonceBaseInit, k.RespKey, k.NonceBaseResp
	}
	return k.RespKey, k.NonceBaseResp, k.InitKey, k.NonceBaseInit
}

// NonceFromBase XORs a monotonically increasing counter into the low
// 8 bytes of a fixed nonce base, producing a per-frame nonce that
// never repeats for the lifetime of a session as long as counter is
// never reused.
func NonceFromBase(base []byte, counter uint64) ([]byte, error) {
	if len(base) != XNonceSize {
		return nil, errors.New("curve: bad nonce base size")
	}
	nonce := make([]byte, XNonceSize)
	copy(nonce, base)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], counter)
	for i := 0; i < 8; i++ {
		nonce[XNonceSize-8+i] ^= tmp[i]
	}
	return nonce, nil
}

// BuildAAD binds a sealed frame to its logical header so a ciphertext
// cannot be replayed under a different sequence number or peer pair.
func BuildAAD(seq uint64, fromPub, toPub [KeySize]byte) []byte {
	buf := make([]byte, 0, 8+2*KeySize)
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	buf = append(buf, seqBytes[:]...)
	buf = append(buf, fromPub[:]...)
	buf = append(buf, toPub[:]...)
	return buf
}
