package curve

import "fmt"

// Hello1/Hello2 are the two messages of the curve handshake layered
// above the raw transport. The dialer sends Hello1, the accepting
// side answers with Hello2; both sides then derive SessionKeys from
// the ECDH secret and the concatenated transcript of both messages.
// This mirrors the teacher's own two-message handshake, generalized
// to the identity model used here (no signatures — the transport's
// job is authentication-by-possession-of-the-matching-private-key,
// the Authenticator decides admission from the resulting pubkey).
type Hello1 struct {
	Pub [KeySize]byte
}

type Hello2 struct {
	Pub [KeySize]byte
}

func (h Hello1) Marshal() []byte {
	out := make([]byte, KeySize)
	copy(out, h.Pub[:])
	return out
}

func ParseHello1(b []byte) (Hello1, error) {
	if len(b) != KeySize {
		return Hello1{}, fmt.Errorf("curve: bad hello1 length %d", len(b))
	}
	var h Hello1
	copy(h.Pub[:], b)
	return h, nil
}

func (h Hello2) Marshal() []byte {
	out := make([]byte, KeySize)
	copy(out, h.Pub[:])
	return out
}

func ParseHello2(b []byte) (Hello2, error) {
	if len(b) != KeySize {
		return Hello2{}, fmt.Errorf("curve: bad hello2 length %d", len(b))
	}
	var h Hello2
	copy(h.Pub[:], b)
	return h, nil
}

// Transcript concatenates both handshake messages in a fixed order so
// both sides derive identical session keys regardless of role.
func Transcript(h1 Hello1, h2 Hello2) []byte {
	out := make([]byte, 0, 2*KeySize)
	out = append(out, h1.Pub[:]...)
	out = append(out, h2.Pub[:]...)
	return out
}

// DialerHandshake runs the dialing side of the handshake given the
// local identity and the peer's known public key, returning the
// derived session keys. exchange performs the actual message
// round-trip over the transport (send Hello1, receive Hello2).
func DialerHandshake(local *Identity, peerPub [KeySize]byte, exchange func(Hello1) (Hello2, error)) (SessionKeys, error) {
	h1 := Hello1{Pub: local.Pub}
	h2, err := exchange(h1)
	if err != nil {
		return SessionKeys{}, err
	}
	if h2.Pub != peerPub {
		return SessionKeys{}, fmt.Errorf("curve: hello2 pubkey mismatch")
	}
	shared, err := local.ECDH(peerPub[:])
	if err != nil {
		return SessionKeys{}, err
	}
	return DeriveSessionKeys(shared, Transcript(h1, h2))
}

// AccepterHandshake runs the accepting side: it has already received
// Hello1 (carrying the dialer's claimed pubkey) and replies with its
// own Hello2 before deriving keys.
func AccepterHandshake(local *Identity, h1 Hello1) (h2 Hello2, keys SessionKeys, err error) {
	h2 = Hello2{Pub: local.Pub}
	shared, err := local.ECDH(h1.Pub[:])
	if err != nil {
		return Hello2{}, SessionKeys{}, err
	}
	keys, err = DeriveSessionKeys(shared, Transcript(h1, h2))
	return h2, keys, err
}
