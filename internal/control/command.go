// Package control implements the in-process Control Channel: the
// point-to-multipoint pipe any application goroutine uses to post
// SEND/REPLY/CONNECT/DISCONNECT/QUIT commands to the proxy loop.
// The pipe itself is a Go channel — idiomatic Go's equivalent of the
// original's in-process router socket — but every command is still
// bencode-encoded into an option dict before being posted, because
// the specification this module follows names bencode explicitly as
// the serializer on this channel.
package control

import (
	"github.com/zeebo/bencode"
)

// Name enumerates the control-channel command verbs.
type Name string

const (
	Send       Name = "SEND"
	Reply      Name = "REPLY"
	Connect    Name = "CONNECT"
	Disconnect Name = "DISCONNECT"
	Quit       Name = "QUIT"
)

// SendDict is the option dict for SEND (and, with IncomingOnly forced
// true, REPLY — see engine's Message.Reply).
type SendDict struct {
	Pubkey      []byte   `bencode:"pubkey"`
	Parts       [][]byte `bencode:"send"`
	Hint        string   `bencode:"hint"`
	Optional    bool     `bencode:"optional"`
	IncomingOnly bool    `bencode:"incoming"`
	KeepAliveMS int64    `bencode:"keep-alive"`
}

// ConnectDict is the option dict for CONNECT.
type ConnectDict struct {
	Pubkey      []byte `bencode:"pubkey"`
	KeepAliveMS int64  `bencode:"keep-alive"`
	Hint        string `bencode:"hint"`
}

// DisconnectDict is the option dict for DISCONNECT.
type DisconnectDict struct {
	Pubkey []byte `bencode:"pubkey"`
}

// Envelope is one posted command: a verb plus its bencoded dict.
// QUIT carries no dict.
type Envelope struct {
	Command Name
	Dict    []byte
}

func encode(v any) ([]byte, error) {
	return bencode.EncodeBytes(v)
}

// DecodeSend decodes a SEND/REPLY dict back out of an Envelope.
func (e Envelope) DecodeSend() (SendDict, error) {
	var d SendDict
	err := bencode.DecodeBytes(e.Dict, &d)
	return d, err
}

// DecodeConnect decodes a CONNECT dict back out of an Envelope.
func (e Envelope) DecodeConnect() (ConnectDict, error) {
	var d ConnectDict
	err := bencode.DecodeBytes(e.Dict, &d)
	return d, err
}

// DecodeDisconnect decodes a DISCONNECT dict back out of an Envelope.
func (e Envelope) DecodeDisconnect() (DisconnectDict, error) {
	var d DisconnectDict
	err := bencode.DecodeBytes(e.Dict, &d)
	return d, err
}
