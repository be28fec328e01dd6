package engine

import (
	"time"

	"snq/internal/control"
)

// Connect posts an async CONNECT; see §6. keepAlive<=0 means "use the
// configured default" (5 minutes unless overridden in Config).
func (p *Proxy) Connect(pub PubKey, keepAlive time.Duration, hint string) error {
	d := control.ConnectDict{Pubkey: pub[:], KeepAliveMS: int64(keepAlive / time.Millisecond), Hint: hint}
	return p.ctrlHandle.PostConnect(d)
}

// Send posts an async SEND with cmd as the first frame part followed
// by parts, honoring opts.
func (p *Proxy) Send(pub PubKey, cmd string, parts [][]byte, opts SendOptions) error {
	all := make([][]byte, 0, len(parts)+1)
	all = append(all, []byte(cmd))
	all = append(all, parts...)
	d := control.SendDict{
		Pubkey:       pub[:],
		Parts:        all,
		Hint:         opts.Hint,
		Optional:     opts.Optional,
		IncomingOnly: opts.IncomingOnly,
		KeepAliveMS:  int64(opts.KeepAlive / time.Millisecond),
	}
	return p.ctrlHandle.PostSend(control.Send, d)
}

// Disconnect posts an async DISCONNECT.
func (p *Proxy) Disconnect(pub PubKey) error {
	return p.ctrlHandle.PostDisconnect(control.DisconnectDict{Pubkey: pub[:]})
}
