// cmd/snq-node/main.go
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"snq"
	"snq/internal/curve"
)

func die(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func dieMsg(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func homeDir() string {
	h, _ := os.UserHomeDir()
	return filepath.Join(h, ".snq")
}

func loadOrGenerateIdentity(dir string) (*curve.Identity, error) {
	if id, err := curve.LoadIdentity(dir); err == nil {
		return id, nil
	}
	id, err := curve.GenerateIdentity()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	if err := id.SaveTo(dir); err != nil {
		return nil, err
	}
	return id, nil
}

func stdoutLogger(level snq.LogLevel, file string, line int, msg string) {
	fmt.Fprintf(os.Stderr, "[%s] %s:%d: %s\n", level, filepath.Base(file), line, msg)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: snq-node <keygen|serve|send>")
		os.Exit(1)
	}
	root := homeDir()
	_ = os.MkdirAll(root, 0700)

	switch os.Args[1] {
	case "keygen":
		id, err := curve.GenerateIdentity()
		if err != nil {
			die("keygen failed", err)
		}
		if err := id.SaveTo(root); err != nil {
			die("save keys failed", err)
		}
		fmt.Println("OK keypair generated")
		fmt.Println("pub:", hex.EncodeToString(id.Pub[:]))

	case "serve":
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		addr := fs.String("addr", "0.0.0.0:4433", "bind address")
		serviceNode := fs.Bool("sn", false, "claim service-node status")
		_ = fs.Parse(os.Args[2:])

		id, err := loadOrGenerateIdentity(root)
		if err != nil {
			die("load keys failed", err)
		}

		p, err := snq.New(snq.Config{
			Pubkey:      id.Pub[:],
			Privkey:     id.Bytes(),
			ServiceNode: *serviceNode,
			Bind:        []string{*addr},
			AllowConnection: func(ip string, pub snq.PubKey) (snq.AuthLevel, bool, bool) {
				// Demo policy: accept every curve-authenticated peer at
				// basic level. A real deployment would consult an
				// allowlist or stake registry here.
				return snq.Basic, false, true
			},
		})
		if err != nil {
			die("construct proxy failed", err)
		}
		p.SetLogger(stdoutLogger)
		p.SetLogLevel(snq.LogDebug)

		if err := p.AddCategory("chat", snq.Access{MinAuth: snq.Basic}, 2, 64); err != nil {
			die("add category failed", err)
		}
		if err := p.AddCommand("chat", "say", func(m *snq.Message) {
			if len(m.Parts) == 0 {
				return
			}
			fmt.Printf("chat.say from %s: %s\n", m.Pubkey, m.Parts[0])
			m.Reply([]byte("ack"))
		}); err != nil {
			die("add command failed", err)
		}

		if err := p.Start(); err != nil {
			die("start failed", err)
		}
		fmt.Println("listening on", *addr, "pub:", hex.EncodeToString(id.Pub[:]))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		p.Stop()

	case "send":
		fs := flag.NewFlagSet("send", flag.ExitOnError)
		toHex := fs.String("to", "", "peer pubkey hex")
		hint := fs.String("addr", "", "peer dial address")
		msg := fs.String("msg", "hello", "chat.say payload")
		_ = fs.Parse(os.Args[2:])

		if *toHex == "" || *hint == "" {
			dieMsg("--to and --addr are required")
		}
		toBytes, err := hex.DecodeString(*toHex)
		if err != nil || len(toBytes) != curve.KeySize {
			die("invalid --to pubkey", fmt.Errorf("need %d bytes hex", curve.KeySize))
		}
		var to snq.PubKey
		copy(to[:], toBytes)

		id, err := loadOrGenerateIdentity(root)
		if err != nil {
			die("load keys failed", err)
		}
		p, err := snq.New(snq.Config{Pubkey: id.Pub[:], Privkey: id.Bytes()})
		if err != nil {
			die("construct proxy failed", err)
		}
		if err := p.Start(); err != nil {
			die("start failed", err)
		}
		defer p.Stop()

		if err := p.Send(to, "chat.say", [][]byte{[]byte(*msg)}, snq.SendOptions{Hint: *hint}); err != nil {
			die("send failed", err)
		}
		fmt.Println("SENT", *msg)
		time.Sleep(500 * time.Millisecond) // give the handshake+frame time to go out before Stop

	default:
		fmt.Println("unknown command")
		os.Exit(1)
	}
}
