package sdk

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/celerix-dev/celerix-contacts/pkg/schema"
)

func TestDecodeReply(t *testing.T) {
	if err := decodeReply("OK", nil); err != nil {
		t.Errorf("OK: %v", err)
	}
	if err := decodeReply("PONG", nil); err != nil {
		t.Errorf("PONG: %v", err)
	}

	var rows []schema.Contact
	if err := decodeReply(`OK [{"id":"c1","name":"Ana"}]`, &rows); err != nil {
		t.Fatalf("OK payload: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "c1" {
		t.Errorf("Unexpected rows %+v", rows)
	}

	err := decodeReply("ERR weak_password Password should be at least 6 characters", nil)
	if !errors.Is(err, ErrWeakPassword) {
		t.Errorf("Expected ErrWeakPassword, got %v", err)
	}
	if err.Error() != "Password should be at least 6 characters" {
		t.Errorf("Expected the platform message, got %q", err.Error())
	}

	if err := decodeReply("HELLO", nil); err == nil {
		t.Error("Expected an error for an unknown reply")
	}
	if err := decodeReply("OK {not json", &rows); err == nil {
		t.Error("Expected an error for a malformed payload")
	}
}

// lossyDaemon reads requests and answers each with reply, except the very
// first one, whose connection it closes without replying.
type lossyDaemon struct {
	ln    net.Listener
	reply string

	mu    sync.Mutex
	lines []string
}

func startLossyDaemon(t *testing.T, reply string) *lossyDaemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &lossyDaemon{ln: ln, reply: reply}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go d.serve(conn)
		}
	}()
	return d
}

func (d *lossyDaemon) serve(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		d.mu.Lock()
		d.lines = append(d.lines, strings.TrimSpace(line))
		first := len(d.lines) == 1
		d.mu.Unlock()
		if first {
			return
		}
		if _, err := io.WriteString(conn, d.reply+"\n"); err != nil {
			return
		}
	}
}

func (d *lossyDaemon) received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

func TestExchange_WriteIsNotResent(t *testing.T) {
	for _, verb := range []string{VerbInsert, VerbUpdate, VerbDelete, VerbSignUp, VerbRefresh, VerbUpdateUser} {
		t.Run(verb, func(t *testing.T) {
			d := startLossyDaemon(t, `OK []`)
			r, err := Connect(d.ln.Addr().String(), WithoutTLS())
			if err != nil {
				t.Fatalf("Connect failed: %v", err)
			}
			defer r.Close()

			err = r.exchange(context.Background(), verb, map[string]string{"id": "c1"}, nil)
			if !errors.Is(err, ErrNoReply) {
				t.Fatalf("Expected ErrNoReply, got %v", err)
			}
			if got := d.received(); len(got) != 1 {
				t.Fatalf("Expected the daemon to see %s once, got %q", verb, got)
			}

			// The connection is rebuilt for the next call.
			if err := r.Ping(context.Background()); err != nil {
				t.Fatalf("Ping after a lost reply: %v", err)
			}
		})
	}
}

func TestExchange_ReadIsResent(t *testing.T) {
	d := startLossyDaemon(t, `OK [{"id":"c1","name":"Ana"}]`)
	r, err := Connect(d.ln.Addr().String(), WithoutTLS())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer r.Close()

	var rows []schema.Contact
	if err := r.exchange(context.Background(), VerbSelect, SelectRequest{UserID: "u1"}, &rows); err != nil {
		t.Fatalf("SELECT should survive a lost reply: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "c1" {
		t.Errorf("Unexpected rows %+v", rows)
	}
	if got := d.received(); len(got) != 2 {
		t.Errorf("Expected SELECT to be sent twice, got %q", got)
	}
}
