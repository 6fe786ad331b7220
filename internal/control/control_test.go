package control

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"lanhub/internal/chat"
	"lanhub/internal/protocol"
	"lanhub/internal/registry"
	"lanhub/internal/transfer"
)

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialTest(t *testing.T, ln net.Listener) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(env protocol.Envelope) {
	c.t.Helper()
	b, err := protocol.Encode(env)
	if err != nil {
		c.t.Fatalf("encode: %v", err)
	}
	if _, err := c.conn.Write(b); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testClient) recv() protocol.Envelope {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	var e protocol.Envelope
	if err := json.Unmarshal(line, &e); err != nil {
		c.t.Fatalf("decode %q: %v", line, err)
	}
	return e
}

func (c *testClient) login(name string) protocol.Envelope {
	c.send(protocol.Envelope{Type: protocol.TypeLogin, Username: name})
	return c.recv()
}

func newTestServer(t *testing.T) (*Server, net.Listener, context.CancelFunc) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	srv := New("127.0.0.1:0", registry.New(), chat.New(), transfer.New(t.TempDir(), log), log)

	ln, err := srv.Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, ln)
	t.Cleanup(cancel)
	return srv, ln, cancel
}

func TestLoginSequence(t *testing.T) {
	_, ln, _ := newTestServer(t)

	a := dialTest(t, ln)
	loginResp := a.login("A")
	if loginResp.Type != protocol.TypeLoginSuccess || loginResp.UID != 1 {
		t.Fatalf("login resp = %+v, want login_success uid=1", loginResp)
	}
	plist := a.recv()
	if plist.Type != protocol.TypeParticipantList || len(plist.Participants) != 1 || plist.Participants[0].UID != 1 {
		t.Fatalf("participant_list = %+v", plist)
	}
	hist := a.recv()
	if hist.Type != protocol.TypeHistory || len(hist.Messages) != 0 {
		t.Fatalf("history = %+v", hist)
	}

	b := dialTest(t, ln)
	bLogin := b.login("B")
	if bLogin.UID != 2 {
		t.Fatalf("B uid = %d, want 2", bLogin.UID)
	}

	joined := a.recv()
	if joined.Type != protocol.TypeUserJoined || joined.UID != 2 || joined.Username != "B" {
		t.Fatalf("user_joined at A = %+v", joined)
	}

	bLogout := protocol.Envelope{Type: protocol.TypeLogout}
	b.send(bLogout)

	left := a.recv()
	if left.Type != protocol.TypeUserLeft || left.UID != 2 {
		t.Fatalf("user_left at A = %+v", left)
	}
}

func TestUnicastDeliveredOnlyToTarget(t *testing.T) {
	_, ln, _ := newTestServer(t)

	a := dialTest(t, ln)
	a.login("A")
	a.recv() // participant_list
	a.recv() // history

	b := dialTest(t, ln)
	b.login("B")
	b.recv()
	b.recv()

	c := dialTest(t, ln)
	c.login("C")
	c.recv()
	c.recv()

	// Drain join broadcasts seen by A and B for B's and C's logins.
	a.recv() // user_joined B
	a.recv() // user_joined C
	b.recv() // user_joined C

	a.send(protocol.Envelope{Type: protocol.TypeUnicast, TargetUID: 2, Text: "hi"})

	sentConfirm := a.recv()
	if sentConfirm.Type != protocol.TypeUnicastSent || sentConfirm.TargetUID != 2 {
		t.Fatalf("unicast_sent at A = %+v", sentConfirm)
	}

	delivered := b.recv()
	if delivered.Type != protocol.TypeUnicast || delivered.FromUID != 1 || delivered.ToUID != 2 || delivered.Text != "hi" {
		t.Fatalf("unicast at B = %+v", delivered)
	}

	c.conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, err := c.r.ReadBytes('\n'); err == nil {
		t.Fatal("C unexpectedly received a message from the unicast")
	}
}

func TestHistoryReplayOnNewConnection(t *testing.T) {
	_, ln, _ := newTestServer(t)

	a := dialTest(t, ln)
	a.login("A")
	a.recv()
	a.recv()

	texts := []string{"one", "two", "three"}
	for _, txt := range texts {
		a.send(protocol.Envelope{Type: protocol.TypeChat, Text: txt})
		echoed := a.recv()
		if echoed.Text != txt {
			t.Fatalf("chat echo = %+v, want text %q", echoed, txt)
		}
	}

	c := dialTest(t, ln)
	c.login("C")
	c.recv() // participant_list
	hist := c.recv()
	if hist.Type != protocol.TypeHistory || len(hist.Messages) != 3 {
		t.Fatalf("history = %+v, want 3 messages", hist)
	}
	for i, txt := range texts {
		if hist.Messages[i].Text != txt {
			t.Fatalf("history[%d].Text = %q, want %q", i, hist.Messages[i].Text, txt)
		}
	}
}

func TestMalformedJSONDoesNotCloseSession(t *testing.T) {
	_, ln, _ := newTestServer(t)

	a := dialTest(t, ln)
	a.login("A")
	a.recv()
	a.recv()

	if _, err := a.conn.Write([]byte("{not json\n")); err != nil {
		t.Fatal(err)
	}
	errResp := a.recv()
	if errResp.Type != protocol.TypeError || errResp.Reason != "malformed" {
		t.Fatalf("error resp = %+v, want reason=malformed", errResp)
	}

	// Session must still be alive: heartbeat should still work.
	a.send(protocol.Envelope{Type: protocol.TypeHeartbeat})
	ack := a.recv()
	if ack.Type != protocol.TypeHeartbeatAck {
		t.Fatalf("heartbeat_ack = %+v", ack)
	}
}

func TestMessageAliasAcceptsMessageField(t *testing.T) {
	_, ln, _ := newTestServer(t)
	a := dialTest(t, ln)
	a.login("A")
	a.recv()
	a.recv()

	b, _ := json.Marshal(map[string]string{"type": "chat", "message": "via alias"})
	b = append(b, '\n')
	a.conn.Write(b)

	echoed := a.recv()
	if echoed.Text != "via alias" {
		t.Fatalf("echoed.Text = %q, want %q", echoed.Text, "via alias")
	}
}
