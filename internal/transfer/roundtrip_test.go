package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"testing"
	"time"
)

func TestUploadDownloadRoundTrip(t *testing.T) {
	b := testBroker(t)

	payload := make([]byte, 64*1024)
	if _, err := rand.Read(payload); err != nil {
		t.Fatal(err)
	}

	off, err := b.NewOffer("data.bin", int64(len(payload)), 1)
	if err != nil {
		t.Fatal(err)
	}

	availCh := make(chan struct{}, 1)
	port, err := b.OpenUpload(context.Background(), off, func(*Offer) { availCh <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}

	uploadConn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("dial upload listener: %v", err)
	}
	if _, err := uploadConn.Write(payload); err != nil {
		t.Fatal(err)
	}
	uploadConn.Close()

	select {
	case <-availCh:
	case <-time.After(5 * time.Second):
		t.Fatal("upload never became available")
	}

	if off.State != StateAvailable {
		t.Fatalf("offer state = %s, want available", off.State)
	}
	info, err := os.Stat(off.Path)
	if err != nil {
		t.Fatalf("stat uploaded file: %v", err)
	}
	if info.Size() != int64(len(payload)) {
		t.Fatalf("file size = %d, want %d", info.Size(), len(payload))
	}

	dlPort, err := b.OpenDownload(off)
	if err != nil {
		t.Fatal(err)
	}
	dlConn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", dlPort))
	if err != nil {
		t.Fatalf("dial download listener: %v", err)
	}
	defer dlConn.Close()

	got := make([]byte, len(payload))
	dlConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n := 0
	for n < len(got) {
		m, err := dlConn.Read(got[n:])
		if err != nil {
			t.Fatalf("read download: %v", err)
		}
		n += m
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("downloaded bytes do not match original")
	}
}

func TestConcurrentDownloadsGetDistinctPorts(t *testing.T) {
	b := testBroker(t)
	off, err := b.NewOffer("shared.bin", 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	off.State = StateAvailable
	tmp, err := os.CreateTemp(t.TempDir(), "f")
	if err != nil {
		t.Fatal(err)
	}
	tmp.Write([]byte("abcd"))
	tmp.Close()
	off.Path = tmp.Name()

	p1, err := b.OpenDownload(off)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := b.OpenDownload(off)
	if err != nil {
		t.Fatal(err)
	}
	if p1 == p2 {
		t.Fatalf("concurrent downloads share a port: %d", p1)
	}
}

func TestFileRequestOnUnavailableOfferErrors(t *testing.T) {
	b := testBroker(t)
	off, _ := b.NewOffer("pending.bin", 4, 1)
	if _, err := b.OpenDownload(off); err == nil {
		t.Fatal("expected error requesting a pending-upload offer")
	}
}
