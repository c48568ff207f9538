package mail

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderConfirmation(t *testing.T) {
	msg, err := RenderConfirmation("alice@example.com", ConfirmationData{
		Username: "alice",
		Link:     "https://contacts.example.com/api/auth/confirmed_email/tok",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, ConfirmationSubject, msg.Subject)
	assert.Contains(t, msg.HTML, "Hi alice")
	assert.Contains(t, msg.HTML, `href="https://contacts.example.com/api/auth/confirmed_email/tok"`)
}

func TestRenderConfirmation_EscapesUsername(t *testing.T) {
	msg, err := RenderConfirmation("x@example.com", ConfirmationData{Username: "<script>", Link: "https://e.com"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestSMTPMailer_BuildMessage(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{From: "noreply@example.com", FromName: "Contacts"})

	gm, err := m.build(Message{To: "bob@example.com", Subject: "Hello", HTML: "<p>hi</p>"})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = gm.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	assert.Contains(t, raw, "Contacts")
	assert.Contains(t, raw, "<noreply@example.com>")
	assert.Contains(t, raw, "<bob@example.com>")
	assert.Contains(t, raw, "Subject: Hello")
	assert.Contains(t, raw, "text/html")
	assert.Contains(t, raw, "<p>hi</p>")
}

func TestSMTPMailer_BuildRejectsBadRecipient(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{From: "noreply@example.com"})
	_, err := m.build(Message{To: "not an address"})
	assert.Error(t, err)
}

func TestSMTPMailer_CancelledContext(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "127.0.0.1", Port: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Send(ctx, Message{To: "x@example.com"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSMTPMailer_SilentRelayReturnsOnCancel(t *testing.T) {
	// The relay accepts connections and never sends a greeting.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	port := ln.Addr().(*net.TCPAddr).Port
	m := NewSMTPMailer(SMTPConfig{
		Host:    "127.0.0.1",
		Port:    port,
		From:    "noreply@example.com",
		Timeout: time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Send(ctx, Message{To: "bob@example.com", Subject: "s", HTML: "b"}) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(10 * time.Second):
		t.Fatal("Send did not return after the context expired")
	}
}

func TestNewSMTPMailer_DefaultTimeout(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{})
	assert.Equal(t, DefaultTimeout, m.cfg.Timeout)
}
