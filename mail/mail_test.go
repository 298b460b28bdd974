package mail

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/mbolis/signup/config"
)

type captured struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newSenderForTest(t *testing.T, cfg config.MailConfig) (*Sender, *[]captured) {
	t.Helper()
	var sent []captured
	s := New(cfg, config.SiteConfig{Name: "New Mexico Socialists", ContactEmail: "hello@example.org"})
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, captured{addr, a, from, to, string(msg)})
		return nil
	}
	return s, &sent
}

func TestSendDisabledIsNoop(t *testing.T) {
	s, sent := newSenderForTest(t, config.MailConfig{Enable: false, Host: "smtp.example.org"})
	if err := s.Send(Message{To: []string{"a@example.org"}, Subject: "x", Text: "y"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(*sent) != 0 {
		t.Fatalf("expected nothing sent, got %d", len(*sent))
	}
}

func TestSendComposesHeaders(t *testing.T) {
	s, sent := newSenderForTest(t, config.MailConfig{
		Enable:   true,
		Host:     "smtp.example.org",
		User:     "mailer",
		Pass:     "secret",
		From:     "noreply@example.org",
		FromName: "NM Socialists",
	})

	err := s.Send(Message{
		To:      []string{"admin@example.org"},
		ReplyTo: "member@example.org",
		Subject: "Bienvenido/a ¡hola!",
		Text:    "body",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("expected one message, got %d", len(*sent))
	}
	got := (*sent)[0]
	if got.addr != "smtp.example.org:587" {
		t.Fatalf("unexpected addr %q", got.addr)
	}
	if got.auth == nil {
		t.Fatal("expected smtp auth when user is set")
	}
	if got.from != "noreply@example.org" {
		t.Fatalf("unexpected envelope sender %q", got.from)
	}
	for _, want := range []string{
		"From: \"NM Socialists\" <noreply@example.org>\r\n",
		"To: admin@example.org\r\n",
		"Reply-To: member@example.org\r\n",
		"Subject: =?utf-8?q?",
		"Content-Type: text/plain; charset=UTF-8\r\n",
	} {
		if !strings.Contains(got.msg, want) {
			t.Fatalf("expected %q in message:\n%s", want, got.msg)
		}
	}
}

func TestSendRejectsHeaderInjection(t *testing.T) {
	s, sent := newSenderForTest(t, config.MailConfig{Enable: true, Host: "smtp.example.org"})
	err := s.Send(Message{
		To:      []string{"admin@example.org"},
		ReplyTo: "x@example.org\r\nBcc: victim@example.org",
		Subject: "hi",
		Text:    "body",
	})
	if err == nil {
		t.Fatal("expected header injection to be rejected")
	}
	if len(*sent) != 0 {
		t.Fatal("expected nothing sent")
	}
}

func TestSendWelcomeCarriesUnsubscribeLink(t *testing.T) {
	s, sent := newSenderForTest(t, config.MailConfig{Enable: true, Host: "smtp.example.org", From: "noreply@example.org"})
	link := "https://example.org/unsubscribe?token=" + strings.Repeat("ab", 32)

	err := s.SendWelcome("member@example.org", WelcomeData{Name: "Ana & Luis", UnsubscribeURL: link})
	if err != nil {
		t.Fatalf("send welcome: %v", err)
	}
	msg := (*sent)[0].msg
	for _, want := range []string{
		"Content-Type: text/html; charset=UTF-8",
		"Welcome, Ana &amp; Luis!",
		"¡Bienvenido/a, Ana &amp; Luis!",
		link,
		"mailto:hello@example.org",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in welcome email:\n%s", want, msg)
		}
	}
}

func TestSendAdminNotify(t *testing.T) {
	s, sent := newSenderForTest(t, config.MailConfig{Enable: true, Host: "smtp.example.org", From: "noreply@example.org"})

	err := s.SendAdminNotify("admin@example.org", AdminNotifyData{
		Name:        "Ana",
		Email:       "ana@example.org",
		City:        "Albuquerque",
		SubmittedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("send admin notify: %v", err)
	}
	msg := (*sent)[0].msg
	for _, want := range []string{
		"Reply-To: ana@example.org",
		"Name: Ana\n",
		"City: Albuquerque\n",
		"Country: Not provided\n",
		"Submitted: 2026-03-01 10:00:00 UTC",
		"IP Address: unknown",
		"New Mexico Socialists website",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in admin email:\n%s", want, msg)
		}
	}

	if err := s.SendAdminNotify("", AdminNotifyData{Email: "ana@example.org"}); err == nil {
		t.Fatal("expected error without admin address")
	}
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	var d Dispatcher
	done := make(chan struct{}, 2)
	d.Go("welcome", nil, func() error {
		done <- struct{}{}
		return errors.New("smtp down")
	})
	d.Go("admin", nil, func() error {
		done <- struct{}{}
		panic("boom")
	})
	d.Wait()
	if len(done) != 2 {
		t.Fatalf("expected both sends to run, got %d", len(done))
	}
}

// serveSMTP answers one session with just enough of the protocol for smtp.Client and
// sends the DATA payload on the returned channel.
func serveSMTP(t *testing.T) (host string, port int, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		reply := func(s string) { conn.Write([]byte(s + "\r\n")) }

		reply("220 localhost ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			switch cmd := strings.ToUpper(strings.TrimSpace(line)); {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250-localhost")
				reply("250 8BITMIME")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				reply("250 OK")
			case cmd == "DATA":
				reply("354 go ahead")
				var body strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					body.WriteString(l)
				}
				got <- body.String()
				reply("250 OK")
			case cmd == "QUIT":
				reply("221 bye")
				return
			default:
				reply("502 not implemented")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, got
}

func TestSendOverSMTP(t *testing.T) {
	host, port, data := serveSMTP(t)
	s := New(config.MailConfig{Enable: true, Host: host, Port: port, From: "noreply@example.org"}, config.SiteConfig{})

	err := s.Send(Message{To: []string{"admin@example.org"}, Subject: "hi", Text: "hello there"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case body := <-data:
		if !strings.Contains(body, "To: admin@example.org") || !strings.Contains(body, "hello there") {
			t.Fatalf("unexpected message:\n%s", body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the message")
	}
}

func TestSendTimesOutOnStalledServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	stalled := make(chan net.Conn, 1)
	t.Cleanup(func() {
		ln.Close()
		select {
		case conn := <-stalled:
			conn.Close()
		default:
		}
	})
	go func() {
		// accept and never greet
		conn, err := ln.Accept()
		if err == nil {
			stalled <- conn
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	s := New(config.MailConfig{Enable: true, Host: addr.IP.String(), Port: addr.Port}, config.SiteConfig{})
	s.timeout = 200 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		done <- s.Send(Message{To: []string{"admin@example.org"}, Subject: "hi", Text: "body"})
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected a timeout error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("send did not give up on a stalled server")
	}
}

func TestDispatcherWaitContext(t *testing.T) {
	var d Dispatcher
	release := make(chan struct{})
	d.Go("welcome", nil, func() error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := d.WaitContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(release)
	if err := d.WaitContext(context.Background()); err != nil {
		t.Fatalf("expected clean wait, got %v", err)
	}
}
