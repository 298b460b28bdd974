package mail

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/mbolis/signup/config"
)

// Message is a single email to send. HTML wins over Text when both are set.
type Message struct {
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// DefaultTimeout bounds a whole SMTP exchange, from dial to QUIT.
const DefaultTimeout = 30 * time.Second

// Sender sends emails over SMTP.
type Sender struct {
	cfg     config.MailConfig
	site    config.SiteConfig
	timeout time.Duration
	send    sendFunc
}

func New(cfg config.MailConfig, site config.SiteConfig) *Sender {
	s := &Sender{cfg: cfg, site: site, timeout: DefaultTimeout}
	s.send = s.sendMail
	return s
}

// Enabled reports whether messages actually leave the process.
func (s *Sender) Enabled() bool {
	return s.cfg.Enable
}

// Send dispatches msg. A disabled sender drops it silently.
func (s *Sender) Send(msg Message) error {
	if !s.cfg.Enable {
		return nil
	}

	port := s.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := s.cfg.Host + ":" + strconv.Itoa(port)

	from := s.fromAddress()
	body, err := s.compose(from, msg)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}
	return s.send(addr, auth, from, msg.To, body)
}

// sendMail does what smtp.SendMail does, under a deadline: a stalled server fails the
// send instead of holding its goroutine forever.
func (s *Sender) sendMail(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := net.DialTimeout("tcp", addr, s.timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("mail: server doesn't support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}

	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// fromAddress never depends on the request: the unsubscribe link and sender domain come
// from configuration only.
func (s *Sender) fromAddress() string {
	if s.cfg.From != "" {
		return s.cfg.From
	}
	if s.cfg.User != "" && strings.Contains(s.cfg.User, "@") {
		return s.cfg.User
	}
	return "noreply@" + s.cfg.Host
}

func (s *Sender) compose(from string, msg Message) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("mail: no recipients")
	}
	for _, h := range append([]string{msg.Subject, msg.ReplyTo}, msg.To...) {
		if strings.ContainsAny(h, "\r\n") {
			return nil, fmt.Errorf("mail: header contains a line break")
		}
	}

	fromHeader := (&netmail.Address{Name: s.cfg.FromName, Address: from}).String()

	var body bytes.Buffer
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	body.WriteString(fmt.Sprintf("From: %s\r\n", fromHeader))
	body.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	body.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject)))
	if msg.ReplyTo != "" {
		body.WriteString(fmt.Sprintf("Reply-To: %s\r\n", msg.ReplyTo))
	}
	if msg.HTML != "" {
		body.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		body.WriteString("\r\n")
		body.WriteString(msg.HTML)
	} else {
		body.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		body.WriteString("\r\n")
		body.WriteString(msg.Text)
	}
	return body.Bytes(), nil
}
