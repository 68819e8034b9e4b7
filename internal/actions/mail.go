package actions

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/horizon/internal/policy"
	"github.com/ent0n29/horizon/internal/turn"
)

const (
	defaultSubject    = "Requested Report"
	defaultBodyAttach = "Please find the requested report attached."
)

var errNoRecipient = errors.New("missing email recipient")

// Mail is one outbound message.
type Mail struct {
	From        string
	To          string
	Subject     string
	Body        string
	Attachments []string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

func (e *Executor) email(ctx context.Context, params map[string]any, in Input) (map[string]any, error) {
	to := turn.StringParam(params, "to")
	if to == "" {
		to = in.resolved("email_to")
	}
	if to == "" {
		return nil, errNoRecipient
	}
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}

	m := Mail{
		From:    e.mailFrom,
		To:      addr.Address,
		Subject: turn.StringParam(params, "subject"),
		Body:    turn.StringParam(params, "body"),
	}
	attachment := turn.StringParam(params, "attachment")
	if attachment == "" {
		attachment = in.resolved("attachment")
	}
	if attachment != "" {
		if _, err := os.Stat(attachment); err != nil {
			return nil, fmt.Errorf("attachment: %w", err)
		}
		m.Attachments = []string{attachment}
	}
	if m.Subject == "" {
		m.Subject = defaultSubject
	}
	if m.Body == "" {
		if attachment != "" {
			m.Body = defaultBodyAttach
		} else {
			m.Body = fmt.Sprintf("Your request %q has completed.", in.Snapshot.UserInput)
		}
	}

	if err := e.mailer.Send(ctx, m); err != nil {
		return nil, fmt.Errorf("send email: %w", err)
	}
	return map[string]any{"to": m.To, "subject": m.Subject, "attachments": m.Attachments}, nil
}

// LogMailer logs messages instead of delivering them and keeps an outbox.
type LogMailer struct {
	mu     sync.Mutex
	outbox []Mail
}

func NewLogMailer() *LogMailer { return &LogMailer{} }

func (l *LogMailer) Send(ctx context.Context, m Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := policy.RedactString(m.To)
	log.Info().Str("to", to).Str("subject", m.Subject).Int("attachments", len(m.Attachments)).Msg("email queued to log outbox")
	l.mu.Lock()
	l.outbox = append(l.outbox, m)
	l.mu.Unlock()
	return nil
}

// Outbox returns a copy of every message sent so far.
func (l *LogMailer) Outbox() []Mail {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Mail(nil), l.outbox...)
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers through an SMTP relay. STARTTLS is used when the
// server offers it.
type SMTPMailer struct {
	addr     string
	username string
	password string
	send     sendFunc
}

func NewSMTPMailer(addr, username, password string) *SMTPMailer {
	return &SMTPMailer{addr: addr, username: username, password: password, send: smtp.SendMail}
}

func (s *SMTPMailer) Send(ctx context.Context, m Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := buildMessage(m, time.Now())
	if err != nil {
		return err
	}
	var auth smtp.Auth
	if s.username != "" {
		host := s.addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.username, s.password, host)
	}
	return s.send(s.addr, auth, m.From, []string{m.To}, msg)
}

// buildMessage renders m as a MIME message with base64 attachments.
func buildMessage(m Mail, date time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", date.UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	body, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=utf-8"},
		"Content-Transfer-Encoding": {"8bit"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := body.Write([]byte(m.Body)); err != nil {
		return nil, err
	}

	for _, path := range m.Attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		name := filepath.Base(path)
		ctype := mime.TypeByExtension(filepath.Ext(name))
		if ctype == "" {
			ctype = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {ctype},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", name)},
		})
		if err != nil {
			return nil, err
		}
		enc := base64.StdEncoding.EncodeToString(data)
		for len(enc) > 76 {
			if _, err := part.Write([]byte(enc[:76] + "\r\n")); err != nil {
				return nil, err
			}
			enc = enc[76:]
		}
		if _, err := part.Write([]byte(enc + "\r\n")); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
