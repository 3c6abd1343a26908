// Package notify sends the waitlist signup email to the site admin.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"posterpro/common"
)

// ErrNotConfigured is returned when SMTP settings are incomplete
var ErrNotConfigured = errors.New("email configuration missing")

// Signup is the landing page form
type Signup struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email,max=320"`
}

// Meta describes the request the signup came from
type Meta struct {
	IP        string
	UserAgent string
	At        time.Time
}

// Config holds the SMTP account and the admin address
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	To       string
}

func (c Config) configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != "" && c.To != ""
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 587
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

type sendFunc func(ctx context.Context, cfg Config, from string, to []string, msg []byte) error

// Notifier composes and delivers signup emails
type Notifier struct {
	cfg      Config
	validate *validator.Validate
	send     sendFunc
	log      zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		validate: validator.New(),
		send:     sendSMTP,
		log:      logger.With().Str("component", "notify").Logger(),
	}
}

// Configured reports whether Notify can deliver anything
func (n *Notifier) Configured() bool {
	return n.cfg.configured()
}

// Validate trims the form and checks both fields
func (n *Notifier) Validate(s *Signup) error {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	if s.Name == "" || s.Email == "" {
		return common.ValidationError("Name and email are required", common.ErrInvalidUpload)
	}
	if err := n.validate.Struct(s); err != nil {
		return common.ValidationError("Please enter a valid name and email address", fmt.Errorf("%v: %w", err, common.ErrInvalidUpload))
	}
	return nil
}

// Notify sends one signup email to the admin address
func (n *Notifier) Notify(ctx context.Context, s Signup, meta Meta) error {
	if err := n.Validate(&s); err != nil {
		return err
	}
	if !n.cfg.configured() {
		return ErrNotConfigured
	}
	msg, err := Compose(s, meta, n.cfg.Username, n.cfg.To)
	if err != nil {
		return fmt.Errorf("compose signup email: %w", err)
	}
	if err := n.send(ctx, n.cfg, n.cfg.Username, []string{n.cfg.To}, msg); err != nil {
		return fmt.Errorf("send signup email: %w", err)
	}
	n.log.Info().Str("name", s.Name).Msg("signup notification sent")
	return nil
}

// Compose renders the plain text notification
func Compose(s Signup, meta Meta, from, to string) ([]byte, error) {
	if meta.At.IsZero() {
		meta.At = time.Now()
	}
	userAgent := meta.UserAgent
	if userAgent == "" {
		userAgent = "Unknown"
	}

	var h mail.Header
	h.SetDate(meta.At)
	h.SetAddressList("From", []*mail.Address{{Name: "PosterPro", Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject("New PosterPro Signup: " + s.Name)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	body := fmt.Sprintf("New PosterPro Signup!\r\n\r\nName: %s\r\nEmail: %s\r\nDate: %s\r\nIP Address: %s\r\nUser Agent: %s\r\n\r\n"+
		"This person has joined your PosterPro waitlist!\r\n\r\n---\r\nSent automatically from your PosterPro landing page.\r\n",
		s.Name, s.Email, meta.At.Format("2006-01-02 15:04:05"), meta.IP, userAgent)
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sendSMTP delivers msg with STARTTLS, or implicit TLS on port 465
func sendSMTP(ctx context.Context, cfg Config, from string, to []string, msg []byte) error {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	var conn net.Conn
	var err error
	if cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", cfg.addr())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", cfg.addr())
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start SMTP session: %w", err)
	}
	defer client.Close()

	if cfg.Port != 465 {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set mail recipient: %w", err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}
