package service

import (
	"context"
	"fmt"
	"sync"

	"membership-backend/internal/logger"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gopkg.in/gomail.v2"
)

type smtpEmailService struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func NewSMTPEmailService(host string, port int, username, password, from string) EmailService {
	return &smtpEmailService{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

func (s *smtpEmailService) Send(ctx context.Context, msg EmailMessage) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", msg.To, msg.ToName)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)

	d := gomail.NewDialer(s.host, s.port, s.username, s.password)

	logger.ExternalServiceCall("SMTP", "DialAndSend", "to", msg.To)
	err := d.DialAndSend(m)
	logger.ExternalServiceResult("SMTP", "DialAndSend", err, "to", msg.To)
	if err != nil {
		return fmt.Errorf("failed to send email via gomail: %w", err)
	}
	return nil
}

type sendGridEmailService struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridEmailService(apiKey, fromEmail, fromName string) EmailService {
	return &sendGridEmailService{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *sendGridEmailService) Send(ctx context.Context, msg EmailMessage) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, recipient, msg.Body, "")

	logger.ExternalServiceCall("SendGrid", "Send", "to", msg.To)
	response, err := s.client.Send(message)
	logger.ExternalServiceResult("SendGrid", "Send", err, "to", msg.To)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}

// EmailQueue delivers messages on a fixed set of workers. Enqueue never
// blocks: when the buffer is full the message is dropped and logged.
type EmailQueue struct {
	sender  EmailService
	ch      chan EmailMessage
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	workers int
}

func NewEmailQueue(sender EmailService, size, workers int) *EmailQueue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &EmailQueue{sender: sender, ch: make(chan EmailMessage, size), workers: workers}
}

// Start launches the workers. They stop when ctx is done or Close is called.
func (q *EmailQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run(ctx)
	}
}

func (q *EmailQueue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-q.ch:
			if !ok {
				return
			}
			if err := q.sender.Send(ctx, msg); err != nil {
				logger.Warn("Email delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
			}
		}
	}
}

func (q *EmailQueue) Enqueue(msg EmailMessage) bool {
	if msg.To == "" {
		return false
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- msg:
		return true
	default:
		logger.Warn("Email queue full, dropping message", "to", msg.To, "subject", msg.Subject)
		return false
	}
}

// Close stops accepting messages and waits for queued ones to be sent.
func (q *EmailQueue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
	q.wg.Wait()
}

// NopEmailDispatcher discards every message. It backs the "none" provider.
type NopEmailDispatcher struct{}

func (NopEmailDispatcher) Enqueue(EmailMessage) bool { return false }
