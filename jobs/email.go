package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-admin/internal/jobs"
)

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SMTPMailer sends mail through a plain SMTP relay such as Mailpit.
type SMTPMailer struct {
	Host string
	Port int
	From string
}

// Send implements Mailer.
func (m SMTPMailer) Send(_ context.Context, msg SendEmailPayload) error {
	addr := m.Host + ":" + strconv.Itoa(m.Port)
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	return smtp.SendMail(addr, nil, m.From, []string{msg.To}, []byte(b.String()))
}

// EmailJob processes TaskTypeSendEmail tasks.
type EmailJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewEmailJob wires dependencies for the email handler.
func NewEmailJob(mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *EmailJob {
	return &EmailJob{Mailer: mailer, Logger: logger, Metrics: metrics}
}

// Handle decodes the payload and hands it to the mailer.
func (j *EmailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Mailer == nil {
		return errors.New("send email: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("send email: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskTypeSendEmail)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("to", payload.To), slog.String("subject", payload.Subject))
	if err := j.Mailer.Send(ctx, payload); err != nil {
		logger.Error("send email", slog.Any("error", err))
		return err
	}
	logger.Info("email sent")
	return nil
}

func (j *EmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
