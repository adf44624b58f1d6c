package jobs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if payload.To == "" {
		return nil, errors.New("jobs: email recipient required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// PasswordChangedNotice builds the email telling an administrator their
// password was changed from the dashboard.
func PasswordChangedNotice(name, email string) SendEmailPayload {
	return SendEmailPayload{
		To:      email,
		Subject: "Your admin password was changed",
		Body: fmt.Sprintf("Hello %s,\n\nThe password for your administrator account (%s) was just changed from the admin dashboard.\n"+
			"If you did not expect this, contact another administrator immediately.\n", name, email),
	}
}
