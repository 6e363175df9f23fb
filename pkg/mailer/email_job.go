package mailer

import (
	"errors"

	"github.com/oksasatya/coherency-auth/pkg/mailer/templates"
)

// EmailJob is a message ready to send. Either Template (rendered with Data)
// or Subject plus Text/HTML must be set.
type EmailJob struct {
	To       string              `json:"to"`
	Subject  string              `json:"subject,omitempty"`
	Text     string              `json:"text,omitempty"`
	HTML     string              `json:"html,omitempty"`
	Template string              `json:"template,omitempty"` // e.g. "lockout_notice"
	Data     templates.EmailData `json:"data,omitempty"`
}

// Render resolves the final subject and bodies.
func (j EmailJob) Render() (subject, text, html string, err error) {
	if j.To == "" {
		return "", "", "", errors.New("email job has no recipient")
	}
	if j.Template == "" {
		if j.Subject == "" || (j.Text == "" && j.HTML == "") {
			return "", "", "", errors.New("email job has no content")
		}
		return j.Subject, j.Text, j.HTML, nil
	}
	return templates.Render(j.Template, j.Data)
}
