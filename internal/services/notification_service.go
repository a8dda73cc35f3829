// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/sirupsen/logrus"

	"github.com/solunex/core-backend/internal/config"
	"github.com/solunex/core-backend/internal/models"
)

// NotificationService delivers license lifecycle emails. All sends are
// fire-and-forget from the caller's point of view: failures are logged
// and never block issuance or revocation.
type NotificationService struct {
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(config *config.Config) *NotificationService {
	return &NotificationService{config: config}
}

func (s *NotificationService) SendLicenseIssuedEmail(license *models.License, name string) {
	if name == "" {
		name = license.UserEmail
	}

	data := map[string]interface{}{
		"Name":       name,
		"Product":    license.AppID,
		"LicenseKey": license.LicenseKey,
		"ExpiresAt":  license.ExpiresAt,
	}

	subject := fmt.Sprintf("Your %s License", license.AppID)
	s.deliver(license.UserEmail, subject, "license_issued", data)
}

func (s *NotificationService) SendLicenseRevokedEmail(license *models.License, reason string) {
	data := map[string]interface{}{
		"Product":    license.AppID,
		"LicenseKey": license.LicenseKey,
		"Reason":     reason,
	}

	subject := fmt.Sprintf("License Revoked - %s", license.AppID)
	s.deliver(license.UserEmail, subject, "license_revoked", data)
}

func (s *NotificationService) SendLicenseRenewedEmail(license *models.License) {
	data := map[string]interface{}{
		"Product":    license.AppID,
		"LicenseKey": license.LicenseKey,
		"ExpiresAt":  license.ExpiresAt,
	}

	subject := fmt.Sprintf("License Renewed - %s", license.AppID)
	s.deliver(license.UserEmail, subject, "license_renewed", data)
}

func (s *NotificationService) deliver(to, subject, templateType string, data map[string]interface{}) {
	tmpl := s.getEmailTemplate(templateType)

	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		logrus.WithError(err).WithField("template", templateType).Error("Failed to render email template")
		return
	}

	if err := s.sendEmail(to, subject, body); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Error("Failed to send email")
	}
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email delivery skipped (SMTP not configured)")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"license_issued": {
			Subject: "License Issued",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Solunex License Issued</h2>
	<p>Hello {{.Name}},</p>
	<p>Thank you for your purchase of <b>{{.Product}}</b>.</p>
	<p><b>License Key:</b> {{.LicenseKey}}</p>
	{{if .ExpiresAt}}<p><b>Expires At:</b> {{.ExpiresAt}}</p>{{end}}
	<p>You can activate this license inside the client application.</p>
	<p>Regards,<br>Solunex License Core</p>
</body>
</html>`,
		},
		"license_revoked": {
			Subject: "License Revoked",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>License Revoked</h2>
	<p>Your license <b>{{.LicenseKey}}</b> for {{.Product}} has been revoked.</p>
	{{if .Reason}}<p><b>Reason:</b> {{.Reason}}</p>{{end}}
	<p>If you believe this is a mistake, please contact support.</p>
	<p>Regards,<br>Solunex License Core</p>
</body>
</html>`,
		},
		"license_renewed": {
			Subject: "License Renewed",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>License Renewed</h2>
	<p>Your license <b>{{.LicenseKey}}</b> for {{.Product}} has been renewed.</p>
	{{if .ExpiresAt}}<p><b>New Expiry:</b> {{.ExpiresAt}}</p>{{end}}
	<p>Regards,<br>Solunex License Core</p>
</body>
</html>`,
		},
	}

	if tmpl, exists := templates[templateType]; exists {
		return tmpl
	}

	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
