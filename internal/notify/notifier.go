package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"go.uber.org/zap"

	"github.com/alam-gir/wafipix-backend/internal/config"
	"github.com/alam-gir/wafipix-backend/internal/util"
)

// Notifier delivers a one-time code to a recipient. Implementations are
// swapped per environment: real SMTP in production, a logging sender in
// development.
type Notifier interface {
	SendOTP(ctx context.Context, to, code string, expiresInMinutes int) error
}

// SMTPSender sends OTP emails as multipart MIME over SMTP.
type SMTPSender struct {
	cfg config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) SendOTP(ctx context.Context, to, code string, expiresInMinutes int) error {
	subject := "Your verification code"

	htmlBody, err := buildOTPEmail(code, expiresInMinutes)
	if err != nil {
		return fmt.Errorf("build email body: %w", err)
	}

	textBody := fmt.Sprintf(`Your verification code

%s

This code expires in %d minutes. If you didn't request it, you can safely ignore this email.
`, code, expiresInMinutes)

	msg := s.buildMIMEMessage(to, subject, textBody, htmlBody)

	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) buildMIMEMessage(to, subject, textBody, htmlBody string) []byte {
	var buf bytes.Buffer
	boundary := "==OTPBoundary=="

	buf.WriteString(fmt.Sprintf("From: %s\r\n", s.cfg.From))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", to))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(textBody)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: 7bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(htmlBody)
	buf.WriteString("\r\n")

	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return buf.Bytes()
}

const otpEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Your verification code</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; background-color: #f8fafc;">
    <table role="presentation" style="width: 100%; border-collapse: collapse;">
        <tr>
            <td style="padding: 40px 20px;">
                <table role="presentation" style="max-width: 480px; margin: 0 auto; background-color: #ffffff; border-radius: 16px;">
                    <tr>
                        <td style="padding: 40px;">
                            <h1 style="margin: 0 0 16px; font-size: 24px; font-weight: 600; text-align: center; color: #1e293b;">
                                Your verification code
                            </h1>
                            <p style="margin: 0 0 24px; font-size: 16px; text-align: center; color: #64748b;">
                                Enter this code to sign in. It expires in <strong>{{.ExpiresInMinutes}} minutes</strong>.
                            </p>
                            <p style="margin: 0 0 24px; font-size: 32px; letter-spacing: 8px; font-weight: 700; text-align: center; color: #1e293b;">
                                {{.Code}}
                            </p>
                            <hr style="border: none; border-top: 1px solid #e2e8f0; margin: 24px 0;">
                            <p style="margin: 0; font-size: 12px; text-align: center; color: #94a3b8;">
                                If you didn't request this code, you can safely ignore this email.
                            </p>
                        </td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>`

func buildOTPEmail(code string, expiresInMinutes int) (string, error) {
	tmpl, err := template.New("otp").Parse(otpEmailTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]interface{}{
		"Code":             code,
		"ExpiresInMinutes": expiresInMinutes,
	}); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// LoggingSender logs codes instead of sending. Development only.
type LoggingSender struct{}

func (LoggingSender) SendOTP(ctx context.Context, to, code string, expiresInMinutes int) error {
	util.Info("otp issued (dev sender)",
		zap.String("to", to),
		zap.String("code", code),
		zap.Int("expires_in_minutes", expiresInMinutes))
	return nil
}
