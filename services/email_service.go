package services

import (
	"database/sql"
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"

	"backend/models"

	"golang.org/x/net/html"
)

// EmailService sends plant notifications over SMTP. Templates are plain
// HTML with {{variable}} placeholders; a text alternative is derived from
// the HTML so line terminals with text-only clients still get readable mail.
type EmailService struct {
	db *sql.DB
}

func NewEmailService(db *sql.DB) *EmailService {
	return &EmailService{db: db}
}

// processTemplate substitutes {{key}} placeholders from the email data.
func (es *EmailService) processTemplate(content string, data models.EmailData) string {
	for key, value := range data.Variables {
		content = strings.ReplaceAll(content, "{{"+key+"}}", value)
	}
	return content
}

// convertHTMLToText strips markup for the plain-text alternative.
func convertHTMLToText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return htmlContent
	}

	var text strings.Builder
	var extractText func(*html.Node)
	extractText = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text.WriteString(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "p", "div", "br", "h1", "h2", "h3", "tr", "table":
				text.WriteString("\n")
			case "li":
				text.WriteString("- ")
			case "td", "th":
				text.WriteString(" | ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			extractText(child)
		}
	}
	extractText(doc)

	result := strings.ReplaceAll(text.String(), "\n\n\n", "\n\n")
	return strings.TrimSpace(result)
}

// qaRecipients returns the email addresses of active QA-role users.
func (es *EmailService) qaRecipients() ([]string, error) {
	rows, err := es.db.Query(`
		SELECT u.email FROM users u
		JOIN roles r ON u.role_id = r.role_id
		WHERE r.role_name = 'QA' AND u.suspended = false`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch QA recipients: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func (es *EmailService) send(to []string, subject, htmlBody string) error {
	host := os.Getenv("SMTP_HOST")
	port := os.Getenv("SMTP_PORT")
	from := os.Getenv("SMTP_FROM")
	password := os.Getenv("SMTP_PASSWORD")

	if host == "" || from == "" {
		return fmt.Errorf("SMTP not configured")
	}
	if port == "" {
		port = "587"
	}

	plain := convertHTMLToText(htmlBody)
	msg := strings.Builder{}
	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(plain)

	auth := smtp.PlainAuth("", from, password, host)
	return smtp.SendMail(host+":"+port, auth, from, to, []byte(msg.String()))
}

const metalFailTemplate = `
<h2>Metal check failed</h2>
<p>Sorting output {{output_id}} on batch {{batch_code}} failed metal detection
(attempt {{attempt_no}}).</p>
<p>Rejected mass so far: {{rejected_kg}} kg. Packing stays blocked until a
re-check passes.</p>`

// SendMetalCheckAlert notifies QA users about a failed metal-detection
// attempt. Failures here are logged and swallowed; the attempt itself is
// already committed and must not be affected by mail problems.
func (es *EmailService) SendMetalCheckAlert(batchCode string, outputID, attemptNo int, rejectedKg float64) {
	recipients, err := es.qaRecipients()
	if err != nil {
		log.Printf("metal check alert: %v", err)
		return
	}
	if len(recipients) == 0 {
		return
	}

	body := es.processTemplate(metalFailTemplate, models.EmailData{Variables: map[string]string{
		"output_id":   fmt.Sprintf("%d", outputID),
		"batch_code":  batchCode,
		"attempt_no":  fmt.Sprintf("%d", attemptNo),
		"rejected_kg": fmt.Sprintf("%.2f", rejectedKg),
	}})

	subject := fmt.Sprintf("Metal check FAIL on batch %s", batchCode)
	if err := es.send(recipients, subject, body); err != nil {
		log.Printf("metal check alert: failed to send email: %v", err)
	}
}
