package service

import (
	"fmt"
	"os"
	"strings"
	"time"

	"parkhere/internal/db"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SenderService delivers session receipts over email and SMS. Both channels
// are best-effort: a failed delivery is logged, never surfaced to the
// session flow.
type SenderService struct{}

func NewSenderService() *SenderService {
	return &SenderService{}
}

func (s *SenderService) SendReceiptEmail(user db.User, sess db.ParkingSession, locationName string) {
	endedAt := time.Now().UTC()
	if sess.EndedAt != nil {
		endedAt = *sess.EndedAt
	}

	subject := fmt.Sprintf("Your ParkHere receipt - %s", locationName)
	plainBody := fmt.Sprintf(
		"Hello %s,\n\nYour parking session at %s has ended.\n\n"+
			"Started: %s\n"+
			"Ended: %s\n"+
			"Amount due: $%.2f\n\n"+
			"Thank you for parking with ParkHere.",
		user.Name, locationName,
		sess.StartedAt.Format("02 Jan 2006 15:04 MST"),
		endedAt.Format("02 Jan 2006 15:04 MST"),
		float64(sess.FeeCents)/100,
	)
	htmlBody := fmt.Sprintf(
		"<p>Hello %s,</p><p>Your parking session at <strong>%s</strong> has ended.</p>"+
			"<p>Started: %s<br>Ended: %s<br>Amount due: <strong>$%.2f</strong></p>"+
			"<p>Thank you for parking with ParkHere.</p>",
		user.Name, locationName,
		sess.StartedAt.Format("02 Jan 2006 15:04 MST"),
		endedAt.Format("02 Jan 2006 15:04 MST"),
		float64(sess.FeeCents)/100,
	)

	if err := sendEmailWithSendGrid(user.Email, user.Name, subject, plainBody, htmlBody); err != nil {
		logrus.WithError(err).WithField("session_id", sess.ID).Warn("receipt email delivery failed")
	}
}

func (s *SenderService) SendReceiptSMS(user db.User, sess db.ParkingSession, locationName string) {
	if user.Phone == "" {
		return
	}
	message := fmt.Sprintf("ParkHere: your session at %s has ended. Amount due: $%.2f. Receipt in your email.",
		locationName, float64(sess.FeeCents)/100)
	if err := sendSMS(user.Phone, message); err != nil {
		logrus.WithError(err).WithField("session_id", sess.ID).Warn("receipt SMS delivery failed")
	}
}

func sendEmailWithSendGrid(toEmailAddress, toName, subject, plainTextContent, htmlContent string) error {
	sendgridAPIKey := os.Getenv("SENDGRID_API_KEY")
	if sendgridAPIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY not set")
	}
	fromEmail := os.Getenv("SENDGRID_FROM_EMAIL")
	if fromEmail == "" {
		return fmt.Errorf("SENDGRID_FROM_EMAIL not set")
	}
	fromName := os.Getenv("SENDGRID_FROM_NAME")
	if fromName == "" {
		fromName = "ParkHere"
	}

	from := mail.NewEmail(fromName, fromEmail)
	to := mail.NewEmail(toName, toEmailAddress)
	message := mail.NewSingleEmail(from, subject, to, plainTextContent, htmlContent)

	client := sendgrid.NewSendClient(sendgridAPIKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}

func sendSMS(toNumber, messageBody string) error {
	accountSid := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	fromNumber := os.Getenv("TWILIO_FROM_NUMBER")
	if accountSid == "" || authToken == "" || fromNumber == "" {
		return fmt.Errorf("twilio credentials not fully configured")
	}
	if !strings.HasPrefix(toNumber, "+") {
		logrus.WithField("to", toNumber).Warn("destination number is not E.164, SMS may fail")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   accountSid,
		Password:   authToken,
		AccountSid: accountSid,
	})

	params := &openapi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(fromNumber)
	params.SetBody(messageBody)

	if _, err := client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send failed: %w", err)
	}
	return nil
}
