package notify

import (
	"fmt"
	"log"
	"os"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Notifier delivers password-reset tokens to users.
type Notifier interface {
	SendPasswordReset(phone, token string) error
}

type twilioNotifier struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioNotifier reads TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and
// TWILIO_FROM_NUMBER from the environment.
func NewTwilioNotifier() Notifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: os.Getenv("TWILIO_ACCOUNT_SID"),
		Password: os.Getenv("TWILIO_AUTH_TOKEN"),
	})

	return &twilioNotifier{
		client: client,
		from:   os.Getenv("TWILIO_FROM_NUMBER"),
	}
}

// SendPasswordReset texts the reset link to the user. Accounts without
// a phone number get the link logged instead, which is also what local
// development runs on.
func (n *twilioNotifier) SendPasswordReset(phone, token string) error {
	link := fmt.Sprintf("%s/change-password/%s", os.Getenv("DOMAIN_URL"), token)

	if phone == "" {
		log.Printf("password reset requested, no phone on file: %s", link)
		return nil
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(n.from)
	params.SetBody("Reset your password: " + link)

	if _, err := n.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("error sending reset SMS: %w", err)
	}
	return nil
}
