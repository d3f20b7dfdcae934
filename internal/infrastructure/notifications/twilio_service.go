package notifications

import (
	"context"
	"errors"

	"github.com/samber/oops"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/you/authsvc/domain"
)

// messageCreator is the part of the Twilio REST API used for SMS
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioServiceImpl implements domain.NotificationService over Twilio SMS.
// The subject is not part of an SMS and is dropped.
type TwilioServiceImpl struct {
	api        messageCreator
	fromNumber string
}

// NewTwilioService creates a new Twilio notification service
func NewTwilioService(accountSID, authToken, fromNumber string) *TwilioServiceImpl {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioServiceImpl{
		api:        client.Api,
		fromNumber: fromNumber,
	}
}

// Send implements domain.NotificationService
func (t *TwilioServiceImpl) Send(ctx context.Context, destination, subject, body string) error {
	if t.fromNumber == "" {
		return oops.Code("SMS_NOT_CONFIGURED").Errorf("twilio sender number is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(destination)
	params.SetFrom(t.fromNumber)
	params.SetBody(body)

	msg, err := t.api.CreateMessage(params)
	if err != nil {
		return oops.Code("SMS_SEND_FAILED").With("to", maskDestination(destination)).Wrap(err)
	}
	if msg != nil && msg.ErrorMessage != nil && *msg.ErrorMessage != "" {
		return oops.Code("SMS_SEND_FAILED").With("to", maskDestination(destination)).Wrap(errors.New(*msg.ErrorMessage))
	}

	return nil
}

// Compile-time interface compliance verification
var _ domain.NotificationService = (*TwilioServiceImpl)(nil)
