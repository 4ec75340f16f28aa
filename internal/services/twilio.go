package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// TwilioTransport sends WhatsApp messages through Twilio
type TwilioTransport struct {
	client *twilio.RestClient
	from   string // Default sender, format: "whatsapp:+14155238886"
}

// NewTwilioTransport creates a Twilio transport. from is used when a tenant
// has no sender of its own.
func NewTwilioTransport(accountSid, authToken, from string) (*TwilioTransport, error) {
	if accountSid == "" || authToken == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})

	return &TwilioTransport{client: client, from: from}, nil
}

// SendText sends a WhatsApp message via Twilio. The Twilio client takes no
// context, so the call is abandoned when ctx ends.
func (t *TwilioTransport) SendText(ctx context.Context, identity, to, text string) error {
	from := identity
	if from == "" {
		from = t.from
	}
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(from)
	params.SetTo(fmt.Sprintf("whatsapp:+%s", strings.TrimPrefix(to, "+")))
	params.SetBody(text)

	done := make(chan error, 1)
	go func() {
		resp, err := t.client.Api.CreateMessage(params)
		if err != nil {
			done <- err
			return
		}
		if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
			msg := ""
			if resp.ErrorMessage != nil {
				msg = *resp.ErrorMessage
			}
			done <- fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, msg)
			return
		}
		if resp.Sid != nil {
			zap.L().Debug("twilio message sent", zap.String("sid", *resp.Sid))
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("twilio send: %w", ctx.Err())
	}
}
