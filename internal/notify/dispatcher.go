package notify

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"mesh-agent/internal/common/config"
	"mesh-agent/internal/common/logger"
)

// SNSService is the slice of the SNS client the dispatcher needs; tests
// substitute a mock.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SESService is the slice of the SES client the dispatcher needs.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// Dispatcher pushes staff alerts to the SNS topic, with an optional email
// copy. Notify is fire-and-forget: a failed alert is logged and swallowed,
// it never blocks or alters the customer-facing reply.
type Dispatcher struct {
	sns    SNSService
	ses    SESService
	cfg    config.NotificationConfig
	logger logger.Logger
}

func NewDispatcher(snsClient SNSService, sesClient SESService, cfg config.NotificationConfig, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		sns:    snsClient,
		ses:    sesClient,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

func (d *Dispatcher) Notify(ctx context.Context, identity, text string) {
	// The reply must not wait on AWS; detach from the turn's context.
	go d.send(context.WithoutCancel(ctx), identity, text)
}

func (d *Dispatcher) send(ctx context.Context, identity, text string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if d.sns != nil && d.cfg.SNSTopicARN != "" {
		_, err := d.sns.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(d.cfg.SNSTopicARN),
			Subject:  aws.String("Conversation needs a human"),
			Message:  aws.String(text),
		})
		if err != nil {
			d.logger.Error("sns publish failed", map[string]interface{}{
				"identity": identity, "error": err.Error(),
			})
		}
	}

	if d.ses != nil && d.cfg.EmailEnabled && d.cfg.EmailTo != "" {
		_, err := d.ses.SendEmail(ctx, &ses.SendEmailInput{
			Source: aws.String(d.cfg.EmailFrom),
			Destination: &sestypes.Destination{
				ToAddresses: []string{d.cfg.EmailTo},
			},
			Message: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String("Conversation needs a human: " + identity)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(text)},
				},
			},
		})
		if err != nil {
			d.logger.Error("ses send failed", map[string]interface{}{
				"identity": identity, "error": err.Error(),
			})
		}
	}
}
