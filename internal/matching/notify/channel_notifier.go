package notify

import (
	"context"
	"errors"
	"fmt"

	apperrors "trainer-match-workers/internal/common/errors"
	"trainer-match-workers/internal/common/logger"
	"trainer-match-workers/internal/models"
	"trainer-match-workers/pkg/registry"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// ErrNoChannel means none of the trainer's contacts has an enabled channel.
var ErrNoChannel = errors.New("no enabled notification channel for trainer")

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type ChannelConfig struct {
	EmailEnabled bool
	FromEmail    string
	SMSEnabled   bool
	SenderID     string
}

// ChannelNotifier sends top-match alerts by email (SES) and SMS (SNS).
type ChannelNotifier struct {
	config    ChannelConfig
	ses       SESService
	sns       SNSService
	templates *registry.TemplateRegistry
	logger    logger.Logger
}

func NewChannelNotifier(cfg ChannelConfig, sesClient SESService, snsClient SNSService, templates *registry.TemplateRegistry, log logger.Logger) *ChannelNotifier {
	if templates == nil {
		templates = registry.Default()
	}
	return &ChannelNotifier{
		config:    cfg,
		ses:       sesClient,
		sns:       snsClient,
		templates: templates,
		logger:    logger.ForComponent(log, "channel-notifier"),
	}
}

// Notify tries every enabled channel the trainer has a contact for. It
// succeeds when at least one channel accepted the message.
func (c *ChannelNotifier) Notify(ctx context.Context, n models.Notification) (models.Delivery, error) {
	delivery := models.Delivery{NotificationID: n.ID}
	data := map[string]interface{}{
		"requirementId":    n.RequirementID,
		"requirementTitle": n.Requirement,
		"trainerName":      n.TrainerName,
		"score":            n.Score,
		"explanation":      n.Explanation,
	}

	var failures []error
	attempted := 0

	if c.config.EmailEnabled && c.ses != nil && n.Email != nil && *n.Email != "" {
		attempted++
		if err := c.sendEmail(ctx, *n.Email, data); err != nil {
			failures = append(failures, sendFailure(models.ChannelEmail, err))
		} else {
			delivery.Channels = append(delivery.Channels, models.ChannelEmail)
			delivery.Contacts = append(delivery.Contacts, *n.Email)
		}
	}

	if c.config.SMSEnabled && c.sns != nil && n.Phone != nil && *n.Phone != "" {
		attempted++
		if err := c.sendSMS(ctx, *n.Phone, data); err != nil {
			failures = append(failures, sendFailure(models.ChannelSMS, err))
		} else {
			delivery.Channels = append(delivery.Channels, models.ChannelSMS)
			delivery.Contacts = append(delivery.Contacts, *n.Phone)
		}
	}

	if attempted == 0 {
		return delivery, ErrNoChannel
	}
	for _, err := range failures {
		c.logger.Warn("notification channel failed", map[string]interface{}{
			"notificationId": n.ID,
			"trainerId":      n.TrainerID,
			"error":          err.Error(),
		})
	}
	if len(delivery.Channels) == 0 {
		return delivery, errors.Join(failures...)
	}
	return delivery, nil
}

// sendFailure keeps the channel and provider reason in the error text.
func sendFailure(channel string, err error) error {
	stdErr := apperrors.NewNotificationSendFailedError(channel, err)
	return fmt.Errorf("%w: %s", stdErr, stdErr.Details)
}

func (c *ChannelNotifier) sendEmail(ctx context.Context, to string, data map[string]interface{}) error {
	tmpl, ok := c.templates.Lookup(models.ChannelEmail)
	if !ok {
		return fmt.Errorf("no %s template registered", models.ChannelEmail)
	}
	body := registry.Render(tmpl.Body, data)

	_, err := c.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(registry.Render(tmpl.Subject, data))},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(c.config.FromEmail),
	})
	return err
}

func (c *ChannelNotifier) sendSMS(ctx context.Context, to string, data map[string]interface{}) error {
	tmpl, ok := c.templates.Lookup(models.ChannelSMS)
	if !ok {
		return fmt.Errorf("no %s template registered", models.ChannelSMS)
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(registry.Render(tmpl.Body, data)),
	}
	if c.config.SenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(c.config.SenderID),
			},
		}
	}
	_, err := c.sns.Publish(ctx, input)
	return err
}
