package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	pkglogger "github.com/dmcneil/storefront/pkg/logger"
)

// SMSService defines the interface for sending verification codes by SMS
type SMSService interface {
	SendVerificationCode(ctx context.Context, phone, code string) error
}

// AWSSNSSMSService sends SMS messages using AWS SNS
type AWSSNSSMSService struct {
	snsClient *sns.Client
	senderID  string
	logger    *slog.Logger
}

// NewAWSSNSSMSService creates a new AWS SNS SMS service
func NewAWSSNSSMSService(region, senderID string, logger *slog.Logger) (*AWSSNSSMSService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSNSSMSService{
		snsClient: sns.NewFromConfig(cfg),
		senderID:  senderID,
		logger:    logger,
	}, nil
}

// SendVerificationCode delivers a one-time code to a phone number
func (s *AWSSNSSMSService) SendVerificationCode(ctx context.Context, phone, code string) error {
	message := fmt.Sprintf("Your verification code is %s. It expires in 10 minutes. Never share this code.", code)

	attributes := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	input := &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(message),
		MessageAttributes: attributes,
	}

	result, err := s.snsClient.Publish(ctx, input)
	if err != nil {
		s.logger.Error("failed to send verification SMS",
			slog.String("phone", pkglogger.SanitizedPhone(phone)),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to send SMS: %w", err)
	}

	s.logger.Info("verification SMS sent",
		slog.String("phone", pkglogger.SanitizedPhone(phone)),
		slog.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

// NoopSMSService logs codes instead of sending them. Used in development
// where no SNS credentials exist.
type NoopSMSService struct {
	logger *slog.Logger
}

// NewNoopSMSService creates a development SMS service
func NewNoopSMSService(logger *slog.Logger) *NoopSMSService {
	return &NoopSMSService{logger: logger}
}

func (s *NoopSMSService) SendVerificationCode(ctx context.Context, phone, code string) error {
	s.logger.Info("dev SMS delivery",
		slog.String("phone", pkglogger.SanitizedPhone(phone)),
		slog.String("code", code),
	)
	return nil
}
