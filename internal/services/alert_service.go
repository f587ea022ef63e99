package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/dmcneil/storefront/pkg/logger"
)

// AlertService defines the interface for operational security alerts
type AlertService interface {
	SendLockoutAlert(ctx context.Context, email string, lockedUntil time.Time) error
}

// AWSSESAlertService sends security alerts using AWS SES
type AWSSESAlertService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESAlertService creates a new AWS SES alert service
func NewAWSSESAlertService(region, fromAddress string, logger *slog.Logger) (*AWSSESAlertService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESAlertService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendLockoutAlert notifies an account holder that repeated failed
// verification attempts locked their account
func (s *AWSSESAlertService) SendLockoutAlert(ctx context.Context, email string, lockedUntil time.Time) error {
	textBody := fmt.Sprintf(`Your account has been temporarily locked.

We detected several failed verification attempts on your account, so sign-in
is blocked until %s.

If this was you, simply wait and try again after the lockout ends.

If this was NOT you, someone may be trying to access your account. No access
was granted, but we recommend contacting support.

This is an automated message. Please do not reply to this email.
`, lockedUntil.UTC().Format(time.RFC1123))

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Security alert: account temporarily locked"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	if _, err := s.sesClient.SendEmail(ctx, input); err != nil {
		s.logger.Error("failed to send lockout alert",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to send lockout alert: %w", err)
	}

	s.logger.Info("lockout alert sent", slog.String("email", pkglogger.SanitizedEmail(email)))
	return nil
}

// NoopAlertService swallows alerts. Used in development and when alerts
// are disabled by configuration.
type NoopAlertService struct{}

func (NoopAlertService) SendLockoutAlert(ctx context.Context, email string, lockedUntil time.Time) error {
	return nil
}
