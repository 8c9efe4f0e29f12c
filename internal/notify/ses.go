package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog/log"
)

// SESAPI is the subset of the SES v2 client used for delivery.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESNotifier sends email through Amazon SES v2.
type SESNotifier struct {
	client      SESAPI
	fromAddress string
}

// NewSESNotifier loads the default AWS credential chain for region.
func NewSESNotifier(ctx context.Context, region, fromEmail, fromName string) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESNotifierWithClient(sesv2.NewFromConfig(cfg), fromEmail, fromName), nil
}

func NewSESNotifierWithClient(client SESAPI, fromEmail, fromName string) *SESNotifier {
	from := fromEmail
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromEmail)
	}
	return &SESNotifier{client: client, fromAddress: from}
}

func (n *SESNotifier) Name() string { return "ses" }

func (n *SESNotifier) Send(ctx context.Context, msg Message) (Receipt, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(msg.HTML),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(msg.Text),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	out, err := n.client.SendEmail(ctx, input)
	if err != nil {
		log.Warn().Err(err).Msg("SES SendEmail failed")
		return Receipt{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	receipt := Receipt{DeliveryID: aws.ToString(out.MessageId)}
	log.Info().Str("delivery_id", receipt.DeliveryID).Msg("Email accepted by SES")
	return receipt, nil
}
