package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsAPI is the slice of SQS the queue backend uses. Tests replace it with
// an in-memory fake; production wraps *sqs.Client.
type sqsAPI interface {
	SendMessage(ctx context.Context, input *sqsSendInput) (*sqsSendOutput, error)
	ReceiveMessage(ctx context.Context, input *sqsReceiveInput) (*sqsReceiveOutput, error)
	DeleteMessage(ctx context.Context, input *sqsDeleteInput) error
	ChangeMessageVisibility(ctx context.Context, input *sqsChangeVisibilityInput) error
	ApproximateDepth(ctx context.Context, queueURL string) (*sqsDepth, error)
}

type sqsSendInput struct {
	QueueURL     string
	MessageBody  string
	DelaySeconds int32
	// Attributes become String message attributes, visible in the console
	// without decoding the body.
	Attributes map[string]string
}

type sqsSendOutput struct {
	MessageID string
}

type sqsReceiveInput struct {
	QueueURL            string
	MaxNumberOfMessages int32
	WaitTimeSeconds     int32
	VisibilityTimeout   int32
}

type sqsReceiveOutput struct {
	Messages []sqsReceivedMessage
}

type sqsReceivedMessage struct {
	MessageID     string
	ReceiptHandle string
	Body          string
}

type sqsDeleteInput struct {
	QueueURL      string
	ReceiptHandle string
}

type sqsChangeVisibilityInput struct {
	QueueURL          string
	ReceiptHandle     string
	VisibilityTimeout int32
}

// sqsDepth is the approximate backlog of a queue. Delayed covers jobs still
// waiting out a delay hop.
type sqsDepth struct {
	Visible  int64
	Delayed  int64
	InFlight int64
}

// jobAttributes tags an SQS message with the job it carries.
func jobAttributes(msg *Message) map[string]string {
	return map[string]string{
		"job_id":     msg.ID,
		"content_id": strconv.FormatInt(msg.Payload.ContentID, 10),
		"retry":      strconv.Itoa(msg.RetryCount),
	}
}

var depthAttributes = []types.QueueAttributeName{
	types.QueueAttributeNameApproximateNumberOfMessages,
	types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
	types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
}

type awsSQSClient struct {
	sqs *sqs.Client
}

// newAWSSQSClient loads the default AWS credential chain for region. A
// non-empty endpoint points the client at LocalStack or ElasticMQ.
func newAWSSQSClient(ctx context.Context, region, endpoint string) (*awsSQSClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	var opts []func(*sqs.Options)
	if endpoint != "" {
		opts = append(opts, func(o *sqs.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}
	return &awsSQSClient{sqs: sqs.NewFromConfig(cfg, opts...)}, nil
}

func (c *awsSQSClient) SendMessage(ctx context.Context, in *sqsSendInput) (*sqsSendOutput, error) {
	req := &sqs.SendMessageInput{
		QueueUrl:     aws.String(in.QueueURL),
		MessageBody:  aws.String(in.MessageBody),
		DelaySeconds: in.DelaySeconds,
	}
	if len(in.Attributes) > 0 {
		req.MessageAttributes = make(map[string]types.MessageAttributeValue, len(in.Attributes))
		for k, v := range in.Attributes {
			req.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}
	out, err := c.sqs.SendMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	return &sqsSendOutput{MessageID: aws.ToString(out.MessageId)}, nil
}

func (c *awsSQSClient) ReceiveMessage(ctx context.Context, in *sqsReceiveInput) (*sqsReceiveOutput, error) {
	out, err := c.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(in.QueueURL),
		MaxNumberOfMessages: in.MaxNumberOfMessages,
		WaitTimeSeconds:     in.WaitTimeSeconds,
		VisibilityTimeout:   in.VisibilityTimeout,
	})
	if err != nil {
		return nil, err
	}
	res := &sqsReceiveOutput{Messages: make([]sqsReceivedMessage, len(out.Messages))}
	for i, m := range out.Messages {
		res.Messages[i] = sqsReceivedMessage{
			MessageID:     aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
		}
	}
	return res, nil
}

func (c *awsSQSClient) DeleteMessage(ctx context.Context, in *sqsDeleteInput) error {
	_, err := c.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(in.QueueURL),
		ReceiptHandle: aws.String(in.ReceiptHandle),
	})
	return err
}

func (c *awsSQSClient) ChangeMessageVisibility(ctx context.Context, in *sqsChangeVisibilityInput) error {
	_, err := c.sqs.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(in.QueueURL),
		ReceiptHandle:     aws.String(in.ReceiptHandle),
		VisibilityTimeout: in.VisibilityTimeout,
	})
	return err
}

// ApproximateDepth doubles as the SQS readiness probe.
func (c *awsSQSClient) ApproximateDepth(ctx context.Context, queueURL string) (*sqsDepth, error) {
	out, err := c.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: depthAttributes,
	})
	if err != nil {
		return nil, err
	}
	count := func(name types.QueueAttributeName) int64 {
		n, _ := strconv.ParseInt(out.Attributes[string(name)], 10, 64)
		return n
	}
	return &sqsDepth{
		Visible:  count(types.QueueAttributeNameApproximateNumberOfMessages),
		Delayed:  count(types.QueueAttributeNameApproximateNumberOfMessagesDelayed),
		InFlight: count(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible),
	}, nil
}
