// Package queue provides the narrow SQS surface the worker consumes:
// long-poll receive, acknowledge by delete, and delayed re-send.
package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Message is one received queue message. ReceiptHandle is the delivery
// handle acknowledgment operates on; it identifies this delivery, not the
// message body.
type Message struct {
	Body          string
	ReceiptHandle string
}

// Client is the queue transport contract the poll loop and pipeline depend
// on. *SQS implements it; tests substitute fakes.
type Client interface {
	Receive(ctx context.Context, maxMessages int32, waitSeconds int32) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
	Send(ctx context.Context, body string, delaySeconds int32) error
}

// SQS adapts the AWS SQS client to the Client contract for one queue URL.
type SQS struct {
	client            *sqs.Client
	queueURL          string
	visibilitySeconds int32
}

// NewSQS wraps an AWS SQS client. visibilitySeconds sizes the redelivery
// window applied to received messages; it must exceed worst-case pipeline
// duration.
func NewSQS(client *sqs.Client, queueURL string, visibilitySeconds int32) *SQS {
	return &SQS{client: client, queueURL: queueURL, visibilitySeconds: visibilitySeconds}
}

func (s *SQS) Receive(ctx context.Context, maxMessages int32, waitSeconds int32) ([]Message, error) {
	output, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     waitSeconds,
		VisibilityTimeout:   s.visibilitySeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", err)
	}
	messages := make([]Message, 0, len(output.Messages))
	for _, msg := range output.Messages {
		messages = append(messages, Message{
			Body:          aws.ToString(msg.Body),
			ReceiptHandle: aws.ToString(msg.ReceiptHandle),
		})
	}
	return messages, nil
}

func (s *SQS) Delete(ctx context.Context, receiptHandle string) error {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (s *SQS) Send(ctx context.Context, body string, delaySeconds int32) error {
	_, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(s.queueURL),
		MessageBody:  aws.String(body),
		DelaySeconds: delaySeconds,
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Purge drains the queue. Operator tooling only, never called by the worker.
func (s *SQS) Purge(ctx context.Context) error {
	_, err := s.client.PurgeQueue(ctx, &sqs.PurgeQueueInput{
		QueueUrl: aws.String(s.queueURL),
	})
	if err != nil {
		return fmt.Errorf("purge queue: %w", err)
	}
	return nil
}
