package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// AzureQueue stores jobs in an Azure Storage queue.
type AzureQueue struct {
	client     *azqueue.QueueClient
	visibility time.Duration
}

// NewAzureQueue connects to queueName using a storage connection string.
// visibility is how long a received message stays hidden before it is
// redelivered to another consumer.
func NewAzureQueue(connStr, queueName string, visibility time.Duration) (*AzureQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	client, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &AzureQueue{client: client, visibility: visibility}, nil
}

// EnsureExists creates the queue, ignoring QueueAlreadyExists.
func (q *AzureQueue) EnsureExists(ctx context.Context) error {
	_, err := q.client.Create(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists" {
			return nil
		}
		return err
	}
	return nil
}

func (q *AzureQueue) Enqueue(ctx context.Context, job Job) error {
	text, err := encode(job)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueMessage(ctx, text, nil)
	return err
}

func (q *AzureQueue) Receive(ctx context.Context) (*Delivery, error) {
	vis := int32(q.visibility / time.Second)
	resp, err := q.client.DequeueMessage(ctx, &azqueue.DequeueMessageOptions{VisibilityTimeout: &vis})
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	msg := resp.Messages[0]
	if msg.MessageID == nil || msg.PopReceipt == nil {
		return nil, errors.New("dequeued message without id or receipt")
	}
	d := &Delivery{MessageID: *msg.MessageID, Receipt: *msg.PopReceipt}
	if msg.DequeueCount != nil {
		d.DequeueCount = *msg.DequeueCount
	}
	var text string
	if msg.MessageText != nil {
		text = *msg.MessageText
	}
	job, err := decode(text)
	if err != nil {
		d.Raw = text
		return d, nil
	}
	d.Job = job
	return d, nil
}

func (q *AzureQueue) Ack(ctx context.Context, d *Delivery) error {
	if d == nil {
		return nil
	}
	_, err := q.client.DeleteMessage(ctx, d.MessageID, d.Receipt, nil)
	return err
}
