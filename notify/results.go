package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

// Recorder persists dispatch results.
type Recorder interface {
	Record(ctx context.Context, res Result) error
}

// TableRecorder writes one entity per job into an Azure table, partitioned by
// job name and keyed by job id.
type TableRecorder struct {
	client *aztables.Client
	now    func() time.Time
}

func NewTableRecorder(connStr, table string) (*TableRecorder, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableRecorder{client: svc.NewClient(table), now: time.Now}, nil
}

// EnsureExists creates the table, ignoring TableAlreadyExists.
func (r *TableRecorder) EnsureExists(ctx context.Context) error {
	_, err := r.client.CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

type resultEntity struct {
	aztables.Entity
	ObjectID   int64  `json:"ObjectID"`
	Status     string `json:"Status"`
	Recipients string `json:"Recipients"`
	Detail     string `json:"Detail"`
	Message    string `json:"Message"`
	RecordedAt string `json:"RecordedAt"`
}

func newResultEntity(res Result, at time.Time) resultEntity {
	return resultEntity{
		Entity:     aztables.Entity{PartitionKey: res.Job, RowKey: res.JobID},
		ObjectID:   res.ObjectID,
		Status:     string(res.Status),
		Recipients: strings.Join(res.Recipients, ","),
		Detail:     res.Detail,
		Message:    res.String(),
		RecordedAt: at.UTC().Format(time.RFC3339),
	}
}

// Record upserts the result so redelivered jobs overwrite their own row.
func (r *TableRecorder) Record(ctx context.Context, res Result) error {
	if res.JobID == "" {
		return errors.New("result has no job id")
	}
	payload, err := sonic.Marshal(newResultEntity(res, r.now()))
	if err != nil {
		return err
	}
	_, err = r.client.UpsertEntity(ctx, payload, nil)
	return err
}
