// Package jobs carries background work between the web process and the
// notification worker over a queue with at-least-once delivery.
package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Job names a function to run in the worker together with its arguments.
type Job struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Args      sonic.NoCopyRawMessage `json:"args,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// New builds a job with a fresh id.
func New(name string, args any) (Job, error) {
	if name == "" {
		return Job{}, errors.New("job name is required")
	}
	payload, err := sonic.Marshal(args)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s args: %w", name, err)
	}
	return Job{
		ID:        uuid.NewString(),
		Name:      name,
		Args:      payload,
		Timestamp: time.Now().UTC().UnixNano(),
	}, nil
}

// Bind decodes the job arguments into v.
func (j Job) Bind(v any) error {
	if len(j.Args) == 0 {
		return fmt.Errorf("job %s has no args", j.ID)
	}
	return sonic.Unmarshal(j.Args, v)
}

func encode(j Job) (string, error) {
	data, err := sonic.MarshalString(j)
	if err != nil {
		return "", err
	}
	return data, nil
}

func decode(text string) (Job, error) {
	var j Job
	if err := sonic.UnmarshalString(text, &j); err != nil {
		return Job{}, err
	}
	if j.Name == "" {
		return Job{}, errors.New("job without name")
	}
	return j, nil
}
