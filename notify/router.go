package notify

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"kapantask/domain"
	"kapantask/jobs"
)

// Route runs one notification for the object with the given id.
type Route func(ctx context.Context, id int64) Result

// Router dispatches jobs to routes by job name.
type Router struct {
	routes   map[string]Route
	recorder Recorder
	logger   *log.Logger
}

// NewRouter registers the notification routes of d. recorder may be nil.
func NewRouter(d *Dispatcher, recorder Recorder, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.StandardLogger()
	}
	r := &Router{routes: map[string]Route{}, recorder: recorder, logger: logger}
	r.Register(domain.JobSendTaskNotification, d.SendTaskNotification)
	r.Register(domain.JobSendCommentNotification, d.SendCommentNotification)
	return r
}

func (r *Router) Register(name string, route Route) {
	r.routes[name] = route
}

// Handle implements jobs.Handler. Dispatch outcomes are logged and recorded;
// only malformed jobs and recorder failures produce an error.
func (r *Router) Handle(ctx context.Context, job jobs.Job) error {
	route, ok := r.routes[job.Name]
	if !ok {
		return fmt.Errorf("unknown job %s", job.Name)
	}
	var args domain.NotificationArgs
	if err := job.Bind(&args); err != nil {
		return fmt.Errorf("bind %s args: %w", job.Name, err)
	}
	res := route(ctx, args.ID)
	res.JobID = job.ID

	entry := r.logger.WithFields(log.Fields{
		"job":        res.Job,
		"job_id":     res.JobID,
		"object_id":  res.ObjectID,
		"status":     res.Status,
		"recipients": res.Recipients,
	})
	switch res.Status {
	case StatusSent:
		entry.Info(res.String())
	case StatusFailed:
		entry.Error(res.String())
	default:
		entry.Warn(res.String())
	}

	if r.recorder != nil {
		if err := r.recorder.Record(ctx, res); err != nil {
			return fmt.Errorf("record %s result: %w", job.Name, err)
		}
	}
	return nil
}
