package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// State tracks a job through its lifecycle. Failed is terminal: the entity
// keeps whatever artifact it already had.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

const (
	defaultMaxAttempts  = 5
	defaultPollInterval = 5 * time.Second
	defaultLeaseTimeout = 5 * time.Minute
	baseRetryDelay      = 30 * time.Second
)

// Job is one durable unit of background work. Delivery is at least once;
// handlers must be idempotent on their payload's entity id.
type Job struct {
	JobID       string    `gorm:"column:job_id;primaryKey;size:190;not null"`
	Kind        string    `gorm:"column:kind;size:64;not null;index:idx_jobs_state_due,priority:2"`
	PayloadJSON string    `gorm:"column:payload_json;type:text;not null"`
	State       State     `gorm:"column:state;size:16;not null;default:pending;index:idx_jobs_state_due,priority:1"`
	Attempts    int       `gorm:"column:attempts;not null;default:0"`
	MaxAttempts int       `gorm:"column:max_attempts;not null;default:5"`
	RunAfter    time.Time `gorm:"column:run_after;not null;index:idx_jobs_state_due,priority:3"`
	LastError   string    `gorm:"column:last_error;size:1000;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Job) TableName() string {
	return "jobs"
}

// Handler executes one job payload.
type Handler func(ctx context.Context, payloadJSON string) error

var (
	// ErrUnknownKind indicates no handler is registered for a job kind.
	ErrUnknownKind = errors.New("jobs: no handler for kind")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues job identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// QueueConfig describes the queue dependencies.
type QueueConfig struct {
	Database     *gorm.DB
	Clock        func() time.Time
	IDProvider   IDProvider
	Logger       *zap.Logger
	PollInterval time.Duration
	MaxAttempts  int
	// LeaseTimeout bounds how long a claimed job may sit in the running
	// state before another worker pass takes it back.
	LeaseTimeout time.Duration
}

// Queue is a database-backed job queue: enqueue participates in the
// caller's transaction, a polling worker drains due jobs with retry and
// exponential backoff.
type Queue struct {
	db           *gorm.DB
	clock        func() time.Time
	idProvider   IDProvider
	logger       *zap.Logger
	pollInterval time.Duration
	maxAttempts  int
	leaseTimeout time.Duration
	handlers     map[string]Handler
}

// NewQueue constructs the job queue.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	leaseTimeout := cfg.LeaseTimeout
	if leaseTimeout <= 0 {
		leaseTimeout = defaultLeaseTimeout
	}
	return &Queue{
		db:           cfg.Database,
		clock:        clock,
		idProvider:   cfg.IDProvider,
		logger:       logger,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		leaseTimeout: leaseTimeout,
		handlers:     map[string]Handler{},
	}, nil
}

// Register binds a handler to a job kind. Not safe to call once Run started.
func (q *Queue) Register(kind string, handler Handler) {
	q.handlers[kind] = handler
}

// EnqueueTx inserts a job inside the caller's transaction, so a rolled-back
// domain write never leaves an orphaned job behind.
func (q *Queue) EnqueueTx(tx *gorm.DB, kind string, payload interface{}) error {
	jobID, err := q.idProvider.NewID()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := Job{
		JobID:       jobID,
		Kind:        kind,
		PayloadJSON: string(encoded),
		State:       StatePending,
		MaxAttempts: q.maxAttempts,
		RunAfter:    q.clock().UTC(),
	}
	return tx.Create(&record).Error
}

// Enqueue inserts a job in its own transaction.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload interface{}) error {
	return q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return q.EnqueueTx(tx, kind, payload)
	})
}

// Run polls for due jobs until the context is cancelled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()
	q.logger.Info("job worker started", zap.Duration("poll_interval", q.pollInterval))
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("job worker stopped")
			return
		case <-ticker.C:
			for {
				processed, err := q.RunOnce(ctx)
				if err != nil {
					q.logger.Error("job worker pass failed", zap.Error(err))
					break
				}
				if !processed {
					break
				}
			}
		}
	}
}

// RunOnce claims and executes at most one due job; the bool reports whether
// a job was claimed. Claiming takes a lease: run_after moves to the lease
// deadline while the job runs, and a later pass requeues any running job
// whose lease expired, so a worker crash between claim and finish cannot
// strand the job.
func (q *Queue) RunOnce(ctx context.Context) (bool, error) {
	now := q.clock().UTC()

	var claimed Job
	found := false
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reclaimed := tx.Model(&Job{}).
			Where("state = ? AND run_after <= ?", StateRunning, now).
			Update("state", StatePending)
		if reclaimed.Error != nil {
			return reclaimed.Error
		}
		if reclaimed.RowsAffected > 0 {
			q.logger.Warn("requeued jobs with expired leases",
				zap.Int64("count", reclaimed.RowsAffected))
		}

		err := tx.Where("state = ? AND run_after <= ?", StatePending, now).
			Order("run_after ASC").
			First(&claimed).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		result := tx.Model(&Job{}).
			Where("job_id = ? AND state = ?", claimed.JobID, StatePending).
			Updates(map[string]interface{}{
				"state":     StateRunning,
				"attempts":  gorm.Expr("attempts + 1"),
				"run_after": now.Add(q.leaseTimeout),
			})
		if result.Error != nil {
			return result.Error
		}
		found = result.RowsAffected == 1
		return nil
	})
	if err != nil || !found {
		return false, err
	}
	claimed.Attempts++

	handler, ok := q.handlers[claimed.Kind]
	if !ok {
		return true, q.finish(ctx, claimed, fmt.Errorf("%w: %s", ErrUnknownKind, claimed.Kind))
	}
	return true, q.finish(ctx, claimed, handler(ctx, claimed.PayloadJSON))
}

func (q *Queue) finish(ctx context.Context, job Job, handlerErr error) error {
	updates := map[string]interface{}{}
	if handlerErr == nil {
		updates["state"] = StateDone
		updates["last_error"] = ""
	} else if job.Attempts >= job.MaxAttempts {
		updates["state"] = StateFailed
		updates["last_error"] = handlerErr.Error()
		q.logger.Warn("job failed terminally",
			zap.String("job_id", job.JobID),
			zap.String("kind", job.Kind),
			zap.Int("attempts", job.Attempts),
			zap.Error(handlerErr))
	} else {
		delay := baseRetryDelay << (job.Attempts - 1)
		updates["state"] = StatePending
		updates["run_after"] = q.clock().UTC().Add(delay)
		updates["last_error"] = handlerErr.Error()
		q.logger.Info("job retry scheduled",
			zap.String("job_id", job.JobID),
			zap.String("kind", job.Kind),
			zap.Int("attempts", job.Attempts),
			zap.Duration("delay", delay))
	}
	return q.db.WithContext(ctx).Model(&Job{}).
		Where("job_id = ?", job.JobID).
		Updates(updates).Error
}
