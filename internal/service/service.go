// Package service holds the use cases behind the HTTP handlers.
package service

import (
	"Dyvine/internal/apperr"
	"Dyvine/internal/enumerate"
	"Dyvine/internal/livestream"
	"Dyvine/internal/registry"
	"Dyvine/internal/source"
	"Dyvine/internal/task"
	"Dyvine/model"
	"Dyvine/utils"
	"context"
	"log/slog"
	"time"
)

// Downloader runs a bulk download under an existing operation.
type Downloader interface {
	Download(ctx context.Context, opID string, req enumerate.Request, expected int) error
}

// Deps are the collaborators of Service.
type Deps struct {
	Registry   *registry.Registry
	Source     source.Source
	Downloader Downloader
	Livestream *livestream.Controller
	Supervisor *task.Supervisor
	// Cache is optional; nil disables profile caching.
	Cache      utils.Cache
	ProfileTTL time.Duration
	Logger     *slog.Logger
}

// Service implements the API use cases.
type Service struct {
	registry   *registry.Registry
	source     source.Source
	downloader Downloader
	live       *livestream.Controller
	supervisor *task.Supervisor
	cache      utils.Cache
	profileTTL time.Duration
	logger     *slog.Logger
}

// New builds a Service.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := d.ProfileTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		registry:   d.Registry,
		source:     d.Source,
		downloader: d.Downloader,
		live:       d.Livestream,
		supervisor: d.Supervisor,
		cache:      d.Cache,
		profileTTL: ttl,
		logger:     logger,
	}
}

// Resource groups the operation kinds served under one URL prefix.
type Resource string

const (
	ResourceUsers       Resource = "users"
	ResourcePosts       Resource = "posts"
	ResourceLivestreams Resource = "livestreams"
)

// Kinds returns the operation kinds of the resource.
func (r Resource) Kinds() []model.OperationKind {
	switch r {
	case ResourceUsers:
		return []model.OperationKind{model.KindUserContent}
	case ResourcePosts:
		return []model.OperationKind{model.KindPosts}
	case ResourceLivestreams:
		return []model.OperationKind{model.KindLivestream}
	}
	return nil
}

func (r Resource) owns(kind model.OperationKind) bool {
	for _, k := range r.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// GetOperation returns the snapshot of operation id under resource.
func (s *Service) GetOperation(resource Resource, id string) (model.Operation, error) {
	op, err := s.registry.Get(id)
	if err != nil {
		return model.Operation{}, err
	}
	if !resource.owns(op.Kind) {
		return model.Operation{}, apperr.Newf(apperr.NotFound, "operation %s not found", id)
	}
	return op, nil
}

// ListOperations returns the live operations of resource, newest first.
func (s *Service) ListOperations(resource Resource, status string) ([]model.Operation, error) {
	st := model.OperationStatus(status)
	switch st {
	case "", model.StatusPending, model.StatusRunning, model.StatusSuccess, model.StatusPartialSuccess, model.StatusFailed:
	default:
		return nil, apperr.Newf(apperr.Validation, "unknown status %q", status)
	}
	return s.registry.List(resource.Kinds(), st), nil
}

// CancelOperation asks the job of operation id to stop. Terminal operations
// are a Conflict.
func (s *Service) CancelOperation(resource Resource, id string) (model.Operation, error) {
	op, err := s.GetOperation(resource, id)
	if err != nil {
		return model.Operation{}, err
	}
	if op.Status.IsTerminal() {
		return op, apperr.Newf(apperr.Conflict, "operation %s already finished as %s", id, op.Status)
	}
	if err := s.supervisor.Cancel(id); err != nil {
		return op, err
	}
	s.logger.Info("operation cancel requested", "operation_id", id)
	return op, nil
}

// submit hands job for op to the supervisor, failing op when the
// supervisor refuses it.
func (s *Service) submit(op model.Operation, limited bool, job task.Job) error {
	if err := s.supervisor.Submit(op.ID, op.Kind, limited, job); err != nil {
		failed, uerr := s.registry.Update(context.Background(), op.ID, func(o *model.Operation) error {
			o.Status = model.StatusFailed
			o.Error = &model.OperationError{Code: string(apperr.CodeOf(err)), Message: err.Error()}
			return nil
		})
		if uerr == nil {
			s.supervisor.Report(failed)
		}
		return err
	}
	return nil
}
