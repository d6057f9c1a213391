package session

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/lehigh-university-libraries/imageeditor/internal/apperr"
	"github.com/lehigh-university-libraries/imageeditor/internal/history"
	"github.com/lehigh-university-libraries/imageeditor/internal/metrics"
	"github.com/lehigh-university-libraries/imageeditor/internal/staging"
	"github.com/lehigh-university-libraries/imageeditor/internal/transform"
	"github.com/lehigh-university-libraries/imageeditor/internal/workflow"
)

// ErrSuperseded is returned by Submit when the workflow selection or the
// upload changed while the remote call was running. Its result is dropped.
var ErrSuperseded = errors.New("workflow changed while the transform was running; result discarded")

// Transformer executes a built transform request.
type Transformer interface {
	Execute(ctx context.Context, req *transform.Request) (*transform.Result, error)
}

// Recorder receives one entry per finished submission.
type Recorder interface {
	Record(e history.Entry) error
}

// Controller drives the workflow selector, upload staging and transform
// submission for a session.
type Controller struct {
	stager      *staging.Stager
	transformer Transformer
	recorder    Recorder
	now         func() time.Time
}

func NewController(stager *staging.Stager, transformer Transformer, recorder Recorder) *Controller {
	return &Controller{
		stager:      stager,
		transformer: transformer,
		recorder:    recorder,
		now:         time.Now,
	}
}

func requireAuth(s *Session, op string) error {
	if s.status != Authenticated {
		return apperr.Auth(op, "please login to use the app")
	}
	return nil
}

// Select makes kind the active workflow. Switching to a different
// workflow discards the staged upload and any previous result;
// reselecting the current one changes nothing.
func (c *Controller) Select(s *Session, kind workflow.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := requireAuth(s, "select workflow"); err != nil {
		return err
	}
	if !kind.Valid() {
		return apperr.Validation("select workflow", "unknown workflow")
	}
	if s.workflow == kind {
		return nil
	}

	previous := s.workflow
	s.workflow = kind
	s.phase = Idle
	s.result = nil
	s.failure = nil
	s.generation++

	slog.Info("Workflow selected", "session_id", s.ID, "workflow", kind, "previous", previous)
	return c.stager.Clear(s.ID)
}

// Current returns the active workflow, if one is selected.
func (c *Controller) Current(s *Session) (workflow.Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workflow, s.workflow.Valid()
}

// Upload stages data for the active workflow, replacing any earlier upload.
func (c *Controller) Upload(s *Session, data []byte, filename string) (*staging.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := requireAuth(s, "upload image"); err != nil {
		return nil, err
	}
	if !s.workflow.Valid() {
		return nil, apperr.Validation("upload image", "select a workflow first")
	}

	upload, err := c.stager.Stage(s.ID, data, filepath.Ext(filename))
	if err != nil {
		return nil, err
	}
	upload.OriginalName = filepath.Base(filename)

	s.phase = Staged
	s.failure = nil
	s.generation++
	return upload, nil
}

// ClearUpload deletes the staged upload. Safe to call with nothing staged.
func (c *Controller) ClearUpload(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == Staged || s.phase == Submitted {
		s.phase = Idle
	}
	s.generation++
	return c.stager.Clear(s.ID)
}

// StagedUpload returns the session's staged upload, if any.
func (c *Controller) StagedUpload(s *Session) (*staging.Upload, bool) {
	return c.stager.Get(s.ID)
}

// Submit validates params, runs the remote transform and cleans up the
// staged upload whatever the outcome. The session lock is not held
// during the remote call, so a workflow switch or a cleared upload can
// overtake it; the result is then dropped and ErrSuperseded returned.
func (c *Controller) Submit(ctx context.Context, s *Session, params workflow.Params) (*transform.Result, error) {
	s.mu.Lock()
	if err := requireAuth(s, "submit transform"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.phase == Submitted {
		s.mu.Unlock()
		return nil, apperr.Validation("submit transform", "a transform is already running")
	}
	upload, ok := c.stager.Get(s.ID)
	if !ok {
		s.mu.Unlock()
		return nil, apperr.Validation("submit transform", "upload an image first")
	}
	req, err := transform.Build(s.workflow, upload, params)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.phase = Submitted
	s.failure = nil
	generation := s.generation
	username := s.username
	s.mu.Unlock()

	start := c.now()
	result, execErr := c.transformer.Execute(ctx, req)
	elapsed := c.now().Sub(start)

	if err := c.stager.Discard(upload); err != nil {
		slog.Error("Failed to remove staged upload", "session_id", s.ID, "path", upload.Path, "error", err)
	}

	s.mu.Lock()
	superseded := s.generation != generation
	if !superseded {
		if execErr != nil {
			s.phase = Failed
			s.failure = execErr
		} else {
			s.phase = Rendered
			s.result = result
		}
	}
	s.mu.Unlock()

	outcome := history.OutcomeRendered
	switch {
	case superseded:
		outcome = history.OutcomeSuperseded
	case execErr != nil:
		outcome = history.OutcomeFailed
	}
	metrics.TransformsTotal.WithLabelValues(req.Kind.String(), outcome).Inc()
	metrics.TransformDuration.WithLabelValues(req.Kind.String()).Observe(elapsed.Seconds())
	c.record(s.ID, username, req, outcome, elapsed, execErr)

	if superseded {
		slog.Info("Transform result discarded", "session_id", s.ID, "workflow", req.Kind)
		return nil, ErrSuperseded
	}
	if execErr != nil {
		slog.Error("Transform failed", "session_id", s.ID, "workflow", req.Kind, "error", execErr)
		return nil, execErr
	}
	return result, nil
}

func (c *Controller) record(sessionID, username string, req *transform.Request, outcome string, elapsed time.Duration, err error) {
	if c.recorder == nil {
		return
	}
	entry := history.Entry{
		Time:       c.now(),
		SessionID:  sessionID,
		Username:   username,
		Workflow:   req.Kind.String(),
		PublicID:   req.PublicID,
		Effect:     req.Transformation,
		Outcome:    outcome,
		DurationMS: elapsed.Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
		entry.StatusCode = apperr.StatusCodeOf(err)
	}
	if err := c.recorder.Record(entry); err != nil {
		slog.Warn("Failed to record transform history", "session_id", sessionID, "error", err)
	}
}

// Acknowledge returns a Rendered or Failed invocation to Idle. The last
// result stays available for display.
func (c *Controller) Acknowledge(s *Session) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == Rendered || s.phase == Failed {
		s.phase = Idle
		s.failure = nil
	}
	return s.phase
}

// Phase returns the current invocation phase and its failure, if any.
func (c *Controller) Phase(s *Session) (Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase, s.failure
}

// Reset drops everything but the session id: used on logout and expiry.
func (c *Controller) Reset(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = Unauthenticated
	s.username = ""
	s.name = ""
	s.workflow = 0
	s.phase = Idle
	s.result = nil
	s.failure = nil
	s.generation++
	return c.stager.Clear(s.ID)
}

// View snapshots s for the UI.
func (c *Controller) View(s *Session) View {
	upload, _ := c.stager.Get(s.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(upload)
}

// Sweep expires idle sessions and removes their staged uploads.
func (c *Controller) Sweep(store *Store, expiry Expiry) int {
	expired := store.Expired(expiry)
	for _, s := range expired {
		if err := c.Reset(s); err != nil {
			slog.Error("Failed to clear upload of expired session", "session_id", s.ID, "error", err)
		}
	}
	if len(expired) > 0 {
		slog.Info("Expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *Controller) RunSweeper(ctx context.Context, store *Store, expiry Expiry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(store, expiry)
		}
	}
}
