// Package deploy follows a deployment on the hosting platform until it is
// live, failed, or out of time.
package deploy

import (
	"context"
	"iter"
	"time"

	"go.uber.org/zap"

	"kairos/launch/internal/metrics"
	"kairos/launch/pkg/logging"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 5 * time.Minute

	ErrTimeout = "deployment timeout exceeded"
	ErrFailed  = "deployment failed or was canceled"
)

// Snapshot is one observation of a deployment on the platform.
type Snapshot struct {
	State ProviderState
	URL   string
}

// StatusFunc fetches the current snapshot of a deployment.
type StatusFunc func(ctx context.Context, deploymentID string) (Snapshot, error)

// DeploymentStatus is recomputed on every attempt. URL is set once the
// platform reports it; Error is set whenever Status is error.
type DeploymentStatus struct {
	DeploymentID string `json:"deploymentId"`
	Status       Status `json:"status"`
	URL          string `json:"url,omitempty"`
	Progress     int    `json:"progress"`
	Error        string `json:"error,omitempty"`
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithClock replaces time.Now and the inter-attempt wait.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) {
		p.now = now
		p.sleep = sleep
	}
}

// Poller holds no per-deployment state; one value serves any number of
// concurrent loops.
type Poller struct {
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewPoller(opts ...Option) *Poller {
	p := &Poller{
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watch yields one status per attempt and ends after the first terminal one:
// ready, error, the synthetic timeout, a failed fetch, or ctx cancellation.
// Breaking out of the range loop stops polling.
func (p *Poller) Watch(ctx context.Context, deploymentID string, fn StatusFunc) iter.Seq[DeploymentStatus] {
	return func(yield func(DeploymentStatus) bool) {
		p.run(ctx, deploymentID, fn, func(st DeploymentStatus, _ bool) bool {
			return yield(st)
		})
	}
}

// Poll runs the loop to completion and returns the terminal status.
// onProgress, when set, sees every status observed from the platform before
// the terminal check; synthetic failures are only returned.
func (p *Poller) Poll(ctx context.Context, deploymentID string, fn StatusFunc, onProgress func(DeploymentStatus)) DeploymentStatus {
	var last DeploymentStatus
	p.run(ctx, deploymentID, fn, func(st DeploymentStatus, observed bool) bool {
		if observed && onProgress != nil {
			onProgress(st)
		}
		last = st
		return true
	})
	return last
}

// Check fetches the deployment once, without waiting and without the timeout.
func (p *Poller) Check(ctx context.Context, deploymentID string, fn StatusFunc) DeploymentStatus {
	snap, err := fn(ctx, deploymentID)
	if err != nil {
		return failed(deploymentID, err.Error())
	}
	return fromSnapshot(deploymentID, snap, 0)
}

func (p *Poller) run(ctx context.Context, deploymentID string, fn StatusFunc, emit func(st DeploymentStatus, observed bool) bool) {
	logger := logging.FromContext(ctx).With(zap.String("deployment_id", deploymentID))
	start := p.now()
	progress := 0

	for attempt := 1; ; attempt++ {
		if elapsed := p.now().Sub(start); elapsed >= p.timeout {
			logger.Warn("deployment poll timed out", zap.Duration("elapsed", elapsed), zap.Int("attempts", attempt-1))
			metrics.DeploymentPolls.WithLabelValues("timeout").Inc()
			emit(failed(deploymentID, ErrTimeout), false)
			return
		}

		snap, err := fn(ctx, deploymentID)
		if err != nil {
			logger.Warn("deployment status fetch failed", zap.Int("attempt", attempt), zap.Error(err))
			metrics.DeploymentPolls.WithLabelValues("error").Inc()
			emit(failed(deploymentID, err.Error()), false)
			return
		}

		st := fromSnapshot(deploymentID, snap, progress)
		progress = st.Progress
		if !snap.State.Known() {
			logger.Info("unknown provider state, treating as pending", zap.String("state", string(snap.State)))
		}
		logger.Debug("deployment status",
			zap.Int("attempt", attempt),
			zap.String("state", string(snap.State)),
			zap.String("status", string(st.Status)),
		)

		if !emit(st, true) {
			return
		}
		if st.Status.Terminal() {
			metrics.DeploymentPolls.WithLabelValues(string(st.Status)).Inc()
			return
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			metrics.DeploymentPolls.WithLabelValues("error").Inc()
			emit(failed(deploymentID, err.Error()), false)
			return
		}
	}
}

// fromSnapshot maps a snapshot. floor keeps display progress from going
// backwards within one loop; errors always report 0.
func fromSnapshot(deploymentID string, snap Snapshot, floor int) DeploymentStatus {
	st := DeploymentStatus{
		DeploymentID: deploymentID,
		Status:       snap.State.Status(),
		URL:          snap.URL,
		Progress:     snap.State.Progress(),
	}
	switch {
	case st.Status == StatusError:
		st.Progress = 0
		st.Error = ErrFailed
	case st.Progress < floor:
		st.Progress = floor
	}
	return st
}

func failed(deploymentID, msg string) DeploymentStatus {
	return DeploymentStatus{
		DeploymentID: deploymentID,
		Status:       StatusError,
		Error:        msg,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
