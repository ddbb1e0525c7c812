package uid

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Assignment phases. The order is a wire-safety contract: the reverse mapping
// is created before the forward mapping so a crash can never leave a forward
// mapping pointing at an unresolvable id.
type assignmentPhase int

const (
	phaseAllocate assignmentPhase = iota
	phaseCreateReverse
	phaseCreateForward
	phaseDone
)

func (p assignmentPhase) String() string {
	switch p {
	case phaseAllocate:
		return "allocate"
	case phaseCreateReverse:
		return "create-reverse"
	case phaseCreateForward:
		return "create-forward"
	case phaseDone:
		return "done"
	default:
		return "unknown"
	}
}

const (
	assignBackoffBase = 200 * time.Millisecond
	assignBackoffMax  = 3 * time.Second
)

// errCASLost signals a compare-and-swap that found existing data. It is
// retried from the allocate phase with a fresh id.
var errCASLost = errors.New("uid: compare-and-swap lost")

// Assignment is one in-flight id allocation for a (type, name). Concurrent
// callers for the same name share the Assignment and wait on its completion.
type Assignment struct {
	Type Type
	Name string

	phase   assignmentPhase
	attempt int
	id      []byte

	result IdOrError
	done   chan struct{}
}

func newAssignment(t Type, name string) *Assignment {
	return &Assignment{Type: t, Name: name, done: make(chan struct{})}
}

// Wait blocks until the assignment settles or ctx is canceled.
func (a *Assignment) Wait(ctx context.Context) IdOrError {
	select {
	case <-a.done:
		return a.result
	case <-ctx.Done():
		return ErrorId(errors.Wrapf(ctx.Err(), "uid: waiting for assignment of %s %q", a.Type, a.Name))
	}
}

// run drives the assignment state machine to completion. It executes on its
// own goroutine with a background context: once started, an assignment is not
// abandoned even if the caller that triggered it goes away.
func (a *Assignment) run(s *Store) {
	ctx := context.Background()
	maxAttempts := s.config.maxAttempts(a.Type)

	defer func() {
		s.mu.Lock()
		delete(s.pending[a.Type], a.Name)
		s.mu.Unlock()
		s.trackPending(a.Type, -1)
		s.trackAssignment(a.Type, a.result.State)
		close(a.done)
	}()

	a.attempt = 1
	for a.phase != phaseDone {
		var err error
		switch a.phase {
		case phaseAllocate:
			err = a.allocate(ctx, s)
		case phaseCreateReverse:
			err = a.createReverse(ctx, s)
		case phaseCreateForward:
			err = a.createForward(ctx, s)
		}
		if err == nil {
			continue
		}
		if a.phase == phaseDone {
			// A terminal result was already recorded (counter overflow).
			return
		}

		// Either a storage failure or a CAS that found existing data. Both
		// restart from allocation with a fresh id, up to the attempt limit.
		if a.attempt >= maxAttempts {
			a.result = RetryId(errors.Wrapf(err,
				"uid: exhausted %d attempts assigning %s %q", maxAttempts, a.Type, a.Name))
			s.logger.Warn("uid assignment exhausted retries",
				zap.String("kind", a.Type.String()),
				zap.String("name", a.Name),
				zap.Int("attempts", a.attempt),
				zap.Error(err))
			return
		}
		s.logger.Debug("retrying uid assignment",
			zap.String("kind", a.Type.String()),
			zap.String("name", a.Name),
			zap.String("phase", a.phase.String()),
			zap.Int("attempt", a.attempt),
			zap.Error(err))
		a.backoff(s)
		a.attempt++
		a.phase = phaseAllocate
	}
}

// allocate obtains a candidate id, either from the shared counter row or by
// random draw.
func (a *Assignment) allocate(ctx context.Context, s *Store) error {
	if s.config.Randomized(a.Type) {
		a.id = s.randomID(a.Type)
		a.phase = phaseCreateReverse
		return nil
	}

	v, err := s.store.Increment(ctx, s.config.Table, counterRow, idFamily, []byte(a.Type.String()), 1)
	if err != nil {
		return errors.Wrapf(err, "uid: incrementing %s counter", a.Type)
	}
	id, err := FromLong(uint64(v), s.config.Width(a.Type))
	if err != nil {
		// Counter overflow is permanent: the namespace is out of ids.
		a.result = ErrorId(err)
		a.phase = phaseDone
		return err
	}
	a.id = id
	a.phase = phaseCreateReverse
	return nil
}

// createReverse writes the id -> name cell. The CAS only succeeds when the
// cell is absent; a loss means the candidate id is already taken (expected
// under randomized assignment) and allocation restarts.
func (a *Assignment) createReverse(ctx context.Context, s *Store) error {
	ok, err := s.store.CompareAndSet(ctx, s.config.Table,
		a.id, nameFamily, []byte(a.Type.String()), []byte(a.Name), nil)
	if err != nil {
		return errors.Wrapf(err, "uid: creating reverse mapping for %s %q", a.Type, a.Name)
	}
	if !ok {
		return errors.Wrapf(errCASLost, "uid: %s id already taken", a.Type)
	}
	a.phase = phaseCreateForward
	return nil
}

// createForward writes the name -> id cell. Losing this CAS means another
// writer assigned the name first; the id allocated here is discarded (the
// waste is accepted, not corrected) and the winner's id is returned instead.
func (a *Assignment) createForward(ctx context.Context, s *Store) error {
	ok, err := s.store.CompareAndSet(ctx, s.config.Table,
		[]byte(a.Name), idFamily, []byte(a.Type.String()), a.id, nil)
	if err != nil {
		return errors.Wrapf(err, "uid: creating forward mapping for %s %q", a.Type, a.Name)
	}
	if !ok {
		s.trackRace(a.Type)
		s.logger.Info("lost uid assignment race, discarding allocated id",
			zap.String("kind", a.Type.String()),
			zap.String("name", a.Name))

		winner, err := s.store.Get(ctx, s.config.Table, []byte(a.Name), idFamily, []byte(a.Type.String()))
		if err != nil {
			return errors.Wrapf(err, "uid: fetching winning mapping for %s %q", a.Type, a.Name)
		}
		if winner == nil {
			// The winner vanished between the CAS and the read. Start over.
			return errors.Wrapf(errCASLost, "uid: winning %s mapping disappeared", a.Type)
		}
		s.cache.Add(a.Type, a.Name, winner)
		a.result = OKId(winner)
		a.phase = phaseDone
		return nil
	}

	s.cache.Add(a.Type, a.Name, a.id)
	a.result = OKId(a.id)
	a.phase = phaseDone
	return nil
}

// backoff sleeps between attempts, doubling from the base up to a cap.
func (a *Assignment) backoff(s *Store) {
	d := assignBackoffBase << uint(a.attempt-1)
	if d > assignBackoffMax {
		d = assignBackoffMax
	}
	t := s.clock.Timer(d)
	<-t.C
}
