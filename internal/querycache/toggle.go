package querycache

import (
	"context"
	"errors"
)

// ErrSelfAction is returned by SelfGuard when the viewer targets themselves.
var ErrSelfAction = errors.New("querycache: action not allowed on yourself")

// Flagged is a value carrying one boolean the viewer can flip, such as a like.
type Flagged[T any] interface {
	Flag() bool
	WithFlag(bool) T
}

// CommitFunc sends the flip to the server: target true creates the relation, false removes it.
type CommitFunc[T any] func(ctx context.Context, target bool) (T, error)

// ToggleConfig wires a toggle to its remote call.
type ToggleConfig[T any] struct {
	Commit CommitFunc[T]
	// Guard runs before anything changes; a non-nil error aborts the toggle without a remote call.
	Guard func() error
	// IgnoreResult confirms the predicted value instead of the value Commit returns.
	IgnoreResult bool
	// Ref propagates the displayed value to every cached copy of the entity when set.
	Ref *EntityRef
}

// Toggle flips a Flagged value optimistically.
type Toggle[T Flagged[T]] struct {
	value  *Value[T]
	config ToggleConfig[T]
}

// NewToggle binds a toggle to value.
func NewToggle[T Flagged[T]](value *Value[T], config ToggleConfig[T]) *Toggle[T] {
	value.mu.Lock()
	value.replay = replayFlags[T]
	value.mu.Unlock()
	return &Toggle[T]{value: value, config: config}
}

// SelfGuard refuses toggles where the viewer and the target are the same user.
func SelfGuard(viewerID, targetUserID string) func() error {
	return func() error {
		if viewerID == targetUserID {
			return ErrSelfAction
		}
		return nil
	}
}

// Invoke flips the displayed flag, commits the flip and settles the cache. On failure the value
// the toggle displaced is restored and the commit error returned. The confirmed value only moves
// forward in invocation order, so a result arriving after a newer one has settled is discarded.
func (t *Toggle[T]) Invoke(ctx context.Context) (T, error) {
	if t.config.Guard != nil {
		if err := t.config.Guard(); err != nil {
			displayed, _ := t.value.Get()
			return displayed, err
		}
	}

	value := t.value
	value.mu.Lock()
	target := !value.displayedLocked().Flag()
	value.nextPending++
	id := value.nextPending
	value.pending = append(value.pending, prediction{id: id, target: target})
	predicted := value.displayedLocked()
	value.mu.Unlock()
	t.propagate(predicted)

	result, err := t.config.Commit(ctx, target)

	value.mu.Lock()
	value.pending = withoutPrediction(value.pending, id)
	// A response older than one already settled describes a superseded server state.
	if err == nil && id > value.settled {
		value.settled = id
		if t.config.IgnoreResult {
			value.base = value.base.WithFlag(target)
		} else {
			value.base = result
		}
		value.present = true
	}
	settled := value.displayedLocked()
	value.mu.Unlock()
	t.propagate(settled)

	return settled, err
}

func (t *Toggle[T]) propagate(displayed T) {
	if t.config.Ref == nil {
		return
	}
	t.value.manager.Propagate(*t.config.Ref, displayed)
}

func replayFlags[T Flagged[T]](base T, pending []prediction) T {
	current := base
	for _, step := range pending {
		current = current.WithFlag(step.target)
	}
	return current
}

func withoutPrediction(pending []prediction, id uint64) []prediction {
	kept := pending[:0]
	for _, step := range pending {
		if step.id != id {
			kept = append(kept, step)
		}
	}
	return kept
}
