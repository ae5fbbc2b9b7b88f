package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/autoapitester/api-acceptor/types"
)

// Store is the persistence boundary for job-schedule trees. Implementations
// must load and save the full JobSchedule -> TestSuite -> TestCase tree, and
// Save must apply the whole tree in one logical transaction: deleting a suite
// deletes its cases, and a failed save leaves storage untouched.
type Store interface {
	// Load returns the schedule with its full tree, or a NotFoundError.
	Load(ctx context.Context, id int64) (*types.JobSchedule, error)
	// Save persists the tree, assigning storage ids to any new entities
	// in place. Entities present in storage but absent from the tree are
	// removed, cascading from suite to cases.
	Save(ctx context.Context, job *types.JobSchedule) error
	// Delete removes the schedule and its whole tree.
	Delete(ctx context.Context, id int64) error
	// ListByUser returns the user's schedules, newest first, without
	// their suite trees.
	ListByUser(ctx context.Context, userID int64) ([]*types.JobSchedule, error)
}

// NotFoundError reports an incoming id that references nothing in storage.
// It aborts the whole reconciliation; the caller is expected to resend a
// correct tree.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
