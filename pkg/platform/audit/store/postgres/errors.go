package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	dErrors "audittrail/pkg/domain-errors"
)

// dbError tags timeouts and lost connections so callers can tell them apart
// from query bugs. Everything else is wrapped unchanged.
func dbError(op string, err error) error {
	var connErr *pgconn.ConnectError
	switch {
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+": timed out")
	case errors.Is(err, driver.ErrBadConn), errors.As(err, &connErr):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, op+": database unavailable")
	}
	return fmt.Errorf("%s: %w", op, err)
}
