package techu

import (
	"github.com/techu/techu/pkg/constants"
)

// Errors
var (
	ErrQueryBuild         = constants.ErrQueryBuild
	ErrBackendUnavailable = constants.ErrBackendUnavailable
	ErrMaxRetries         = constants.ErrMaxRetries
	ErrLockTimeout        = constants.ErrLockTimeout
	ErrNotFound           = constants.ErrNotFound
)

type (
	QueryBuildError         = constants.QueryBuildError
	BackendUnavailableError = constants.BackendUnavailableError
	MaxRetriesExceededError = constants.MaxRetriesExceededError
	LockTimeoutError        = constants.LockTimeoutError
	NotFoundError           = constants.NotFoundError
)
