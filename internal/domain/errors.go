package domain

import "errors"

var (
	ErrNoOperations   = errors.New("no provisioning operations found")
	ErrNoCombinations = errors.New("no combinations generated")
	ErrNoAllocations  = errors.New("no allocations produced")
	ErrRunActive      = errors.New("a run is already active")
	ErrLockHeld       = errors.New("lock already held")
	ErrInvalidRecord  = errors.New("invalid source record")
)
