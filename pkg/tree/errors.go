package tree

import "errors"

var (
	ErrNotFound                  = errors.New("node not found")
	ErrDuplicateUUID             = errors.New("duplicate node UUID")
	ErrCycle                     = errors.New("a group cannot be moved into itself or its descendants")
	ErrRootGroup                 = errors.New("operation not allowed on the root group")
	ErrNotGroup                  = errors.New("node is not a group")
	ErrNotEntry                  = errors.New("node is not an entry")
	ErrUnresolvedBinaryReference = errors.New("unresolved binary reference")
	ErrNoOTP                     = errors.New("entry has no OTP configuration")
	ErrAttached                  = errors.New("node is already part of a tree")
)
