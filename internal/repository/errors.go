package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicateApplication indicates the volunteer already holds an active
// application for the project.
var ErrDuplicateApplication = errors.New("repository: duplicate application")

// ErrProjectClosed indicates the project no longer accepts applications.
var ErrProjectClosed = errors.New("repository: project closed")

// ErrCapacityExhausted indicates the project has no free volunteer slots.
var ErrCapacityExhausted = errors.New("repository: capacity exhausted")

// ErrInvalidTransition indicates the application is not in a state that
// permits the requested transition.
var ErrInvalidTransition = errors.New("repository: invalid transition")

// ErrDuplicateUser indicates the username or email is already taken.
var ErrDuplicateUser = errors.New("repository: duplicate user")
