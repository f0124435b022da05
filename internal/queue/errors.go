package queue

import (
	"fmt"

	"herald/internal/services"
)

var (
	// ErrNotFound is returned when no post has the requested id.
	ErrNotFound = fmt.Errorf("%w: post", services.ErrNotFound)
	// ErrInvalidTransition is returned when the post's status forbids the operation.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", services.ErrValidation)
	// ErrInvalidInput tags draft validation failures.
	ErrInvalidInput = fmt.Errorf("%w: invalid post", services.ErrValidation)
)
