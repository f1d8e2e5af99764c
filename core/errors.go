package core

import "errors"

var (
	ErrEmptyName     = errors.New("agent name is required")
	ErrEmptyBio      = errors.New("agent bio is required")
	ErrEmptyTopic    = errors.New("discussion topic is required")
	ErrEmptyContent  = errors.New("post content is required")
	ErrAgentNotFound = errors.New("agent not found")
	ErrTopicLocked   = errors.New("topic cannot change while the simulation is running")
	ErrUnknownAction = errors.New("unknown action")
)
