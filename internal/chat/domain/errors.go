package domain

import "errors"

var (
	// ErrNetwork transient transport failure, caller may retry
	ErrNetwork = errors.New("network error")
	// ErrUnauthorized credential rejected, not retried automatically
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotConnected send attempted without a live connection
	ErrNotConnected = errors.New("live feed not connected")
	// ErrMalformedPush live event could not be parsed, dropped
	ErrMalformedPush = errors.New("malformed push")

	// ErrChatroomNotOpen operation on a chatroom that is not open
	ErrChatroomNotOpen = errors.New("chatroom not open")
	// ErrInvalidChatroom chatroom id is empty
	ErrInvalidChatroom = errors.New("chatroom id is required")
	// ErrEmptyContent message content is empty after trim
	ErrEmptyContent = errors.New("message content is empty")
	// ErrInvalidParticipants chatroom needs at least two distinct members
	ErrInvalidParticipants = errors.New("chatroom needs at least two participants")
)
