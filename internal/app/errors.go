package app

import "errors"

var (
	ErrBadPassword    = errors.New("wrong room password")
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomOccupied   = errors.New("room has active subscribers")
	ErrInviteNotFound = errors.New("invite not found")
	ErrInviteExpired  = errors.New("invite expired")
)
