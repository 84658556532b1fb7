package protocol

import "errors"

var (
	ErrUnknownType    = errors.New("unknown message type")
	ErrUnexpectedType = errors.New("unexpected message type")
	ErrPlayerInfo     = errors.New("undecodable userinfo payload")
	ErrSchema         = errors.New("message does not match schema")
)
