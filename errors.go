package chanbus

import "errors"

var (
	// ErrBrokerNil is returned when a layer is created without a broker.
	ErrBrokerNil = errors.New("broker cannot be nil")

	// ErrLayerClosed is returned by all operations after Close has been called.
	ErrLayerClosed = errors.New("channel layer is closed")

	// ErrUnknownChannel is returned when receiving from a channel name that was
	// not created by this layer or has already been cleaned up.
	ErrUnknownChannel = errors.New("unknown channel name")

	// ErrGroupNotFound is returned when discarding from a group with no members.
	ErrGroupNotFound = errors.New("group not found")

	// ErrNotGroupMember is returned when discarding a channel that is not a
	// member of the group.
	ErrNotGroupMember = errors.New("channel is not a member of the group")

	// ErrEmptyChannelName is returned when an operation receives an empty channel name.
	ErrEmptyChannelName = errors.New("channel name cannot be empty")

	// ErrEmptyGroupName is returned when a group operation receives an empty group name.
	ErrEmptyGroupName = errors.New("group name cannot be empty")

	// ErrConnClosed is returned by broker connections after they have been closed.
	ErrConnClosed = errors.New("connection is closed")

	// ErrBrokerClosed is returned when dialing or publishing through a closed broker.
	ErrBrokerClosed = errors.New("broker is closed")

	// ErrHealthcheckFailed is returned when the layer health check fails.
	ErrHealthcheckFailed = errors.New("healthcheck failed")
)
