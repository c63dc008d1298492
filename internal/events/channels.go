package events

// Channels published by the link.
const (
	ChannelConnected    = "connected"
	ChannelDisconnected = "disconnected"
	ChannelReconnecting = "reconnecting"
	ChannelError        = "error"
	ChannelMessage      = "message"
	ChannelState        = "state"
)
