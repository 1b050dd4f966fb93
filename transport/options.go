package transport

import (
	"time"

	"go.uber.org/zap"
)

type Options struct {
	// Address of the socket, see ParseAddress for the accepted forms
	Address string

	// DialTimeout bounds a single connection attempt. Zero means the attempt
	// is only bounded by its context.
	DialTimeout time.Duration

	// Reuseport controls setting SO_REUSEPORT on tcp listeners
	Reuseport bool

	// Trace will log every frame read and written. This is only useful in local debugging
	Trace bool

	Log *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}

	return o.Log
}
