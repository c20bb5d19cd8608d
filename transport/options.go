package transport

import (
	"time"

	"go.uber.org/zap"
)

type Options struct {
	// HandshakeTimeout bounds the HTTP upgrade when dialing. Defaults to 10s
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single frame write. Defaults to 10s
	WriteTimeout time.Duration

	// Trace will log every frame. This is only useful in local debugging
	Trace bool

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}

	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}
