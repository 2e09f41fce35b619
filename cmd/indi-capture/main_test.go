package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indi-protocol/indi-go/pkg/transport"
)

func TestClientConfigMaxBuffer(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	cfg, err := clientConfig(defaultMaxBufferMB, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, 256<<20, cfg.Transport.MaxBufferSize)
	assert.Greater(t, cfg.Transport.MaxBufferSize, transport.DefaultMaxBufferSize,
		"images need more than the transport default")
	assert.Same(t, logger, cfg.Logger)

	cfg, err = clientConfig(1024, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, 1<<30, cfg.Transport.MaxBufferSize)

	for _, mb := range []int{0, -1} {
		_, err := clientConfig(mb, nil, logger)
		assert.Error(t, err, "max-buffer %d", mb)
	}
}
