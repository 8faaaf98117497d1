package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunExitCodes(t *testing.T) {
	assert.Equal(t, 0, run([]string{"--help"}))
	assert.Equal(t, 1, run([]string{"no-such-command"}))
	assert.Equal(t, 1, run([]string{"serve", "--config", "/nonexistent/chat-relay.yaml"}))
}
