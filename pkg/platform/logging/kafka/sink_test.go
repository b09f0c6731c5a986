package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "logs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker")

	_, err = New([]string{"localhost:9092"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
}
