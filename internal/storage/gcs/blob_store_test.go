package gcs

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestObjectName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "captures/t/s/h.json", ObjectName("captures/", "t/s/h.json"))
	assert.Equal(t, "t/s/h.json", ObjectName("", "/t/s/h.json"))
	assert.Empty(t, ObjectName("captures", "  "))
}

func TestAlreadyExists(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("close: %w", &googleapi.Error{Code: http.StatusPreconditionFailed})
	assert.True(t, alreadyExists(wrapped))
	assert.False(t, alreadyExists(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, alreadyExists(fmt.Errorf("network")))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}
