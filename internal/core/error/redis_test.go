package errx

import (
	"errors"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWrapRedis_NilStaysNil verifies a nil error wraps to a nil interface
// value, not a typed nil.
func TestWrapRedis_NilStaysNil(t *testing.T) {
	err := WrapRedis(nil)
	assert.NoError(t, err)
	assert.Nil(t, err)
}

func TestWrapRedis_NotFound(t *testing.T) {
	err := WrapRedis(redis.Nil)
	require.Error(t, err)

	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Status)
}

func TestWrapRedis_Other(t *testing.T) {
	err := WrapRedis(errors.New("connection refused"))
	require.Error(t, err)

	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}
