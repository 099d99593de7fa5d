package rabbit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequeueOnFailure(t *testing.T) {
	assert.False(t, requeueOnFailure(ErrBadMessage))
	assert.False(t, requeueOnFailure(fmt.Errorf("%w: unexpected end of JSON input", ErrBadMessage)))
	assert.True(t, requeueOnFailure(errors.New("database is locked")))
}
