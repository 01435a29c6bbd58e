package logfields

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHelpers(t *testing.T) {
	assert.Equal(t, KeyCompilationID, CompilationID("abc").Key)
	assert.Equal(t, "abc", CompilationID("abc").Value.String())
	assert.Equal(t, int64(3000), Port(3000).Value.Int64())
	assert.InDelta(t, 1.5, Duration(1500*time.Microsecond).Value.Float64(), 0.0001)
}

func TestErrorNil(t *testing.T) {
	assert.Empty(t, Error(nil).Value.String())
	assert.Equal(t, "boom", Error(errors.New("boom")).Value.String())
}
