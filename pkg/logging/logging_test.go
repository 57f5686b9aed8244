package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewParsesLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("chatty").GetLevel())
}

func TestComponentNilLogger(t *testing.T) {
	entry := Component(nil, "lifecycle")
	assert.Equal(t, "lifecycle", entry.Data["component"])
}
