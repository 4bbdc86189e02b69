package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSampledCore_NeverDropsErrors(t *testing.T) {
	base, observed := observer.New(zapcore.DebugLevel)
	core := newSampledCore(base, SamplingConfig{
		Enabled:    true,
		Tick:       time.Minute,
		Initial:    2,
		Thereafter: 0,
	})
	logger := zap.New(core)

	for i := 0; i < 10; i++ {
		logger.Info("chatty")
		logger.Error("broken")
	}

	assert.Equal(t, 2, observed.FilterMessage("chatty").Len())
	assert.Equal(t, 10, observed.FilterMessage("broken").Len())
}

func TestSampledCore_Disabled(t *testing.T) {
	base, observed := observer.New(zapcore.DebugLevel)
	logger := zap.New(newSampledCore(base, SamplingConfig{Enabled: false}))

	for i := 0; i < 5; i++ {
		logger.Info("chatty")
	}
	assert.Equal(t, 5, observed.Len())
}

func TestSampledCore_WithKeepsFilter(t *testing.T) {
	base, observed := observer.New(zapcore.DebugLevel)
	core := newSampledCore(base, SamplingConfig{Enabled: true, Tick: time.Minute, Initial: 1})
	logger := zap.New(core).With(zap.String("component", "scheduler"))

	logger.Warn("slow tick")
	logger.Warn("slow tick")
	logger.Error("tick failed")

	assert.Equal(t, 1, observed.FilterMessage("slow tick").Len())
	assert.Equal(t, 1, observed.FilterMessage("tick failed").Len())
}
