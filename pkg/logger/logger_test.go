package logger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"niftitools/pkg/logger"
)

func TestSetup(t *testing.T) {
	for _, env := range []string{logger.DevelopmentEnvironment, logger.ProductionEnvironment} {
		t.Run(env, func(t *testing.T) {
			require.NotPanics(t, func() { logger.Setup(env) })
			require.NotNil(t, logger.Get(context.Background()))
		})
	}
}

func TestWithFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := logger.WithLogger(context.Background(), zap.New(core))
	ctx = logger.WithFields(ctx, zap.String("image", "a.nii"))

	logger.Info(ctx, "hello")
	logger.Debug(ctx, "dropped")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "hello", entry.Message)
	require.Equal(t, "a.nii", entry.ContextMap()["image"])
}
