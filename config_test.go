package qutex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigure_Defaults(t *testing.T) {
	configureForTest(t)

	c := cfg()
	require.False(t, c.debugLockTracking)
	require.False(t, c.traceCallables)
	require.Equal(t, DefaultGridlockTimeout, c.gridlockTimeout)
}

func TestConfigure_Options(t *testing.T) {
	configureForTest(t,
		WithDebugLockTracking(true),
		WithGridlockTimeout(time.Second),
		WithTraceCallables(true),
	)

	c := cfg()
	require.True(t, c.debugLockTracking)
	require.True(t, c.traceCallables)
	require.Equal(t, time.Second, c.gridlockTimeout)
}

func TestConfigure_Reset(t *testing.T) {
	configureForTest(t, WithDebugLockTracking(true))
	require.True(t, cfg().debugLockTracking)

	// unspecified options revert
	require.NoError(t, Configure(WithTraceCallables(true)))
	require.False(t, cfg().debugLockTracking)
	require.True(t, cfg().traceCallables)
}

func TestConfigure_InvalidTimeout(t *testing.T) {
	require.Error(t, Configure(WithGridlockTimeout(0)))
	require.Error(t, Configure(WithGridlockTimeout(-time.Second)))
}

func TestConfigure_NilOption(t *testing.T) {
	require.NoError(t, Configure(nil, WithTraceCallables(true)))
	require.True(t, cfg().traceCallables)
	require.NoError(t, Configure())
}
