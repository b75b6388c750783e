//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPulseDevicesIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	devices, err := NewPulseBackend("bettervoice", Format{}).Devices(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)
}

func TestPulseCaptureIntegration(t *testing.T) {
	capture := NewCapture(NewPulseBackend("bettervoice", Format{}), nil, nil, CaptureOptions{})
	defer capture.Close()

	require.NoError(t, capture.Start(context.Background(), ""))
	time.Sleep(300 * time.Millisecond)
	data, err := capture.Stop()
	require.NoError(t, err)
	require.Zero(t, len(data)%2)
}
