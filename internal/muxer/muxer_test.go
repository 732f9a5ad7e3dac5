package muxer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeMuxerScript writes a shell script standing in for ffmpeg: it
// prints a "frame=" diagnostic line to stderr, then blocks reading
// stdin for "q" before exiting, so the graceful-stop staging can be
// exercised deterministically.
func fakeMuxerScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	script := `#!/bin/sh
echo "frame=1 fps=30" >&2
while IFS= read -r line; do
  if [ "$line" = "q" ]; then
    exit 0
  fi
done
exit 0
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestLaunchAndStop_QuitCommandStopsProcess(t *testing.T) {
	sup := New(fakeMuxerScript(t), 50*time.Millisecond, 2*time.Second, time.Second, nil)
	handle, err := sup.Launch(context.Background(), nil)
	require.NoError(t, err)

	require.Eventually(t, handle.Processing, time.Second, 10*time.Millisecond)

	err = handle.Stop(context.Background(), func() {})
	require.NoError(t, err)
	require.True(t, handle.Exited())
}

func TestStop_StarveCallbackInvokedWhenQuitIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake-ffmpeg-ignores-quit")
	script := `#!/bin/sh
echo "frame=1" >&2
sleep 5
exit 0
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	sup := New(path, 10*time.Millisecond, 30*time.Millisecond, 20*time.Millisecond, nil)
	handle, err := sup.Launch(context.Background(), nil)
	require.NoError(t, err)

	starved := false
	err = handle.Stop(context.Background(), func() { starved = true })
	// The process only ends on the final-stage signal, so Stop reports
	// its non-clean exit.
	require.Error(t, err)
	require.True(t, starved, "starve callback must run when the process ignores the quit command")
	require.True(t, handle.Exited())
}

func TestScanStderr_CountsErrorLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake-ffmpeg-errors")
	script := `#!/bin/sh
echo "frame=1" >&2
echo "error parsing option" >&2
echo "dropping frame due to jitter" >&2
sleep 5
exit 0
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	sup := New(path, 10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond, nil)
	handle, err := sup.Launch(context.Background(), nil)
	require.NoError(t, err)
	defer handle.Stop(context.Background(), func() {})

	require.Eventually(t, func() bool { return handle.ErrorCount() >= 2 }, time.Second, 10*time.Millisecond)
}
