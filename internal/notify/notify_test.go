package notify

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier_NotifyLogsEventAndFields(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Log: zerolog.New(&buf)}

	n.Notify("plan_blocked", map[string]any{"symbol": "BTCUSDT", "reason": "exposure cap"})

	out := buf.String()
	require.Contains(t, out, "plan_blocked")
	require.Contains(t, out, "BTCUSDT")
	require.Contains(t, out, "exposure cap")
}

func TestLogNotifier_NotifyWithNoFields(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Log: zerolog.New(&buf)}

	n.Notify("scan_complete", nil)

	require.Contains(t, buf.String(), "scan_complete")
}
