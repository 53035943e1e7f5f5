package log

import (
	"bytes"
	"testing"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	prev := L
	defer func() { L = prev }()

	var buf bytes.Buffer
	L = New(&buf)

	require.NoError(t, SetLevel("debug"))
	require.True(t, L.IsDebug())

	L.Debug("frame-acquired", "pa", 0x1000)
	require.Contains(t, buf.String(), "frame-acquired")

	err := SetLevel("loud")
	require.Equal(t, ErrUnknownLevel, errors.Cause(err))

	require.Equal(t, hclog.Debug, L.GetLevel())
}
