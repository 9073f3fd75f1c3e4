package hey

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

var errExample = xerrors.New("example")

func openMissing() error {
	_, err := os.Open("/nonexistent/hey/frames.log")
	return xerrors.Errorf("opening log: %w", err)
}

func makeError() error {
	return xerrors.Errorf("oops: %w", errExample)
}

func TestError_ErrorOrNil(t *testing.T) {
	err := ErrorOrNil(makeError(), "append")

	require.Equal(t, "append: oops: example", err.Error())
	require.Nil(t, ErrorOrNil(nil, ""))
}

func failAppend() error {
	return ErrorOrNil(xerrors.New("disk full"), "append")
}

// The recorded frame is the one of the function calling ErrorOrNil.
func TestError_ErrorOrNilFrame(t *testing.T) {
	detail := fmt.Sprintf("%+v", failAppend())

	require.Contains(t, detail, "hey.failAppend")
	require.NotContains(t, detail, "hey.ErrorOrNil")
	require.NotContains(t, detail, "hey.errorOrNilSkip")
}

func TestError_WrapError(t *testing.T) {
	err := WrapError(makeError())

	require.Equal(t, "oops: example", err.Error())
	require.Contains(t, fmt.Sprintf("%+v", err), ".makeError")
	require.Contains(t, fmt.Sprintf("%+v", err), t.Name())
	require.True(t, xerrors.Is(err, errExample))
	require.False(t, xerrors.Is(err, xerrors.New("abc")))
}

func TestError_WrapsOSError(t *testing.T) {
	err := ErrorOrNil(openMissing(), "framelog")

	require.True(t, xerrors.Is(err, os.ErrNotExist))
	require.Contains(t, err.Error(), "framelog: opening log")
}
