package passphrase

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSource(env map[string]string, terminal bool, typed string) *Source {
	s := NewSource("TIP_KEY_PASS", "")
	s.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.isTerminal = func() bool { return terminal }
	s.readSecret = func() ([]byte, error) { return []byte(typed), nil }
	s.promptOut = io.Discard
	return s
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s := newTestSource(map[string]string{"TIP_KEY_PASS": "from-env"}, true, "typed")
	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "from-env", got)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	s := newTestSource(map[string]string{"TIP_KEY_PASS": "  "}, true, "typed")
	_, err := s.Get()
	require.ErrorContains(t, err, "TIP_KEY_PASS is set but empty")
}

func TestSourcePromptsOnTerminal(t *testing.T) {
	s := newTestSource(nil, true, "typed")
	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "typed", got)
}

func TestSourceWithoutTerminal(t *testing.T) {
	s := newTestSource(nil, false, "")
	_, err := s.Get()
	require.ErrorContains(t, err, "TIP_KEY_PASS")
}
