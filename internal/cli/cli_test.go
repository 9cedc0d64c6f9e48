package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionSkipsConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "capwatch dev")
}

func TestParseUserID(t *testing.T) {
	id, err := parseUserID("123456789")
	require.NoError(t, err)
	assert.EqualValues(t, 123456789, id)

	for _, bad := range []string{"", "0", "abc", "1.5"} {
		_, err := parseUserID(bad)
		assert.Error(t, err, bad)
	}
}

func TestAlertsRequireUser(t *testing.T) {
	rootCmd.SetArgs([]string{"alerts", "list"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	assert.ErrorContains(t, err, "--user is required")
}
