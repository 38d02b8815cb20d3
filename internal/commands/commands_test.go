package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subcommandNames(cmd *cobra.Command) []string {
	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	return names
}

func TestCommandTrees(t *testing.T) {
	tests := []struct {
		name string
		cmd  *cobra.Command
		subs []string
	}{
		{"auth", NewAuthCmd(), []string{"login", "logout", "refresh", "status", "token"}},
		{"api", NewAPICmd(), []string{"delete", "get", "post", "put"}},
		{"config", NewConfigCmd(), []string{"get", "list", "set", "unset"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.name, tt.cmd.Name())
			got := subcommandNames(tt.cmd)
			assert.ElementsMatch(t, tt.subs, got)
		})
	}
}

func TestAPIGetFlags(t *testing.T) {
	cmd := NewAPICmd()
	get, _, err := cmd.Find([]string{"get"})
	require.NoError(t, err)

	assert.NotNil(t, get.Flags().Lookup("jq"))
	assert.NotNil(t, get.Flags().Lookup("paginate"))

	post, _, err := cmd.Find([]string{"post"})
	require.NoError(t, err)
	data := post.Flags().Lookup("data")
	require.NotNil(t, data)
	assert.Equal(t, "d", data.Shorthand)
}
