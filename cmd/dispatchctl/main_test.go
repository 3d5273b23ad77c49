package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t, []string{"poll", "refresh-rows", "period"}, names)
	require.NotNil(t, root.PersistentFlags().Lookup("roster"))
	require.NotNil(t, root.PersistentFlags().Lookup("debug"))
}

func TestPeriodCmd_RejectsBadStartRow(t *testing.T) {
	for _, arg := range []string{"abc", "0"} {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs([]string{"--env-file", "testdata-missing.env", "period", "CompanyA", arg})

		err := root.Execute()
		require.Error(t, err, arg)
		require.Contains(t, err.Error(), "START_ROW")
	}
}

func TestPeriodCmd_RequiresTwoArgs(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"period", "CompanyA"})
	require.Error(t, root.Execute())
}
