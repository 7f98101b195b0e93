package main

import "testing"

func TestCommandUsesStructuredLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want bool
	}{
		{name: "serve", args: []string{"serve"}, want: true},
		{name: "scan", args: []string{"scan"}, want: true},
		{name: "sync", args: []string{"sync"}, want: true},
		{name: "migrate", args: []string{"migrate"}, want: true},
		{name: "seed", args: []string{"seed"}, want: true},
		{name: "admins create", args: []string{"admins", "create"}, want: false},
		{name: "login", args: []string{"login"}, want: false},
		{name: "logout", args: []string{"logout"}, want: false},
		{name: "whoami", args: []string{"whoami"}, want: false},
		{name: "access", args: []string{"access"}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cmd, _, err := rootCmd.Find(tc.args)
			if err != nil {
				t.Fatalf("Find(%v) error = %v", tc.args, err)
			}
			if cmd == nil || cmd.Name() != tc.args[len(tc.args)-1] {
				t.Fatalf("Find(%v) = %v, want %s", tc.args, cmd, tc.args[len(tc.args)-1])
			}
			if got := commandUsesStructuredLogging(cmd); got != tc.want {
				t.Fatalf("commandUsesStructuredLogging(%q) = %v, want %v", cmd.CommandPath(), got, tc.want)
			}
		})
	}
}
