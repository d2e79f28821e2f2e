package command_test

import (
	"context"
	"errors"
	"io"
	"os"
	"regexp"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rhansen/depresolve/internal/command"
)

func TestNew(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		desc    string
		env     []string
		wantEnv []string
	}{
		{
			desc: "inherited environment",
		},
		{
			desc:    "environment from context",
			env:     []string{"VAR=value"},
			wantEnv: []string{"VAR=value"},
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()
			if tc.env != nil {
				ctx = context.WithValue(ctx, command.EnvKey, tc.env)
			}
			cmd := command.New(ctx, "/tmp", "man", "-l", "-")
			if got, want := cmd.Dir, "/tmp"; got != want {
				t.Errorf("got dir %q, want %q", got, want)
			}
			if diff := cmp.Diff([]string{"man", "-l", "-"}, cmd.Args); diff != "" {
				t.Errorf("unexpected args (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.wantEnv, cmd.Env); diff != "" {
				t.Errorf("unexpected environment (-want +got):\n%s", diff)
			}
			if cmd.Stdout != os.Stdout || cmd.Stderr != os.Stderr {
				t.Error("stdout and stderr are not connected to the process's")
			}
		})
	}
}

func TestDecodeStream(t *testing.T) {
	t.Parallel()
	type T = struct {
		Key string `yaml:"key" json:"key"`
	}
	for _, tc := range []struct {
		desc    string
		dec     func(io.Reader) command.Decoder
		wd      string
		env     []string
		args    []string
		want    []T
		wantErr *regexp.Regexp
	}{
		{
			desc: "json empty",
			dec:  command.JSON,
			args: []string{"printf", ""},
			want: []T{},
		},
		{
			desc: "json values",
			dec:  command.JSON,
			args: []string{"printf", "%s", `{"key": "Value1"}` + "\n" + `{"key": "Value2"}`},
			want: []T{{Key: "Value1"}, {Key: "Value2"}},
		},
		{
			desc:    "json invalid",
			dec:     command.JSON,
			args:    []string{"printf", "%s", `{"key": "Value1"}` + "\n" + `{"key": "Value2"`},
			want:    []T{{Key: "Value1"}}, // First one should have made it through.
			wantErr: regexp.MustCompile(`EOF`),
		},
		{
			desc: "yaml documents",
			dec:  command.YAML,
			args: []string{"printf", "%s", "key: Value1\n---\nkey: Value2\n"},
			want: []T{{Key: "Value1"}, {Key: "Value2"}},
		},
		{
			desc:    "yaml invalid",
			dec:     command.YAML,
			args:    []string{"printf", "%s", "key: Value1\n---\nkey: [\n"},
			want:    []T{{Key: "Value1"}},
			wantErr: regexp.MustCompile(`failed to decode`),
		},
		{
			desc: "working directory",
			dec:  command.YAML,
			wd:   "/",
			args: []string{"sh", "-c", `printf 'key: %s\n' "$(pwd)"`},
			want: []T{{Key: "/"}},
		},
		{
			desc: "environment from context",
			dec:  command.YAML,
			env:  []string{"VAR=from env"},
			args: []string{"sh", "-c", `printf 'key: %s\n' "$VAR"`},
			want: []T{{Key: "from env"}},
		},
		{
			desc:    "command fails",
			dec:     command.JSON,
			args:    []string{"sh", "-c", "exit 3"},
			want:    []T{},
			wantErr: regexp.MustCompile(`exit status 3`),
		},
		{
			desc:    "command not found",
			dec:     command.JSON,
			args:    []string{"/nonexistent/metadata-command"},
			want:    []T{},
			wantErr: regexp.MustCompile(`failed to start`),
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()
			if tc.env != nil {
				ctx = context.WithValue(ctx, command.EnvKey, tc.env)
			}
			objIter, done := command.DecodeStream[T](ctx, tc.wd, tc.dec, tc.args...)
			got := slices.Collect(objIter)
			err := done()
			switch {
			case err != nil && tc.wantErr == nil:
				t.Errorf("stream done callback returned unexpected error: %v", err)
			case err != nil && !tc.wantErr.MatchString(err.Error()):
				t.Errorf("stream done callback returned error %+q, want error matching %+q", err, tc.wantErr)
			case err == nil && tc.wantErr != nil:
				t.Errorf("stream done callback returned nil error, want error matching %+q", tc.wantErr)
			}
			if diff := cmp.Diff(tc.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("unexpected stream results (-want +got):\n%s", diff)
			}
		})
	}
}

// Stopping early must not leave the command running or the done callback waiting on it.
func TestDecodeStream_StopEarly(t *testing.T) {
	t.Parallel()
	objs, done := command.DecodeStream[struct{ Key string }](t.Context(), "", command.JSON,
		"sh", "-c", `while :; do echo '{"Key": "Value"}'; done`)
	for obj := range objs {
		if got, want := obj.Key, "Value"; got != want {
			t.Errorf("got %+q, want %+q", got, want)
		}
		break
	}
	if err := done(); err == nil {
		t.Error("stream done callback returned nil error for an interrupted command")
	}
}

func TestDecodeStream_Canceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	objs, done := command.DecodeStream[struct{ Key string }](ctx, "", command.JSON, "printf", "{}")
	if got := slices.Collect(objs); len(got) != 0 {
		t.Errorf("got %v values from a canceled command, want none", got)
	}
	if err := done(); !errors.Is(err, context.Canceled) {
		t.Errorf("got error %v, want %v", err, context.Canceled)
	}
}
