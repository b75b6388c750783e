package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.True(t, parsed.ShowHelp)
	require.Equal(t, CommandHelp, parsed.Command)
}

func TestParseCommandWithConfig(t *testing.T) {
	parsed, err := Parse([]string{"--config", "/tmp/bettervoice.jsonc", "doctor"})
	require.NoError(t, err)
	require.Equal(t, CommandDoctor, parsed.Command)
	require.Equal(t, "/tmp/bettervoice.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
	require.Empty(t, parsed.Args)
}

func TestParseArgMatrix(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantCmd  Command
		wantHelp bool
		wantPath string
		wantArgs []string
		wantType string
	}{
		{
			name:     "help short flag",
			args:     []string{"-h"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:     "help long flag",
			args:     []string{"--help"},
			wantCmd:  CommandHelp,
			wantHelp: true,
		},
		{
			name:    "version flag",
			args:    []string{"--version"},
			wantCmd: CommandVersion,
		},
		{
			name:    "config after command",
			args:    []string{"status", "--config", "/tmp/cfg"},
			wantErr: "unexpected arguments after command",
		},
		{
			name:    "missing config path",
			args:    []string{"--config"},
			wantErr: "requires a path",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "unknown flag",
		},
		{
			name:    "unknown command",
			args:    []string{"bogus"},
			wantErr: "unknown command",
		},
		{
			name:    "extra args after command",
			args:    []string{"doctor", "extra"},
			wantErr: "unexpected arguments",
		},
		{
			name:    "valid cancel command",
			args:    []string{"cancel"},
			wantCmd: CommandCancel,
		},
		{
			name:     "valid stop with config",
			args:     []string{"--config", "/tmp/cfg", "stop"},
			wantCmd:  CommandStop,
			wantPath: "/tmp/cfg",
		},
		{
			name:    "level",
			args:    []string{"level"},
			wantCmd: CommandLevel,
		},
		{
			name:     "transcribe file",
			args:     []string{"transcribe", "/tmp/a.wav"},
			wantCmd:  CommandTranscribe,
			wantArgs: []string{"/tmp/a.wav"},
		},
		{
			name:    "transcribe without file",
			args:    []string{"transcribe"},
			wantErr: "missing arguments",
		},
		{
			name:    "transcribe two files",
			args:    []string{"transcribe", "a.wav", "b.wav"},
			wantErr: "unexpected arguments",
		},
		{
			name:     "classify free text",
			args:     []string{"classify", "dear", "team,"},
			wantCmd:  CommandClassify,
			wantArgs: []string{"dear", "team,"},
		},
		{
			name:     "enhance with type",
			args:     []string{"enhance", "--type", "email", "hi", "there"},
			wantCmd:  CommandEnhance,
			wantArgs: []string{"hi", "there"},
			wantType: "email",
		},
		{
			name:     "enhance keeps later --type as text",
			args:     []string{"enhance", "use", "--type"},
			wantCmd:  CommandEnhance,
			wantArgs: []string{"use", "--type"},
		},
		{
			name:    "enhance type missing value",
			args:    []string{"enhance", "--type"},
			wantErr: "--type requires",
		},
		{
			name:    "enhance without text",
			args:    []string{"enhance", "--type", "email"},
			wantErr: "missing arguments",
		},
		{
			name:     "patterns list by type",
			args:     []string{"patterns", "list", "email"},
			wantCmd:  CommandPatterns,
			wantArgs: []string{"list", "email"},
		},
		{
			name:     "patterns sweep default days",
			args:     []string{"patterns", "sweep"},
			wantCmd:  CommandPatterns,
			wantArgs: []string{"sweep"},
		},
		{
			name:    "patterns export needs file",
			args:    []string{"patterns", "export"},
			wantErr: "requires a file path",
		},
		{
			name:    "patterns stats takes nothing",
			args:    []string{"patterns", "stats", "x"},
			wantErr: "takes no arguments",
		},
		{
			name:    "patterns unknown",
			args:    []string{"patterns", "purge"},
			wantErr: "unknown subcommand",
		},
		{
			name:     "key set",
			args:     []string{"key", "set", "openai"},
			wantCmd:  CommandKey,
			wantArgs: []string{"set", "openai"},
		},
		{
			name:    "key unknown",
			args:    []string{"key", "show", "openai"},
			wantErr: "unknown subcommand",
		},
		{
			name:    "serve",
			args:    []string{"serve"},
			wantCmd: CommandServe,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.args)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, parsed.Command)
			require.Equal(t, tc.wantHelp, parsed.ShowHelp)
			require.Equal(t, tc.wantPath, parsed.ConfigPath)
			require.Equal(t, tc.wantArgs, parsed.Args)
			require.Equal(t, tc.wantType, parsed.DocumentType)
		})
	}
}

func TestParsedText(t *testing.T) {
	parsed, err := Parse([]string{"classify", "best", "pizza", "near", "me"})
	require.NoError(t, err)
	require.Equal(t, "best pizza near me", parsed.Text())
}

func TestHelpTextIncludesCoreCommands(t *testing.T) {
	text := HelpText("bettervoice")
	for _, want := range []string{"toggle", "stop", "cancel", "level", "transcribe FILE", "classify", "enhance", "patterns sweep", "key set", "serve", "doctor", "--config PATH"} {
		require.Contains(t, text, want)
	}
}
