package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandToggle     Command = "toggle"
	CommandStop       Command = "stop"
	CommandCancel     Command = "cancel"
	CommandStatus     Command = "status"
	CommandLevel      Command = "level"
	CommandDevices    Command = "devices"
	CommandTranscribe Command = "transcribe"
	CommandClassify   Command = "classify"
	CommandEnhance    Command = "enhance"
	CommandPatterns   Command = "patterns"
	CommandKey        Command = "key"
	CommandServe      Command = "serve"
	CommandDoctor     Command = "doctor"
	CommandVersion    Command = "version"
	CommandHelp       Command = "help"
)

// arity bounds the positional arguments a command accepts; max < 0 is unbounded.
type arity struct{ min, max int }

var validCommands = map[Command]arity{
	CommandToggle:     {},
	CommandStop:       {},
	CommandCancel:     {},
	CommandStatus:     {},
	CommandLevel:      {},
	CommandDevices:    {},
	CommandTranscribe: {1, 1},
	CommandClassify:   {1, -1},
	CommandEnhance:    {1, -1},
	CommandPatterns:   {1, 2},
	CommandKey:        {2, 2},
	CommandServe:      {},
	CommandDoctor:     {},
	CommandVersion:    {},
	CommandHelp:       {},
}

// Pattern subcommands.
const (
	PatternsList   = "list"
	PatternsStats  = "stats"
	PatternsSweep  = "sweep"
	PatternsExport = "export"
	PatternsImport = "import"
)

// Key subcommands.
const (
	KeySet    = "set"
	KeyDelete = "delete"
)

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	// Args are the positional arguments following the command.
	Args []string
	// DocumentType is the enhance --type override.
	DocumentType string
}

// Text joins Args with single spaces, for commands that take free text.
func (p Parsed) Text() string {
	return strings.Join(p.Args, " ")
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			if _, ok := validCommands[cmd]; !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if err := parseCommandArgs(&parsed, args[i+1:]); err != nil {
				return Parsed{}, err
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

// parseCommandArgs validates everything after the command word.
func parseCommandArgs(parsed *Parsed, rest []string) error {
	cmd := parsed.Command
	bounds := validCommands[cmd]

	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		if cmd == CommandEnhance && arg == "--type" && len(parsed.Args) == 0 {
			i++
			if i >= len(rest) {
				return errors.New("--type requires a document type")
			}
			parsed.DocumentType = rest[i]
			continue
		}
		if bounds.max == 0 {
			return fmt.Errorf("unexpected arguments after command %q", cmd)
		}
		parsed.Args = append(parsed.Args, arg)
	}

	n := len(parsed.Args)
	if n < bounds.min {
		return fmt.Errorf("%s: missing arguments (see help)", cmd)
	}
	if bounds.max >= 0 && n > bounds.max {
		return fmt.Errorf("unexpected arguments after command %q", cmd)
	}

	switch cmd {
	case CommandPatterns:
		return validatePatterns(parsed.Args)
	case CommandKey:
		if parsed.Args[0] != KeySet && parsed.Args[0] != KeyDelete {
			return fmt.Errorf("key: unknown subcommand %q", parsed.Args[0])
		}
	}
	return nil
}

func validatePatterns(args []string) error {
	sub := args[0]
	switch sub {
	case PatternsList, PatternsSweep:
		return nil
	case PatternsStats:
		if len(args) > 1 {
			return fmt.Errorf("patterns %s takes no arguments", sub)
		}
		return nil
	case PatternsExport, PatternsImport:
		if len(args) != 2 {
			return fmt.Errorf("patterns %s requires a file path", sub)
		}
		return nil
	default:
		return fmt.Errorf("patterns: unknown subcommand %q", sub)
	}
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [args]

Commands:
  toggle                      Start recording or stop+commit when already recording
  stop                        Stop active recording and commit text
  cancel                      Cancel active recording and discard audio
  status                      Print current state and last result
  level                       Print the live input level (0..1)
  devices                     List available input devices
  transcribe FILE             Transcribe a WAV or raw PCM16 file and print the text
  classify TEXT...            Print the detected document type
  enhance [--type T] TEXT...  Enhance text and print the result
  patterns list [TYPE]        List learned corrections
  patterns stats              Summarize learned corrections per type
  patterns sweep [DAYS]       Remove stale low-frequency corrections
  patterns export FILE        Write learned corrections as JSON
  patterns import FILE        Merge corrections from a JSON export
  key set PROVIDER            Store an API key read from stdin
  key delete PROVIDER         Remove a stored API key
  serve                       Run the browser edit bridge and store maintenance
  doctor                      Run configuration and environment checks
  version                     Print version information
  help                        Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/bettervoice/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
