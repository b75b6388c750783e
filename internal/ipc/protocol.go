// Package ipc carries control commands from short-lived CLI invocations to
// the process that owns the dictation session, over a unix socket speaking
// one JSON line per request and per response.
package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Commands understood by the session owner.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
	CommandCancel = "cancel"
	CommandToggle = "toggle"
	CommandLevel  = "level"
)

// maxFrameBytes bounds a single request or response line.
const maxFrameBytes = 64 << 10

var errFrameTooLarge = errors.New("frame exceeds 64KiB")

// Known reports whether command is one the owner handles.
func Known(command string) bool {
	switch command {
	case CommandStatus, CommandStop, CommandCancel, CommandToggle, CommandLevel:
		return true
	}
	return false
}

type Request struct {
	Command string `json:"command"`
}

// Response reports the owner's state. Level is the last capture level in
// [0,1]; DocumentType and Text are set once a session has committed.
type Response struct {
	OK           bool    `json:"ok"`
	State        string  `json:"state,omitempty"`
	Level        float64 `json:"level,omitempty"`
	DocumentType string  `json:"documentType,omitempty"`
	Text         string  `json:"text,omitempty"`
	Message      string  `json:"message,omitempty"`
	Error        string  `json:"error,omitempty"`
}

func writeFrame(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// readFrame decodes one newline-terminated JSON value into v.
func readFrame(r *bufio.Reader, v any) error {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return err
		}
		line = append(line, chunk...)
		if len(line) > maxFrameBytes {
			return errFrameTooLarge
		}
		if !isPrefix {
			break
		}
	}
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	return nil
}

var errMalformedFrame = errors.New("malformed frame")
