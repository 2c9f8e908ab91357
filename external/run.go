// Package external runs the third-party binaries the pipeline depends on:
// the BWA aligner here, and the Velvet assembler through package assembly.
// Every invocation keeps the tool's stderr in a log file that outlives the
// run.
package external

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os/exec"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"v.io/x/lib/vlog"
)

// maxStderr caps the bytes of tool stderr copied into a ToolError.
const maxStderr = 64 << 10

// ToolError reports a nonzero exit (or a failure to start) of an external
// program. The program's stderr is kept at LogPath.
type ToolError struct {
	// Tool is the program name, e.g. "velveth".
	Tool string
	// Args is the full command line.
	Args []string
	// LogPath holds the program's stderr.
	LogPath string
	// Stderr is the content of LogPath, possibly truncated.
	Stderr string
	Err    error
}

// Error implements error.
func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed: %v (log: %s)", e.Tool, e.Err, e.LogPath)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\n" + s
	}
	return msg
}

// Unwrap returns the underlying exec error.
func (e *ToolError) Unwrap() error { return e.Err }

// AsToolError finds a *ToolError in err's chain, looking through
// *errors.Error wrappers.
func AsToolError(err error) (*ToolError, bool) {
	for err != nil {
		switch e := err.(type) {
		case *ToolError:
			return e, true
		case *errors.Error:
			err = e.Err
		default:
			return nil, false
		}
	}
	return nil, false
}

// CommandBuilder matches github.com/biogo/external.CommandBuilder.
type CommandBuilder interface {
	BuildCommand() (*exec.Cmd, error)
}

// Run builds and runs a command. The command's stderr is written to
// logPath; its stdout goes to stdoutPath, or is discarded if stdoutPath is
// empty. A nonzero exit yields a *ToolError.
func Run(ctx context.Context, b CommandBuilder, logPath, stdoutPath string) (err error) {
	cmd, err := b.BuildCommand()
	if err != nil {
		return errors.E(errors.Invalid, "build command", err)
	}
	logFile, err := file.Create(ctx, logPath)
	if err != nil {
		return errors.E(err, "create", logPath)
	}
	cmd.Stderr = logFile.Writer(ctx)
	var outFile file.File
	if stdoutPath != "" {
		if outFile, err = file.Create(ctx, stdoutPath); err != nil {
			logFile.Close(ctx) // nolint: errcheck
			return errors.E(err, "create", stdoutPath)
		}
		cmd.Stdout = outFile.Writer(ctx)
	} else {
		cmd.Stdout = ioutil.Discard
	}
	vlog.VI(1).Infof("run: %s", strings.Join(cmd.Args, " "))
	runErr := cmd.Run()
	if outFile != nil {
		if e := outFile.Close(ctx); e != nil && runErr == nil {
			return errors.E(e, "close", stdoutPath)
		}
	}
	if e := logFile.Close(ctx); e != nil && runErr == nil {
		return errors.E(e, "close", logPath)
	}
	if runErr == nil {
		return nil
	}
	return &ToolError{
		Tool:    toolName(cmd.Args),
		Args:    cmd.Args,
		LogPath: logPath,
		Stderr:  readLog(ctx, logPath),
		Err:     runErr,
	}
}

func toolName(args []string) string {
	if len(args) == 0 {
		return ""
	}
	name := args[0]
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func readLog(ctx context.Context, path string) string {
	in, err := file.Open(ctx, path)
	if err != nil {
		return ""
	}
	defer in.Close(ctx) // nolint: errcheck
	data, _ := ioutil.ReadAll(io.LimitReader(in.Reader(ctx), maxStderr))
	return string(data)
}
