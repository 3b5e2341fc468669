package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/geocoder89/certhub/internal/domain/pendingaction"
	"github.com/geocoder89/certhub/internal/offline"
	"gopkg.in/yaml.v3"
)

const (
	ExitSuccess      = 0
	ExitFailure      = 1 // sync left failed actions behind
	ExitCommandError = 2
)

type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func wrapExit(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

var validFormats = []string{"text", "json", "yaml"}

type printer struct {
	format string
	w      io.Writer
}

// structured writes v as json or yaml. It reports false for text output.
func (p printer) structured(v any) (bool, error) {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

func (p printer) actions(list []pendingaction.PendingAction) error {
	if ok, err := p.structured(list); ok {
		return err
	}

	if len(list) == 0 {
		_, err := fmt.Fprintln(p.w, "No pending actions.")
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tCREATED\tDESCRIPTION\tERROR")
	for _, a := range list {
		errMsg := ""
		if a.ErrorMessage != nil {
			errMsg = *a.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Type, a.Status, a.CreatedAt.Local().Format("2006-01-02 15:04"), a.Description, errMsg)
	}
	return tw.Flush()
}

func (p printer) action(a pendingaction.PendingAction, verb string) error {
	if ok, err := p.structured(a); ok {
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s %s (%s)\n", verb, a.ID, a.Type)
	return err
}

func (p printer) report(r offline.SyncReport) error {
	if ok, err := p.structured(r); ok {
		return err
	}

	if _, err := fmt.Fprintf(p.w, "attempted %d, synced %d, failed %d\n", r.Attempted, r.Synced, r.Failed); err != nil {
		return err
	}
	ids := make([]string, 0, len(r.Errors))
	for id := range r.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := fmt.Fprintf(p.w, "  %s: %s\n", id, strings.TrimSpace(r.Errors[id])); err != nil {
			return err
		}
	}
	return nil
}

func (p printer) message(format string, args ...any) error {
	if ok, err := p.structured(map[string]string{"message": fmt.Sprintf(format, args...)}); ok {
		return err
	}
	_, err := fmt.Fprintf(p.w, format+"\n", args...)
	return err
}
