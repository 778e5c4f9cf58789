package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/loykin/swupdate"
	"github.com/loykin/swupdate/internal/config"
)

func loadDotEnv(dir string) {
	if dir == "" {
		dir = "."
	}
	config.LoadDotEnv(dir)
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

func (c *command) printOutcomes(outcomes []swupdate.Outcome) {
	for _, o := range outcomes {
		state := "ok"
		switch {
		case o.Skipped:
			state = "skipped"
		case o.Err != nil:
			state = "error: " + o.Err.Error()
		}
		_, _ = fmt.Fprintf(c.out, "%s\t%s\t%s\n", o.PackageManager, o.Duration.Round(time.Millisecond), state)
	}
}
