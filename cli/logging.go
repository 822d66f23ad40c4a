package cli

import (
	"io"
	"os"

	gologme "github.com/gologme/log"
	tmlog "github.com/tendermint/tendermint/libs/log"
)

var levels = []string{"error", "warn", "info", "debug", "trace"}

// newOutput is the human facing logger of a command.
func newOutput(w io.Writer, level string) *gologme.Logger {
	out := gologme.New(w, "", gologme.Flags())
	for _, l := range levels {
		out.EnableLevel(l)
		if l == level {
			break
		}
	}
	return out
}

// newComponentLogger is the structured logger handed to flow, notary and api.
func newComponentLogger(level string) (tmlog.Logger, error) {
	logger := tmlog.NewTMLogger(tmlog.NewSyncWriter(os.Stdout))
	switch level {
	case "warn":
		level = "info"
	case "trace":
		level = "debug"
	}
	opt, err := tmlog.AllowLevel(level)
	if err != nil {
		return nil, err
	}
	return tmlog.NewFilter(logger, opt), nil
}
