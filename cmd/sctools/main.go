package main

import (
	"log/slog"
	"net/http"

	_ "net/http/pprof" // profiling

	"github.com/xyproto/env/v2"

	"sctools/internal/sctools/cmd"
	"sctools/internal/sctools/log"
)

func main() {
	defer log.RecoverPanic("main", func() {
		slog.Error("Application terminated due to unhandled panic")
	})

	if env.Bool("SCTOOLS_PROFILE") {
		go func() {
			slog.Info("Serving pprof at localhost:6060")
			if httpErr := http.ListenAndServe("localhost:6060", nil); httpErr != nil {
				slog.Error("Failed to pprof listen", "error", httpErr)
			}
		}()
	}

	cmd.Execute()
}
