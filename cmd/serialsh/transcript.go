package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"SerialShell/internal/model"
)

func printTranscript(w io.Writer, events []model.Event, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(w, "%s %-6s %-14s %s\n",
			ev.Time.Format(time.RFC3339Nano), ev.Kind, ev.Source, ev.Text)
	}
	return nil
}
