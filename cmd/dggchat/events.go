package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rickgao/dggchat"
	"github.com/rickgao/dggchat/internal/archive"
)

// consumeEvents prints chat lines and logs everything else until the
// session closes its event channel. onClose, if set, runs on every close.
func consumeEvents(events <-chan dggchat.Event, writer *archive.Writer, out io.Writer, logger *slog.Logger, onClose func()) {
	for ev := range events {
		switch ev := ev.(type) {
		case dggchat.OpenEvent:
			logger.Info("chat connected")

		case dggchat.CloseEvent:
			logger.Info("chat disconnected")
			if onClose != nil {
				onClose()
			}

		case dggchat.MessageEvent:
			fmt.Fprintf(out, "%s %s: %s\n", ev.Time.Format("15:04:05"), ev.Nick, ev.Data)
			if writer != nil && !writer.Add(ev) {
				logger.Warn("archive closed, message dropped", "nick", ev.Nick)
			}

		case dggchat.ErrorEvent:
			if ev.Reason == dggchat.ReasonMuted {
				logger.Warn("muted", "time_left", ev.MuteTimeLeft)
			} else {
				logger.Warn("chat error", "reason", ev.Reason)
			}

		case dggchat.FrameEvent:
			logger.Debug("chat notification", "tag", ev.Frame.Tag, "payload", ev.Frame.Payload)
		}
	}
}

// relayInput sends each non-empty input line as a chat message.
func relayInput(ctx context.Context, input io.Reader, session *dggchat.Session, logger *slog.Logger) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := session.Send(ctx, line); err != nil {
			logger.Warn("message not sent", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("read input", "error", err)
	}
}

// healthHandler reports the session state as JSON.
func healthHandler(session *dggchat.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := session.Stats()

		health := struct {
			Status     string `json:"status"`
			State      string `json:"state"`
			ConnID     string `json:"conn_id,omitempty"`
			Connects   int64  `json:"connects"`
			Reconnects int64  `json:"reconnects"`
			Frames     int64  `json:"frames_received"`
			Queued     int    `json:"queued_events"`
		}{
			Status:     "healthy",
			State:      stats.State.String(),
			ConnID:     stats.ConnID,
			Connects:   stats.Connects,
			Reconnects: stats.Reconnects,
			Frames:     stats.FramesReceived,
			Queued:     stats.QueuedEvents,
		}

		w.Header().Set("Content-Type", "application/json")
		if stats.State != dggchat.StateOpen {
			health.Status = "disconnected"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	}
}
