package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"

	"github.com/PolarWolf314/enseal/internal/configs"
	"github.com/PolarWolf314/enseal/internal/relay"
	"github.com/PolarWolf314/enseal/internal/trust"
	"github.com/PolarWolf314/enseal/internal/ui"
	"github.com/PolarWolf314/enseal/internal/workflows"
)

// startSpinner creates and starts a spinner with the given message when not
// in verbose or debug mode. The spinner draws on w. Returns the spinner and
// a function that should be deferred to clean up.
//
// spinner.FinalMSG values do NOT need trailing newlines. The cleanup
// function calls ui.EnsureNewline() on the final message before printing it
// to w.
func startSpinner(message string, w io.Writer) (*spinner.Spinner, func()) {
	Logger.Debugf("Starting spinner with message: %s", message)
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message

	if err := s.Color("cyan"); err != nil {
		Logger.Warnf("Failed to set spinner color: %v", err)
	}

	quiet := !verbose && !debug
	if quiet {
		s.Start()
		// Ensure log output is discarded unless in verbose mode.
		log.SetOutput(io.Discard)
	} else {
		Logger.Infof("Running in verbose or debug mode: %s", message)
	}

	cleanup := func() {
		if quiet {
			log.SetOutput(os.Stderr)
		}

		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			// Clear FinalMSG so s.Stop() doesn't print it.
			s.FinalMSG = ""
		}

		if quiet {
			s.Stop()
		}
		if finalMsg != "" {
			fmt.Fprint(w, finalMsg)
		}
	}

	return s, cleanup
}

// pauseSpinner stops s while fn prints, then restarts it.
func pauseSpinner(s *spinner.Spinner, fn func()) {
	active := s.Active()
	if active {
		s.Stop()
	}
	fn()
	if active {
		s.Start()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// loadUserConfig loads the user config, creating its UUID on first use.
func loadUserConfig() (*configs.UserConfig, error) {
	cfg, err := configs.EnsureUserConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	return cfg, nil
}

// relayOptions resolves the relay endpoint: --relay, then ENSEAL_RELAY,
// then the config file.
func relayOptions(cfg *configs.UserConfig) workflows.RelayOptions {
	url := relayURL
	if url == "" {
		url = cfg.RelayURL()
	}
	return workflows.RelayOptions{
		URL:   url,
		Relay: relay.Options{Log: Logger},
	}
}

func loadStore(cfg *configs.UserConfig) *trust.Store {
	return trust.New(configs.UserEnsealSettings, cfg, Logger)
}

// failure renders an error as a spinner final message.
func failure(msg string, err error) string {
	out := ui.Error.Sprint("✗") + " " + msg
	if err != nil {
		out += "\n" + ui.Error.Sprint("Error: ") + err.Error()
	}
	return out
}

// hint renders a follow-up suggestion.
func hint(text string) string {
	return "\n" + ui.Info.Sprint("→") + " " + text
}

// setSuffix changes the spinner message while it is drawing.
func setSuffix(s *spinner.Spinner, message string) {
	s.Lock()
	s.Suffix = " " + message
	s.Unlock()
}
