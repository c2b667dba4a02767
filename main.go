package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ShellRechargeSolutionsEU/mailer/userconfig"
)

func main() {
	// Log with filename and line number. This writes to stderr, so it should
	// be thread safe.
	// https://github.com/rs/zerolog/blob/7ccd4c940bf8a02fcc5f10e5475f9d3daff04d57/log/log.go#L13
	log.Logger = log.With().Caller().Logger()

	// An interrupt cancels the send in flight instead of killing the
	// process, so the journal still gets closed.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func(c chan os.Signal) {
		<-c
		log.Info().Msg("interrupt: cancelling the send")
		cancel()
	}(sigCh)

	var f cliFlags
	configPath := flag.String(
		"config",
		"",
		"path to a YAML file containing your configuration (optional with -noemail)",
	)
	flag.StringVar(&f.from, "from", "", "sender address, overrides sending.from")
	flag.StringVar(&f.to, "to", "", "comma separated To addresses")
	flag.StringVar(&f.cc, "cc", "", "comma separated Cc addresses")
	flag.StringVar(&f.bcc, "bcc", "", "comma separated Bcc addresses")
	flag.StringVar(&f.replyTo, "replyto", "", "comma separated Reply-To addresses")
	flag.StringVar(&f.subject, "subject", "", "subject line")
	flag.StringVar(&f.text, "text", "", "plain text body")
	flag.StringVar(&f.htmlPath, "html", "", "path to an HTML body")
	flag.Var(&f.attachments, "attach", "path to a file to attach (repeatable)")
	flag.Var(&f.headers, "header", `extra header as "Name: value" (repeatable)`)
	timeout := flag.Duration(
		"timeout",
		0,
		"how long to wait for the send, overrides sending.timeout",
	)
	noEmail := flag.Bool(
		"noemail",
		false,
		"print the message to stdout instead of sending it",
	)
	level := flag.String(
		"level",
		"info",
		`log level: "info", "debug", or "warn"`,
	)
	flag.Parse()

	switch *level {
	case "debug":
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	case "warn":
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	default:
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	config := userconfig.Empty()
	if *configPath != "" {
		cf, err := os.Open(*configPath)
		if err != nil {
			log.Error().
				Str("configPath", *configPath).
				Err(err).
				Msg("We can't open the application config file")
			os.Exit(1)
		}
		m, err := userconfig.Parse(cf)
		cf.Close()
		if err != nil {
			log.Error().
				Err(err).
				Msg("Problem parsing your config")
			os.Exit(1)
		}
		config = *m
	} else if !*noEmail {
		log.Error().Msg("-config is required unless -noemail is set")
		os.Exit(1)
	}

	if *noEmail {
		config.Transport = userconfig.TransportStdout
	}

	checkedConfig, err := config.CheckAndSetDefaults()
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem validating your config")
		os.Exit(1)
	}

	log.Debug().
		Str("transport", checkedConfig.Transport).
		Msg("successfully validated the config")

	if f.from == "" {
		f.from = checkedConfig.Sending.From
	}
	if *timeout == 0 {
		*timeout = checkedConfig.Sending.Timeout
	}

	parts, err := f.parts()
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem reading the message contents")
		os.Exit(1)
	}

	svc, db, err := userconfig.NewService(ctx, checkedConfig, os.Stdout)
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem setting up the mail service")
		os.Exit(1)
	}

	start := time.Now()
	err = svc.Send(ctx, f.from, f.subject, parts, *timeout)

	if cerr := db.Cleanup(); cerr != nil {
		log.Warn().Err(cerr).Msg("could not clean up the journal")
	}
	if cerr := db.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("could not close the journal")
	}

	if err != nil {
		log.Error().
			Err(err).
			Dur("elapsed", time.Since(start)).
			Msg("the email was not sent")
		os.Exit(1)
	}

	log.Info().
		Dur("elapsed", time.Since(start)).
		Msg("done")
}
