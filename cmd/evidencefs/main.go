// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

// evidencefs mounts evidence container segments as a read-only
// filesystem. The mount stays up until the process receives SIGINT,
// SIGTERM, or SIGHUP, or the filesystem is unmounted externally with
// umount/fusermount.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/evidencefs/evidencefs/lib/config"
	"github.com/evidencefs/evidencefs/lib/container"
	"github.com/evidencefs/evidencefs/lib/mountfs"
	"github.com/evidencefs/evidencefs/lib/secret"
	"github.com/evidencefs/evidencefs/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "evidencefs: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		mountpoint       string
		passphraseFile   string
		passphrasePrompt bool
		allowOther       bool
		foreground       bool
		grace            time.Duration
		logLevel         string
		logFormat        string
		configPath       string
		showVersion      bool
	)

	flagSet := pflag.NewFlagSet("evidencefs", pflag.ContinueOnError)
	flagSet.StringVarP(&mountpoint, "mountpoint", "m", "", "directory to mount the container at (required)")
	flagSet.StringVar(&passphraseFile, "passphrase-file", "", "read the container passphrase from this file (\"-\" for stdin)")
	flagSet.BoolVar(&passphrasePrompt, "passphrase-prompt", false, "always prompt for the passphrase, even with a passphrase file configured")
	flagSet.BoolVar(&allowOther, "allow-other", false, "permit other users to read the mount (requires user_allow_other in /etc/fuse.conf)")
	flagSet.BoolVar(&foreground, "foreground", true, "stay in the foreground; --foreground=false detaches after mounting")
	flagSet.DurationVar(&grace, "grace", mountfs.DefaultGracePeriod, "how long unmount waits for in-flight reads")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	flagSet.StringVar(&configPath, "config", "", "YAML config file (defaults to $"+config.EnvVar+")")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("evidencefs")
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// Flags the user actually set win over file values.
	if !flagSet.Changed("mountpoint") && cfg.Mountpoint != "" {
		mountpoint = cfg.Mountpoint
	}
	if !flagSet.Changed("passphrase-file") {
		passphraseFile = cfg.PassphraseFile
	}
	if !flagSet.Changed("allow-other") {
		allowOther = cfg.AllowOther
	}
	if !flagSet.Changed("grace") {
		grace = cfg.Grace
	}
	if !flagSet.Changed("log-level") {
		logLevel = cfg.LogLevel
	}
	if !flagSet.Changed("log-format") {
		logFormat = cfg.LogFormat
	}

	segments := flagSet.Args()
	if len(segments) == 0 {
		return fmt.Errorf("no container segments given (see --help)")
	}
	if mountpoint == "" {
		return fmt.Errorf("--mountpoint is required")
	}

	logger, err := newLogger(logLevel, logFormat)
	if err != nil {
		return err
	}

	passphrase, err := obtainPassphrase(segments[0], passphraseFile, passphrasePrompt)
	if err != nil {
		return err
	}
	if passphrase != nil {
		defer passphrase.Close()
	}

	c, err := container.Open(segments, passphrase)
	if err != nil {
		return fmt.Errorf("opening container: %w", err)
	}

	meta := c.Meta()
	logger.Info("container opened",
		"segments", len(segments),
		"objects", c.ObjectCount(),
		"case", meta.CaseNumber,
		"examiner", meta.Examiner,
		"tool", meta.Tool,
		"acquired", time.Unix(meta.AcquisitionEnd, 0).UTC().Format(time.RFC3339),
	)

	if !foreground {
		c.Close()
		return detach(args)
	}

	session, err := mountfs.Mount(mountfs.Options{
		Mountpoint:  mountpoint,
		Container:   c,
		GracePeriod: grace,
		AllowOther:  allowOther,
		Logger:      logger,
	})
	if err != nil {
		c.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	// Either a signal arrives and we unmount, or the kernel mount
	// disappears externally (umount, fusermount -u) and Wait returns.
	waited := make(chan struct{})
	go func() {
		session.Wait()
		close(waited)
	}()
	select {
	case <-ctx.Done():
		logger.Info("signal received, unmounting")
		if err := session.Unmount(); err != nil {
			return fmt.Errorf("unmounting: %w", err)
		}
	case <-waited:
		logger.Info("filesystem unmounted externally")
		if err := session.Unmount(); err != nil {
			return fmt.Errorf("releasing container: %w", err)
		}
	}
	return nil
}

// obtainPassphrase decides where the container passphrase comes from.
// Plaintext containers need none. Encrypted ones read the configured
// passphrase file, or prompt when forced with --passphrase-prompt or
// when no file is configured and stderr is a terminal.
func obtainPassphrase(firstSegment, passphraseFile string, forcePrompt bool) (*secret.Buffer, error) {
	encrypted, err := container.Encrypted(firstSegment)
	if err != nil {
		return nil, err
	}
	if !encrypted {
		return nil, nil
	}

	if passphraseFile != "" && !forcePrompt {
		return secret.ReadFromPath(passphraseFile)
	}

	stderrFD := int(os.Stderr.Fd())
	if !term.IsTerminal(stderrFD) {
		return nil, fmt.Errorf("container is encrypted and no passphrase source is available (use --passphrase-file)")
	}
	fmt.Fprint(os.Stderr, "Container passphrase: ")
	passphraseBytes, err := term.ReadPassword(stderrFD)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	buffer, err := secret.NewFromBytes(passphraseBytes)
	if err != nil {
		secret.Zero(passphraseBytes)
		return nil, err
	}
	return buffer, nil
}

// detach re-executes the binary in the foreground mode with a new
// session, detached from the controlling terminal. The passphrase
// must come from a file in this mode: the child has no terminal to
// prompt on.
func detach(args []string) error {
	// The trailing flag wins, overriding any --foreground=false in
	// the original arguments.
	childArgs := append(append([]string{}, args...), "--foreground=true")
	child := exec.Command(os.Args[0], childArgs...)
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	child.Stdout = nil
	child.Stderr = nil
	child.Stdin = nil
	if err := child.Start(); err != nil {
		return fmt.Errorf("detaching: %w", err)
	}
	return child.Process.Release()
}

// newLogger builds the process logger on stderr.
func newLogger(level, format string) (*slog.Logger, error) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	options := &slog.HandlerOptions{Level: slogLevel}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Mount evidence container segments as a read-only filesystem.

All segments of the container must be given. Order does not matter;
segments are matched by the identifiers in their headers. Encrypted
containers need a passphrase, taken from --passphrase-file or an
interactive prompt.

The mount stays up until the process receives SIGINT, SIGTERM, or
SIGHUP, or the filesystem is unmounted externally. On unmount,
in-flight reads are drained for the --grace window.

Usage:
  evidencefs --mountpoint DIR SEGMENT...

Examples:
  # Mount a single-segment container
  evidencefs -m /mnt/evidence case42.ecf

  # Mount a split acquisition with a passphrase file
  evidencefs -m /mnt/evidence --passphrase-file /run/secrets/phrase case42.ecf.*

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
