package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"
)

const (
	defaultAddr           = "localhost:8080"
	defaultConfigFilename = "transferctl.conf"
)

// config defines the command line options of transferctl
type config struct {
	Config  string        `short:"C" long:"config" description:"Path to configuration file"`
	Addr    string        `short:"a" long:"addr" description:"gRPC server to connect to"`
	Token   string        `short:"t" long:"token" env:"SECURESEND_API_TOKEN" default-mask:"-" description:"API token sent as authorization metadata"`
	Asset   string        `long:"asset" description:"Asset to send (send)"`
	Amount  string        `long:"amount" description:"Amount in the asset's native unit (send)"`
	To      string        `long:"to" description:"Recipient address (send)"`
	Fee     string        `long:"fee" description:"Fee estimate, defaults to the asset's fee (send)"`
	Yes     bool          `short:"y" long:"yes" description:"Acknowledge warnings and confirm without prompting"`
	Limit   int           `short:"n" long:"limit" description:"Number of transfers to list (history)"`
	Window  time.Duration `long:"window" description:"Reporting window, defaults to 24h (summary)"`
	NoColor bool          `long:"nocolor" description:"Disable colored output"`
	Timeout time.Duration `long:"timeout" default:"2m" description:"Deadline for the whole command"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return defaultConfigFilename
	}
	return filepath.Join(dir, "securesend", defaultConfigFilename)
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// configure parses command line options and a config file if present. Returns
// the config, leftover command line arguments, and true when help was printed.
func configure(args []string) (*config, []string, bool, error) {
	cfg := &config{
		Config: defaultConfigPath(),
	}

	preParser := flags.NewParser(cfg, flags.HelpFlag)
	if _, err := preParser.ParseArgs(args); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Println(err)
			fmt.Println(commandsMessage)
			return nil, nil, true, nil
		}
		return nil, nil, false, err
	}

	parser := flags.NewParser(cfg, flags.Default)

	if fileExists(cfg.Config) {
		// Load additional config from file.
		if err := flags.NewIniParser(parser).ParseFile(cfg.Config); err != nil {
			return nil, nil, false, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, false, err
	}

	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}

	return cfg, remainingArgs, false, nil
}
