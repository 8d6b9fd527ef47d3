package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/pgcompare/pgcompare"
	"github.com/pgcompare/pgcompare/config"
)

// version and revision are set via -ldflags
var version = "dev"
var revision = "HEAD"

func parseOptions(args []string) (string, bool, *pgcompare.Options) {
	var opts struct {
		Config  string `short:"c" long:"config" description:"Path to the properties file" value-name:"file" default:"pgcompare.yaml"`
		Batch   int    `short:"b" long:"batch" description:"Restrict the run to one batch number (0 = all)" value-name:"n"`
		Project int    `short:"p" long:"project" description:"Override the project id from the config file" value-name:"n"`
		Table   string `short:"t" long:"table" description:"Restrict the run to one table alias" value-name:"alias"`
		To      string `long:"to" description:"Destination alias for copy-table" value-name:"alias"`
		Report  string `long:"report" description:"Write an HTML report to the given file" value-name:"file"`
		MapOnly bool   `long:"maponly" description:"Compile and print the column map, then stop"`
		Debug   bool   `long:"debug" description:"Force debug-level logging regardless of log-level"`
		Prompt  bool   `long:"password-prompt" description:"Force a password prompt for missing connection passwords"`
		Help    bool   `long:"help" description:"Show this help"`
		Version bool   `long:"version" description:"Show this version"`
	}

	parser := flags.NewParser(&opts, flags.None)
	parser.Usage = "[OPTIONS] init|discover|compare|check|copy-table"
	args, err := parser.ParseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(pgcompare.ExitError)
	}

	if opts.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(pgcompare.ExitOK)
	}
	if opts.Version {
		fmt.Printf("%s (%s)\n", version, revision)
		os.Exit(pgcompare.ExitOK)
	}

	if len(args) != 1 {
		fmt.Print("Exactly one action must be specified!\n\n")
		parser.WriteHelp(os.Stdout)
		os.Exit(pgcompare.ExitError)
	}

	options := &pgcompare.Options{
		Action:  args[0],
		Batch:   opts.Batch,
		Project: opts.Project,
		Table:   opts.Table,
		CopyTo:  opts.To,
		Report:  opts.Report,
		MapOnly: opts.MapOnly,
		Debug:   opts.Debug,
	}
	return opts.Config, opts.Prompt, options
}

// promptPasswords fills any missing connection password interactively
// when stdin is a terminal.
func promptPasswords(cfg *config.Config, forced bool) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return
	}

	prompt := func(label string, current *string) {
		if *current != "" && !forced {
			return
		}
		fmt.Printf("Enter %s password: ", label)
		pass, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			*current = string(pass)
		}
	}
	prompt("repository", &cfg.RepoPassword)
	if cfg.SourceHost != "" {
		prompt("source", &cfg.SourcePassword)
	}
	if cfg.TargetHost != "" {
		prompt("target", &cfg.TargetPassword)
	}
}

func main() {
	configPath, forcePrompt, options := parseOptions(os.Args[1:])

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(pgcompare.ExitError)
	}

	if forcePrompt || cfg.RepoPassword == "" {
		promptPasswords(cfg, forcePrompt)
	}

	os.Exit(pgcompare.Run(cfg, options))
}
