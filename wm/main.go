// Command wm manages a personal ledger: accounts, transactions, scheduled
// transactions, sinking fund goals and net worth.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/etnz/wealth"
	"github.com/etnz/wealth/cmd"
	"github.com/etnz/wealth/internal/logger"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

// completion builds the shell completion of the registered commands.
func completion(commander *subcommands.Commander) *complete.Command {
	predictors := map[string]complete.Predictor{
		"t":         predict.Set(append(txTypes(), accountTypes()...)),
		"f":         predict.Files("*"),
		"db":        predict.Files("*.db"),
		"log-level": predict.Set{"debug", "info", "warn", "error"},
	}
	flagsOf := func(fs *flag.FlagSet) map[string]complete.Predictor {
		flags := map[string]complete.Predictor{}
		fs.VisitAll(func(f *flag.Flag) {
			if p, ok := predictors[f.Name]; ok {
				flags[f.Name] = p
				return
			}
			flags[f.Name] = predict.Something
		})
		return flags
	}

	root := &complete.Command{
		Sub:   map[string]*complete.Command{},
		Flags: flagsOf(flag.CommandLine),
	}
	commander.VisitCommands(func(_ *subcommands.CommandGroup, c subcommands.Command) {
		fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.SetFlags(fs)
		root.Sub[c.Name()] = &complete.Command{Flags: flagsOf(fs)}
	})
	return root
}

func txTypes() []string {
	var s []string
	for _, t := range wealth.TxTypes {
		s = append(s, string(t))
	}
	return s
}

func accountTypes() []string {
	var s []string
	for _, t := range wealth.AccountTypes {
		s = append(s, string(t))
	}
	return s
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cmd.Register(commander)

	completion(commander).Complete("wm")

	flag.Parse()

	ctx := logger.WithContext(context.Background(), logger.New(*cmd.LogLevel))
	if err := cmd.CheckEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(int(subcommands.ExitUsageError))
	}

	// Unknown subcommands are delegated to wm-<subcommand> extensions.
	if name := flag.Arg(0); name != "" && !registered(commander, name) {
		if found, code := cmd.RunExtension(name, flag.Args()[1:]); found {
			os.Exit(code)
		}
	}
	os.Exit(int(commander.Execute(ctx)))
}

func registered(commander *subcommands.Commander, name string) bool {
	found := false
	commander.VisitCommands(func(_ *subcommands.CommandGroup, c subcommands.Command) {
		if c.Name() == name {
			found = true
		}
	})
	return found
}
