package config

import (
	"flag"
	"os"
	"strings"

	"github.com/annotify/annotify/internal/flagx"
)

// parseFlags overlays selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   path to the local cache database
//	-p string   comma-separated initial peer URLs
//
// Args are filtered with flagx.FilterArgs so flags owned by other components
// pass through untouched.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.LocalDBPath, "d", cfg.LocalDBPath, "path to local cache database")
	peers := fs.String("p", "", "comma-separated initial peer URLs")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *peers != "" {
		cfg.InitialPeers = strings.Split(*peers, ",")
	}
}
