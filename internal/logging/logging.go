// Package logging wires klog into the lab binaries.
package logging

import (
	"flag"

	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

// AddFlags registers klog's flags (-v, --logtostderr, ...) on a pflag set.
func AddFlags(fs *pflag.FlagSet) {
	local := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(local)
	fs.AddGoFlagSet(local)
}

// Init configures klog for a binary that parses its own flags. Call before any logging.
func Init(verbosity string) error {
	local := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(local)
	if verbosity == "" {
		return nil
	}
	return local.Set("v", verbosity)
}

// Flush writes any buffered log lines.
func Flush() {
	klog.Flush()
}
