package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/gotftp/pkg/tftp"
)

const configFile = "tftp.ini"

func main() {
	base := defaults{
		host:    "localhost",
		port:    "69",
		mode:    tftp.DefaultMode,
		retries: tftp.DefaultRetries,
		timeout: tftp.DefaultInitialDelay,
	}
	base = loadDefaults(configFile, base)

	host := flag.String("h", base.host, "server hostname")
	port := flag.String("p", base.port, "port or service name")
	read := flag.Bool("r", false, "read (download) from the server")
	write := flag.Bool("w", false, "write (upload) to the server")
	verbose := flag.Bool("v", base.verbose, "verbose logging to stderr")
	flag.Parse()

	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	if *read == *write {
		fail(tftp.ErrUsage)
	}
	remoteFile, localFile, err := resolveFilenames(flag.Args(), *read)
	if err != nil {
		fail(err)
	}

	opts := []tftp.Option{
		tftp.WithMode(base.mode),
		tftp.WithRetries(base.retries),
		tftp.WithTimeout(base.timeout),
		tftp.WithLogger(log.WithField("cmd", "gotftp")),
	}

	ctx := context.Background()
	if *read {
		err = tftp.Get(ctx, *host, *port, remoteFile, localFile, opts...)
	} else {
		err = tftp.Put(ctx, *host, *port, localFile, remoteFile, opts...)
	}
	if err != nil {
		fail(err)
	}
}

// resolveFilenames applies spec.md §6's positional-argument rule. With one
// positional, it names both the remote and the local file. With two, a
// download takes the first as the remote filename and the second as the
// local destination; an upload takes the first as the local source and the
// second as the remote filename.
func resolveFilenames(args []string, isRead bool) (remoteFile, localFile string, err error) {
	switch len(args) {
	case 1:
		return args[0], args[0], nil
	case 2:
		if isRead {
			return args[0], args[1], nil
		}
		return args[1], args[0], nil
	default:
		return "", "", tftp.ErrUsage
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "gotftp: %v\n", err)
	flag.Usage()
	os.Exit(1)
}
