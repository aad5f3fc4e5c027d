package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lodpnet/lodp/internal/identity"
)

var version = "dev"

func main() {
	var (
		outPath     = flag.String("out", "", "write/load the identity key at this path")
		showVersion = flag.Bool("version", false, "show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("lodp-keygen %s\n", version)
		os.Exit(0)
	}

	var (
		id  *identity.Identity
		err error
	)
	if *outPath != "" {
		id, err = identity.LoadOrGenerate(*outPath)
	} else {
		id, err = identity.Generate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate identity: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("fingerprint: %s\n", id.Fingerprint)
	fmt.Printf("public key:  %s\n", id.PublicKeyHex())
	if *outPath != "" {
		fmt.Printf("private key: %s\n", *outPath)
	} else {
		fmt.Println("private key: not saved (use -out)")
	}
}
