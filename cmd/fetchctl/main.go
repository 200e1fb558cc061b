// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// fetchctl is a read-only admin CLI over the local feature-set registry,
// modeled on the teacher's single-purpose tools/archive-manager command.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/onfeat/fetchcore/internal/registry"
)

func main() {
	var registryPath string
	flag.StringVar(&registryPath, "registry", "./var/registry.db", "Path to the registry database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	reg, err := registry.Open(registryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetchctl: opening registry: %v\n", err)
		os.Exit(1)
	}
	defer reg.Close()

	switch args[0] {
	case "list":
		if len(args) != 2 || (args[1] != "groupby" && args[1] != "join") {
			fmt.Fprintln(os.Stderr, "usage: fetchctl list <groupby|join>")
			os.Exit(2)
		}
		records, err := reg.List(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "fetchctl: %v\n", err)
			os.Exit(1)
		}
		for _, r := range records {
			fmt.Printf("%-30s loaded %s\n", r.Name, time.UnixMilli(r.LoadedAt).Format(time.RFC3339))
		}

	case "get":
		if len(args) != 3 || (args[2] != "groupby" && args[2] != "join") {
			fmt.Fprintln(os.Stderr, "usage: fetchctl get <name> <groupby|join>")
			os.Exit(2)
		}
		r, err := reg.Get(args[1], args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "fetchctl: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(r.RawJSON)

	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: fetchctl [-registry path] list <groupby|join>")
	fmt.Fprintln(os.Stderr, "       fetchctl [-registry path] get <name> <groupby|join>")
}
