// Command flockvm loads a bytecode program, runs it as the root task of
// a Flock VM, and reports its outcome. Grounded on cmd/barn/main.go's
// flag parsing and log.Printf/log.Fatalf lifecycle logging style,
// generalized from "load a MOO database and start a telnet server" to
// "assemble a program, run it to completion, print the result".
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"flock/asm"
	"flock/cluster"
	"flock/config"
	"flock/task"
	"flock/trace"
	"flock/vm"
)

func main() {
	// -config has to be known before the rest of the flags are registered
	// (their defaults come from the loaded file), so it's picked out of
	// os.Args by hand rather than through the flag package.
	cfg, err := config.Load(scanConfigFlag(os.Args[1:]))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	flag.String("config", "", "path to a YAML config file")
	config.RegisterFlags(&cfg)
	flag.Parse()
	config.ResolvePeers(&cfg)

	if cfg.TraceEnabled {
		trace.Init(true, os.Stderr)
		log.Printf("Tracing enabled")
	} else {
		trace.Init(false, nil)
	}

	if flag.NArg() < 1 {
		log.Fatalf("usage: flockvm [flags] <program.flasm>")
	}

	source, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to read program %s: %v", flag.Arg(0), err)
	}

	img, err := asm.Assemble(string(source))
	if err != nil {
		log.Fatalf("Failed to assemble %s: %v", flag.Arg(0), err)
	}

	machine := vm.New(vm.Options{
		MaxLocalWorkers: cfg.MaxLocalWorkers,
		QueueCapacity:   cfg.QueueCapacity,
	})
	defer machine.Close()

	if cfg.ListenPort != 0 {
		addr := fmt.Sprintf(":%d", cfg.ListenPort)
		if err := machine.ListenCluster(addr, []byte(cfg.ClusterSecret)); err != nil {
			log.Fatalf("Failed to start cluster server on %s: %v", addr, err)
		}
		log.Printf("Cluster server listening on %s", addr)
	}

	if len(cfg.Peers) > 0 {
		log.Printf("Dialing %d cluster peer(s)", len(cfg.Peers))
		for _, addr := range cfg.Peers {
			peer, err := cluster.DialTCPPeer(addr, []byte(cfg.ClusterSecret), machine.Context().Bytecode.Get)
			if err != nil {
				log.Printf("Failed to dial peer %s: %v", addr, err)
				continue
			}
			defer peer.Close()
			log.Printf("Connected to peer %s", addr)
			machine.AddPeer(addr, peer)
		}
	}

	id := machine.Register(img)
	log.Printf("Registered program %s as bytecode id %d", flag.Arg(0), id)

	root := &task.TaskOrder{ID: task.NewID(), BytecodeID: id, Task: task.New()}
	result, err := machine.BlockOnTask(root)
	if err != nil {
		log.Printf("Task failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("Terminated. Final stack (top first):\n")
	for i := len(result.Task.Stack) - 1; i >= 0; i-- {
		fmt.Printf("  %d\n", result.Task.Stack[i])
	}
}

// scanConfigFlag picks "-config"/"--config"'s value out of args without
// involving the flag package, since the rest of this command's flags
// aren't registered yet at the point the config file needs to be read.
func scanConfigFlag(args []string) string {
	for i, a := range args {
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case len(a) > 8 && a[:8] == "-config=":
			return a[8:]
		case len(a) > 9 && a[:9] == "--config=":
			return a[9:]
		}
	}
	return ""
}
