package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/wippyai/iota-runtime/bundle"
	"github.com/wippyai/iota-runtime/ops"
	"github.com/wippyai/iota-runtime/payload"
	"github.com/wippyai/iota-runtime/runtime"
)

func main() {
	var (
		bundleDir   = flag.String("bundle", "", "Path to bundle directory")
		wasmFile    = flag.String("wasm", "", "Path to raw guest module")
		opName      = flag.String("op", "", "Operation to invoke (namespace/name)")
		argsJSON    = flag.String("args", "", "Named arguments as a JSON object")
		inJSON      = flag.String("in", "", "Channel input elements as a JSON array")
		list        = flag.Bool("list", false, "List operations and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *bundleDir == "" && *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -bundle <dir> [-op ns/name] [-args '{...}']")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -bundle <dir> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*bundleDir, *wasmFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*bundleDir, *wasmFile, *opName, *argsJSON, *inJSON, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(bundleDir, wasmFile, opName, argsJSON, inJSON string, listOnly bool) error {
	ctx := context.Background()

	rt, err := runtime.New(ctx)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	mod, err := loadModule(ctx, rt, bundleDir, wasmFile)
	if err != nil {
		return err
	}
	if b := mod.Bundle(); b != nil {
		fmt.Printf("Bundle: %s", b.ID)
		if b.Version != "" {
			fmt.Printf(" %s", b.Version)
		}
		fmt.Println()
	}

	inst, err := mod.Instantiate(ctx, nil)
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	defer inst.Close(ctx)

	if err := inst.Health(ctx); err != nil {
		return fmt.Errorf("health probe: %w", err)
	}

	fmt.Printf("\nOperations:\n")
	for _, op := range inst.Registry().Exports() {
		fmt.Printf("  %s/%s [%s]\n", op.Namespace, op.Name, op.Shape)
	}
	for _, op := range inst.Registry().Imports() {
		fmt.Printf("  %s/%s [%s, import]\n", op.Namespace, op.Name, op.Shape)
	}

	if listOnly || opName == "" {
		return nil
	}

	namespace, name, ok := strings.Cut(opName, "/")
	if !ok {
		return fmt.Errorf("operation %q: want namespace/name", opName)
	}
	op, ok := inst.Registry().ByName(ops.DirectionExport, namespace, name)
	if !ok {
		return fmt.Errorf("no exported operation %s", opName)
	}

	args, err := parseArgs(argsJSON)
	if err != nil {
		return err
	}

	fmt.Printf("\nInvoking %s/%s...\n", namespace, name)
	switch op.Shape {
	case ops.ShapeRequestResponse:
		res, err := inst.RequestResponse(ctx, namespace, name, args)
		if err != nil {
			return err
		}
		return printResult(res)

	case ops.ShapeFireAndForget:
		return inst.FireAndForget(ctx, namespace, name, args)

	case ops.ShapeRequestStream:
		out, err := inst.RequestStream(ctx, namespace, name, args)
		if err != nil {
			return err
		}
		return printStream(out)

	case ops.ShapeRequestChannel:
		in, err := parseChannelInput(inJSON)
		if err != nil {
			return err
		}
		out, err := inst.Channel(ctx, namespace, name, in)
		if err != nil {
			return err
		}
		return printStream(out)
	}
	return fmt.Errorf("operation %s has unknown shape", op)
}

func loadModule(ctx context.Context, rt *runtime.Runtime, bundleDir, wasmFile string) (*runtime.Module, error) {
	if bundleDir != "" {
		b, err := bundle.Load(bundleDir)
		if err != nil {
			return nil, fmt.Errorf("load bundle: %w", err)
		}
		return rt.LoadBundle(ctx, b)
	}
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return rt.LoadModule(ctx, data)
}

func parseArgs(argsJSON string) (payload.Args, error) {
	if argsJSON == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &m); err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}
	return payload.Args(m), nil
}

func parseChannelInput(inJSON string) (<-chan payload.Result, error) {
	var vals []any
	if inJSON != "" {
		if err := json.Unmarshal([]byte(inJSON), &vals); err != nil {
			return nil, fmt.Errorf("parse input: %w", err)
		}
	}
	in := make(chan payload.Result, len(vals))
	for _, v := range vals {
		r, err := payload.Ok(v)
		if err != nil {
			return nil, err
		}
		in <- r
	}
	close(in)
	return in, nil
}

func printResult(res payload.Result) error {
	s, err := formatResult(res)
	if err != nil {
		return err
	}
	fmt.Printf("Result: %s\n", s)
	return nil
}

func printStream(out <-chan payload.Result) error {
	i := 0
	for res := range out {
		s, err := formatResult(res)
		if err != nil {
			return err
		}
		fmt.Printf("  [%d] %s\n", i, s)
		i++
	}
	fmt.Printf("%d element(s)\n", i)
	return nil
}

func formatResult(res payload.Result) (string, error) {
	if res.IsError() {
		return "error: " + res.ErrorDetail().Message, nil
	}
	var v any
	if err := res.Decode(&v); err != nil {
		return "", err
	}
	enc, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v), nil
	}
	return string(enc), nil
}
