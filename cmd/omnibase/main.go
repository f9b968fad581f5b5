package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
//
// Exit codes:
//
//	0 = success
//	1 = resolution or verification failed
//	2 = usage or runtime error
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	var cmd func(context.Context, *Services, []string, io.Writer, io.Writer) int
	switch args[1] {
	case "merge":
		cmd = runMergeCmd
	case "plan":
		cmd = runPlanCmd
	case "verify":
		cmd = runVerifyCmd
	case "graph":
		cmd = runGraphCmd
	case "history":
		cmd = runHistoryCmd
	case "version":
		_, _ = fmt.Fprintf(stdout, "omnibase %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	svc, err := NewServices(ctx, cfg, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer svc.Close(context.WithoutCancel(ctx))

	return cmd(ctx, svc, args[2:], stdout, stderr)
}

func printUsage(w io.Writer) {
	st := newStyles(w)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, st.title.Render("omnibase "+version))
	_, _ = fmt.Fprintln(w, st.dim.Render("Contract resolution and execution planning."))
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, st.section.Render("USAGE:"))
	_, _ = fmt.Fprintln(w, "  omnibase <command> --bundle <dir> [flags]")
	_, _ = fmt.Fprintln(w, "")

	_, _ = fmt.Fprintln(w, st.section.Render("RESOLUTION:"))
	printCommand(w, st, "merge", "Merge the bundle's patches into its base profile (--json, --publish)")
	printCommand(w, st, "plan", "Compile the merged contract into an execution plan (--json)")
	printCommand(w, st, "graph", "Render the handler or patch graph (--of, --format dot|mermaid)")

	_, _ = fmt.Fprintln(w, st.section.Render("VERIFICATION:"))
	printCommand(w, st, "verify", "Run static verification (--json, --strict, --skip-digest, --fixture-store)")
	printCommand(w, st, "history", "List ledger records for a contract (--contract)")

	_, _ = fmt.Fprintln(w, st.section.Render("UTILITIES:"))
	printCommand(w, st, "version", "Show version information")
	printCommand(w, st, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
}

func printCommand(w io.Writer, st styles, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s %s\n", st.command.Render(fmt.Sprintf("%-10s", name)), desc)
}
