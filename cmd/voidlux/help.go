// ABOUTME: Usage text for the voidlux CLI, printed via plain fmt.Fprintf.
package main

import (
	"fmt"
	"io"
)

func printHelp(w io.Writer) {
	fmt.Fprintf(w, "voidlux %s\n\n", version)
	fmt.Fprintf(w, "Runs one node of a VoidLux swarm: the P2P gossip mesh, task queue,\n")
	fmt.Fprintf(w, "leader election, agent registry, and merge/test/retry loop.\n\n")
	fmt.Fprintf(w, "Usage:\n  voidlux [flags]\n\n")
	fmt.Fprintf(w, "Flags:\n")
	fmt.Fprintf(w, "  --p2p-port int          TCP port for the peer mesh (default 7946)\n")
	fmt.Fprintf(w, "  --discovery-port int    UDP port for LAN discovery (default 7947)\n")
	fmt.Fprintf(w, "  --http-port int         HTTP surface port (default 8787)\n")
	fmt.Fprintf(w, "  --seeds string          comma-separated host:port seed addresses\n")
	fmt.Fprintf(w, "  --data-dir string       persistent state directory\n")
	fmt.Fprintf(w, "  --role string           initial role: worker or seneschal (default worker)\n")
	fmt.Fprintf(w, "  --repo string           git repository MergeTestRetry integrates into\n")
	fmt.Fprintf(w, "  --worktree-root string  parent dir for integration/subtask worktrees\n")
	fmt.Fprintf(w, "  --model string          planner/reviewer model alias (default sonnet)\n")
	fmt.Fprintf(w, "  --capabilities string   comma-separated node capability tags\n")
	fmt.Fprintf(w, "  --version               print version and exit\n\n")
	fmt.Fprintf(w, "Environment:\n")
	fmt.Fprintf(w, "  ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY — at least one is\n")
	fmt.Fprintf(w, "  required for the default Planner/Reviewer; a .env file next to the\n")
	fmt.Fprintf(w, "  working directory is loaded automatically.\n")
}
