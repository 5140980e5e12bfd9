// ABOUTME: Entry point for one VoidLux swarm node: wires every component and runs until signalled.
// ABOUTME: Parses flags, opens the store, constructs each subsystem, starts its goroutines, then waits for shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voidlux/voidlux/internal/agentreg"
	"github.com/voidlux/voidlux/internal/board"
	"github.com/voidlux/voidlux/internal/election"
	"github.com/voidlux/voidlux/internal/gitshell"
	"github.com/voidlux/voidlux/internal/gossip"
	"github.com/voidlux/voidlux/internal/httpapi"
	"github.com/voidlux/voidlux/internal/lamport"
	"github.com/voidlux/voidlux/internal/mcpsurface"
	"github.com/voidlux/voidlux/internal/merge"
	"github.com/voidlux/voidlux/internal/mesh"
	"github.com/voidlux/voidlux/internal/orchestrator"
	"github.com/voidlux/voidlux/internal/planner"
	"github.com/voidlux/voidlux/internal/store"
	"github.com/voidlux/voidlux/internal/swarm"
	"github.com/voidlux/voidlux/internal/task"

	"github.com/voidlux/voidlux/llm"
)

const version = "0.1.0"

func main() {
	loadDotEnv(".env")

	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("component=main action=parse_flags err=%q", err)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	if err := os.MkdirAll(cfg.dataDir, 0o755); err != nil {
		log.Fatalf("component=main action=mkdir_data_dir dir=%s err=%q", cfg.dataDir, err)
	}

	st, err := store.Open(cfg.dataDir + "/voidlux.db")
	if err != nil {
		log.Fatalf("component=main action=open_store err=%q", err)
	}
	defer st.Close()

	selfNode, err := resolveNodeID(st)
	if err != nil {
		log.Fatalf("component=main action=resolve_node_id err=%q", err)
	}

	startTS, err := st.LoadLamportClock()
	if err != nil {
		log.Fatalf("component=main action=load_lamport err=%q", err)
	}
	clock := lamport.New(startTS)

	n := &node{
		selfNode: selfNode,
		httpPort: cfg.httpPort,
		p2pPort:  cfg.p2pPort,
		store:    st,
		clock:    clock,
	}

	log.Printf("component=main action=boot node=%s role=%s data_dir=%s p2p_port=%d http_port=%d",
		selfNode, cfg.role, cfg.dataDir, cfg.p2pPort, cfg.httpPort)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run(ctx, cfg, n)
}

func run(ctx context.Context, cfg config, n *node) {
	st := n.store
	clock := n.clock
	selfNode := n.selfNode

	m := mesh.New(n.dispatch)
	n.mesh = m

	pm := mesh.NewPeerManager(m, selfNode, cfg.seeds)
	n.pm = pm
	px := mesh.NewPeerExchange(m, pm)
	n.px = px

	eng := gossip.New(m, clock, selfNode)
	n.gossip = eng
	ae := gossip.NewAntiEntropy(m, st, eng)
	n.ae = ae

	elec := election.New(m, st, clockAdapter{clock}, selfNode)
	n.elec = elec

	reg := agentreg.New(st, clock, eng, selfNode)
	n.agents = reg

	q := task.NewQueue(st, clock, eng, selfNode)
	b := board.New(st, clock, eng, selfNode)
	n.board = b

	eng.SetTaskSink(q)
	eng.SetAgentSink(reg)
	eng.SetBoardSink(b)

	deliverer := newBoardDeliverer(b)
	dispatcher := task.NewDispatcher(q, st, clock, deliverer, selfNode)

	var merger *merge.Runner
	if cfg.repoPath != "" {
		gw := gitshell.New(cfg.repoPath, cfg.worktreeRoot, nil)
		merger = merge.New(gw, q, st)
	}

	var orch *orchestrator.Orchestrator
	llmClient, llmErr := llm.FromEnv()
	if llmErr != nil {
		log.Printf("component=main action=llm_init err=%q (planner/reviewer disabled)", llmErr)
	} else if merger != nil {
		adapter := planner.New(llmClient, cfg.model)
		orch = orchestrator.New(q, adapter, adapter, merger)
	} else {
		log.Printf("component=main action=orchestrator_disabled reason=\"no --repo configured, MergeTestRetry unavailable\"")
	}

	mcpSrv := mcpsurface.New(q, reg)

	httpSrv := httpapi.New(q, reg, b, st, clock, selfNode)

	var wg sync.WaitGroup
	start := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}

	port, err := m.Listen(ctx, fmt.Sprintf(":%d", cfg.p2pPort))
	if err != nil {
		log.Fatalf("component=main action=mesh_listen err=%q", err)
	}
	log.Printf("component=main action=mesh_listening port=%d", port)

	start(pm.Run)
	start(px.Run)
	start(elec.Run)
	start(func(ctx context.Context) { runOfflineSweep(ctx, reg, q) })
	start(func(ctx context.Context) { dispatcher.Run(ctx) })
	start(func(ctx context.Context) { ae.Run(ctx.Done()) })
	if orch != nil {
		start(orch.Run)
	}

	udp := mesh.NewUdpBroadcast(selfNode, cfg.p2pPort, cfg.discoveryPort, func(host string, p2pPort int, nodeID string) {
		if nodeID == selfNode {
			return
		}
		pm.AddKnown(net.JoinHostPort(host, strconv.Itoa(p2pPort)))
	})
	start(udp.Run)

	for _, addr := range cfg.seeds {
		pm.AddKnown(addr)
	}

	mcpTransport := &mcp.LoggingTransport{Transport: &mcp.StdioTransport{}}
	go func() {
		if err := mcpSrv.Handler().Run(ctx, mcpTransport); err != nil && ctx.Err() == nil {
			log.Printf("component=main action=mcp_serve err=%q", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.httpPort),
		Handler: httpSrv,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("component=main action=http_serve err=%q", err)
		}
	}()

	<-ctx.Done()
	log.Printf("component=main action=shutdown_begin")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	m.Shutdown(5 * time.Second)

	if err := st.FlushLamportClock(clock.Peek()); err != nil {
		log.Printf("component=main action=flush_lamport err=%q", err)
	}

	wg.Wait()
	log.Printf("component=main action=shutdown_complete")
}

// clockAdapter satisfies election.Clock with *lamport.Clock's Tick method.
type clockAdapter struct {
	c *lamport.Clock
}

func (a clockAdapter) Tick() uint64 { return a.c.Tick() }

func (a clockAdapter) Witness(remote uint64) uint64 { return a.c.Witness(remote) }

var _ swarm.Node
