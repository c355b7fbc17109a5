package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sheepfriend/p2p-player/internal/bootstrap"
	"github.com/sheepfriend/p2p-player/internal/dht"
	"github.com/sheepfriend/p2p-player/internal/netx"
	"github.com/sheepfriend/p2p-player/internal/paths"
	"github.com/sheepfriend/p2p-player/internal/repository"
	"github.com/sheepfriend/p2p-player/internal/telemetry"
	"github.com/sheepfriend/p2p-player/internal/transport"
)

func main() {
	bind := flag.String("bind", ":9997", "TCP transport bind address")
	dataDir := flag.String("data", "", "repository data directory (default: OS config dir)")
	bootstrapStr := flag.String("bootstrap", "", "comma-separated bootstrap peer addresses host:port")
	metricsAddr := flag.String("metrics", "", "if set, serve Prometheus metrics on this address (e.g. :2112)")
	debug := flag.Bool("debug", false, "verbose development logging")
	flag.Parse()

	log := telemetry.NewZap()
	if *debug {
		log = telemetry.NewZapDevelopment()
	}

	dir := *dataDir
	if dir == "" {
		dir = paths.DefaultDataDir()
	}
	dir, err := paths.EnsureDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "data dir: %v\n", err)
		os.Exit(1)
	}

	repo, err := repository.Open(dir + "/repository.bolt")
	if err != nil {
		fmt.Fprintf(os.Stderr, "open repository: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	selfID := dht.RandomID()

	tnode := transport.NewNode(transport.Config{
		SelfID:   selfID.Hex(),
		Network:  netx.NewTCPNetwork(),
		BindAddr: *bind,
		Logger:   log,
	}, nil)

	knode := dht.NewNode(dht.Config{
		Self:       dht.Contact{ID: selfID, Endpoint: *bind},
		Sender:     tnode,
		Repository: repo,
		Logger:     log,
	})
	tnode.SetHandler(knode.HandleEnvelope)

	if err := tnode.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "start transport: %v\n", err)
		os.Exit(1)
	}
	knode.Start()
	defer knode.Stop()

	if *bootstrapStr != "" {
		var addrs []netx.Addr
		for _, part := range strings.Split(*bootstrapStr, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				addrs = append(addrs, netx.Addr(part))
			}
		}
		bootstrap.RunOnce(context.Background(), tnode, bootstrap.DefaultConfig(), bootstrap.StaticSource{Addrs: addrs})
	}

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			_ = http.ListenAndServe(*metricsAddr, nil)
		}()
	}

	fmt.Printf("kadpeer started\n")
	fmt.Printf("id:   %s\n", selfID.Hex())
	fmt.Printf("addr: %s\n\n", tnode.ListenAddr())
	fmt.Println("Commands:")
	fmt.Println("  /put <title> | <artist> | <album>   - index a track and advertise it")
	fmt.Println("  /get <query>                         - search the swarm for a keyword query")
	fmt.Println("  /quit                                - exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case line == "/quit":
			fmt.Println("quitting...")
			return
		case strings.HasPrefix(line, "/put "):
			handlePut(knode, strings.TrimPrefix(line, "/put "))
		case strings.HasPrefix(line, "/get "):
			handleGet(knode, strings.TrimPrefix(line, "/get "))
		default:
			fmt.Println("unknown command")
		}
	}
}

func handlePut(n *dht.Node, arg string) {
	parts := strings.Split(arg, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	tag := repository.CompleteTag{}
	if len(parts) > 0 {
		tag.Title = parts[0]
	}
	if len(parts) > 1 {
		tag.Artist = parts[1]
	}
	if len(parts) > 2 {
		tag.Album = parts[2]
	}
	n.Put(tag)
	fmt.Printf("put %q\n", tag.Title)
}

func handleGet(n *dht.Node, query string) {
	resources := n.Get(query)
	if len(resources) == 0 {
		fmt.Println("no results")
		return
	}
	for _, r := range resources {
		fmt.Printf("%s  %s - %s (%s)\n", r.ID, r.Tag.Artist, r.Tag.Title, r.Tag.Album)
		for _, u := range r.URLs {
			fmt.Printf("    %s  %s\n", u.Endpoint, u.PublicationTime.Format("2006-01-02T15:04:05Z"))
		}
	}
}
