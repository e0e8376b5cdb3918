package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weny945/home-pi/internal/config"
)

// statusClient bounds the CLI verbs that talk to a running daemon.
var statusClient = &http.Client{Timeout: 5 * time.Second}

// statusBase turns the configured status address into a reachable URL. A
// bare ":8090" listen address means the local host.
func statusBase(cfg *config.Config) string {
	addr := cfg.StatusAddr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

func fetch(base, path string) (int, []byte, error) {
	resp, err := statusClient.Get(base + path)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

// cmdStatus prints the daemon's readiness and per-backend availability.
// Exit is non-zero when the daemon is unreachable or degraded.
func cmdStatus(cfg *config.Config) int {
	base := statusBase(cfg)
	code, body, err := fetch(base, "/readyz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "homepi: daemon unreachable at %s: %v\n", base, err)
		return 1
	}

	var ready struct {
		Status    string            `json:"status"`
		Backends  map[string]string `json:"backends"`
		LastProbe string            `json:"last_probe"`
		Uptime    string            `json:"uptime"`
	}
	if err := json.Unmarshal(body, &ready); err != nil {
		fmt.Fprintf(os.Stderr, "homepi: bad status response: %v\n", err)
		return 1
	}

	fmt.Printf("status: %s\n", ready.Status)
	if ready.Uptime != "" {
		fmt.Printf("uptime: %s\n", ready.Uptime)
	}
	if ready.LastProbe != "" {
		fmt.Printf("last probe: %s\n", ready.LastProbe)
	}
	for name, state := range ready.Backends {
		fmt.Printf("  %-14s %s\n", name, state)
	}
	if code != http.StatusOK {
		return 1
	}
	return 0
}

// cmdPerf prints the daemon's own metric families from the scrape endpoint.
func cmdPerf(cfg *config.Config) int {
	base := statusBase(cfg)
	_, body, err := fetch(base, "/metrics")
	if err != nil {
		fmt.Fprintf(os.Stderr, "homepi: daemon unreachable at %s: %v\n", base, err)
		return 1
	}
	for _, line := range strings.Split(string(body), "\n") {
		if strings.Contains(line, "homepi") {
			fmt.Println(line)
		}
	}
	return 0
}

// cmdLogs prints the daemon's buffered log tail.
func cmdLogs(cfg *config.Config) int {
	base := statusBase(cfg)
	code, body, err := fetch(base, "/logs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "homepi: daemon unreachable at %s: %v\n", base, err)
		return 1
	}
	if code != http.StatusOK {
		fmt.Fprintf(os.Stderr, "homepi: log endpoint returned %d\n", code)
		return 1
	}
	os.Stdout.Write(body)
	return 0
}

// cmdDiag runs local checks and probes the daemon, printing one line per
// check. Exit is non-zero when any check fails.
func cmdDiag(cfg *config.Config, configPath string) int {
	failed := 0
	check := func(name string, err error) {
		if err != nil {
			failed++
			fmt.Printf("FAIL %-22s %v\n", name, err)
			return
		}
		fmt.Printf("ok   %s\n", name)
	}

	check("config "+configPath, config.Validate(cfg))
	check("data dir "+cfg.DataDir, dirWritable(cfg.DataDir))

	base := statusBase(cfg)
	_, _, err := fetch(base, "/healthz")
	check("daemon "+base, err)
	if err == nil {
		code, _, rerr := fetch(base, "/readyz")
		if rerr == nil && code != http.StatusOK {
			rerr = fmt.Errorf("degraded (%d)", code)
		}
		check("backends", rerr)
	}

	if failed > 0 {
		return 1
	}
	return 0
}

func dirWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".diag-*")
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(f.Name())
}

// cmdConfig implements `config --show|--get key|--set key=value|--validate`.
// Sets edit the file on disk; the daemon reads configuration at startup, so
// --reload only reports that a restart is needed.
func cmdConfig(cfg *config.Config, configPath string, args []string) int {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	show := fs.Bool("show", false, "print the effective configuration")
	get := fs.String("get", "", "print one value by dotted key, e.g. tts.cache_dir")
	set := fs.String("set", "", "write key=value into the config file")
	validate := fs.Bool("validate", false, "check the config file and exit")
	reload := fs.Bool("reload", false, "ask the daemon to reload (not supported)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	switch {
	case *show:
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "homepi: %v\n", err)
			return 1
		}
		os.Stdout.Write(out)
		return 0

	case *get != "":
		v, err := lookupYAMLPath(configPath, *get)
		if err != nil {
			fmt.Fprintf(os.Stderr, "homepi: %v\n", err)
			return 1
		}
		fmt.Println(v)
		return 0

	case *set != "":
		key, value, ok := strings.Cut(*set, "=")
		if !ok {
			fmt.Fprintln(os.Stderr, "homepi: --set wants key=value")
			return 2
		}
		if err := setYAMLPath(configPath, key, value); err != nil {
			fmt.Fprintf(os.Stderr, "homepi: %v\n", err)
			return 1
		}
		fmt.Printf("set %s, restart the service to apply\n", key)
		return 0

	case *validate:
		if err := config.Validate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "homepi: %v\n", err)
			return 1
		}
		fmt.Println("configuration ok")
		return 0

	case *reload:
		fmt.Fprintln(os.Stderr, "homepi: configuration is read at startup; restart the service to apply changes")
		return 1

	default:
		fs.Usage()
		return 2
	}
}

// lookupYAMLPath reads a dotted key ("tts.cache_dir") from the raw file, so
// --get reflects what is written rather than the defaulted view.
func lookupYAMLPath(path, key string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	var cur any = doc
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config: %q has no key %q", key, part)
		}
		cur, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("config: %q not set", key)
		}
	}
	return cur, nil
}

// setYAMLPath writes value at a dotted key in the file, creating
// intermediate maps as needed. The value is parsed as YAML so numbers and
// booleans keep their types.
func setYAMLPath(path, key, value string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}

	parts := strings.Split(key, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = parsed

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	// Verify the result still loads before replacing the file.
	if _, err := config.LoadFromReader(strings.NewReader(string(out))); err != nil {
		return fmt.Errorf("config: rejected %s=%s: %w", key, value, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
