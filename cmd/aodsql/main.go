// Command aodsql is a thin flag-based driver over pkg/engine: it loads a
// config, opens (or creates) a database at a data directory, runs one or
// more statements, and prints each result. It is deliberately not a REPL
// or a pretty-table frontend — those are out of scope per spec; see
// pkg/engine for the actual database.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aodsql/aodsql/pkg/config"
	"github.com/aodsql/aodsql/pkg/engine"
	"github.com/aodsql/aodsql/pkg/session"
)

func main() {
	var (
		dataDir    = flag.String("db", "./data", "Data directory for the database")
		configFile = flag.String("config", "", "Configuration file path (.yaml/.yml/.json)")
		queryText  = flag.String("query", "", "SQL statement to run")
		queryFile  = flag.String("file", "", "File of semicolon-separated SQL statements to run")
		checkpoint = flag.Bool("checkpoint", true, "Write a catalog checkpoint on clean exit")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v; using defaults\n", err)
		cfg = config.Default()
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	eng, openErr := engine.Open(cfg)
	if openErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", openErr)
		os.Exit(1)
	}
	defer func() {
		if *checkpoint {
			if err := eng.Checkpoint(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: checkpoint failed: %v\n", err)
			}
		}
		eng.Close()
	}()

	sess := eng.NewSession()
	ctx := context.Background()

	switch {
	case *queryText != "":
		runStatements(ctx, sess, []string{*queryText})
	case *queryFile != "":
		data, err := os.ReadFile(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: reading %s: %v\n", *queryFile, err)
			os.Exit(1)
		}
		runStatements(ctx, sess, splitStatements(string(data)))
	default:
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: reading stdin: %v\n", err)
			os.Exit(1)
		}
		runStatements(ctx, sess, splitStatements(string(data)))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitStatements breaks a semicolon-separated script into individual
// statements, dropping blank trailing fragments. It doesn't attempt to
// respect semicolons inside string literals; statements needing one
// belong in a single -query invocation instead.
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func runStatements(ctx context.Context, sess *session.Session, stmts []string) {
	exitCode := 0
	for _, sql := range stmts {
		res, err := sess.Submit(ctx, sql)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			exitCode = 1
			continue
		}
		printResult(res)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func printResult(res *session.Result) {
	if !res.IsQuery {
		fmt.Println(res.Status)
		return
	}
	cols := make([]string, len(res.Schema))
	for i, c := range res.Schema {
		cols[i] = c.Name
	}
	fmt.Println(strings.Join(cols, "\t"))
	for _, row := range res.Rows {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(parts, "\t"))
	}
}
