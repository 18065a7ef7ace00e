package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"bpark-backend/internal/protocol"
)

func main() {
	app := &cli.App{
		Name:      "bparkctl",
		Usage:     "send one command to a parking server",
		ArgsUsage: "COMMAND [key=value ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "ws://localhost:5555/ws", EnvVars: []string{"BPARK_URL"}, Usage: "server websocket URL"},
			&cli.StringFlag{Name: "email", EnvVars: []string{"BPARK_EMAIL"}, Usage: "log in as this subscriber first"},
			&cli.StringFlag{Name: "password", EnvVars: []string{"BPARK_PASSWORD"}, Usage: "password for --email"},
			&cli.BoolFlag{Name: "force", Usage: "replace an existing session of the same subscriber"},
			&cli.DurationFlag{Name: "timeout", Value: protocol.DefaultTimeout, Usage: "per-request timeout"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("bparkctl failed")
	}
}

func run(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.ShowAppHelp(c)
	}
	command := strings.ToUpper(c.Args().First())
	args, err := parseArgs(c.Args().Tail())
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()
	client, err := protocol.Dial(dialCtx, c.String("url"), c.Duration("timeout"))
	if err != nil {
		return err
	}
	defer client.Close()

	if email := c.String("email"); email != "" {
		resp, err := client.Login(c.Context, email, c.String("password"), c.Bool("force"))
		if err != nil {
			return err
		}
		if resp.Answer != 200 {
			printPacket(resp)
			return cli.Exit("", 1)
		}
	}

	if command == protocol.CommandLogout {
		return client.Logout()
	}
	resp, err := client.Call(c.Context, command, args)
	if err != nil {
		return err
	}
	printPacket(resp)
	if resp.Answer >= 300 {
		return cli.Exit("", 1)
	}
	return nil
}

func parseArgs(pairs []string) (map[string]string, error) {
	args := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", kv)
		}
		args[key] = value
	}
	return args, nil
}

func printPacket(p protocol.Packet) {
	fmt.Printf("%s %d %s\n", p.Command, p.Answer, p.Description)

	keys := make([]string, 0, len(p.Args))
	for k := range p.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %s\n", k, p.Args[k])
	}

	if len(p.Table) == 0 {
		return
	}
	var columns []string
	for k := range p.Table[0] {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(columns, "\t"))
	for _, row := range p.Table {
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = row[col]
		}
		fmt.Fprintln(w, strings.Join(values, "\t"))
	}
	_ = w.Flush()
}
