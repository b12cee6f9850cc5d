// simctl is an operator CLI for a running worker's ops API.
//
// Usage:
//
//	simctl [-addr http://localhost:8080] status
//	simctl [-addr ...] advance [-n 5] [-expect-version 42]
//	simctl [-addr ...] reset
//	simctl [-addr ...] scan [-limit 100]
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "worker base URL")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	client := &http.Client{Timeout: 60 * time.Second}

	var err error
	switch args[0] {
	case "status":
		err = get(client, *addr+"/v1/tick")
	case "advance":
		fs := flag.NewFlagSet("advance", flag.ExitOnError)
		n := fs.Int("n", 1, "number of ticks to advance")
		expect := fs.Int64("expect-version", -1, "expected lock version (-1 to skip the check)")
		fs.Parse(args[1:])

		body := map[string]any{"ticks": *n}
		if *expect >= 0 {
			body["expected_lock_version"] = *expect
		}
		err = post(client, *addr+"/v1/tick/advance", body)
	case "reset":
		err = post(client, *addr+"/v1/tick/reset", nil)
	case "scan":
		fs := flag.NewFlagSet("scan", flag.ExitOnError)
		limit := fs.Int("limit", 100, "maximum issues to report")
		fs.Parse(args[1:])
		err = get(client, fmt.Sprintf("%s/v1/invariants?limit=%d", *addr, *limit))
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: simctl [-addr URL] status|advance|reset|scan [flags]")
}

func get(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func post(client *http.Client, url string, body any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := client.Post(url, "application/json", &buf)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

// printResponse pretty-prints the JSON body and maps non-2xx statuses to
// an error so the exit code reflects the outcome.
func printResponse(resp *http.Response) error {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s", resp.Status)
	}
	return nil
}
