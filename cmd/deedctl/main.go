package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultRPCEndpoint = "http://127.0.0.1:8080/rpc"

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var (
	rpcEndpoint = envOr("DEED_RPC_URL", defaultRPCEndpoint)
	rpcToken    = os.Getenv("DEED_RPC_TOKEN")
	rpcCall     = callRPC
	now         = time.Now
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args = parseGlobalFlags(args)
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	command, rest := args[0], args[1:]
	switch command {
	case "list":
		return runList(rest, stdout, stderr)
	case "deposit":
		return runFund("deposit", "escrow_depositEarnest", rest, stdout, stderr)
	case "contribute":
		return runFund("contribute", "escrow_contribute", rest, stdout, stderr)
	case "inspect":
		return runInspect(rest, stdout, stderr)
	case "approve":
		return runAssetCommand("approve", "escrow_approveSale", true, rest, stdout, stderr)
	case "finalize":
		return runAssetCommand("finalize", "escrow_finalizeSale", true, rest, stdout, stderr)
	case "cancel":
		return runAssetCommand("cancel", "escrow_cancelSale", true, rest, stdout, stderr)
	case "get":
		return runAssetCommand("get", "escrow_getListing", false, rest, stdout, stderr)
	case "balance":
		return runBalance(rest, stdout, stderr)
	case "events":
		return runEvents(rest, stdout, stderr)
	case "mint":
		return runMint(rest, stdout, stderr)
	case "approve-deed":
		return runApproveDeed(rest, stdout, stderr)
	case "owner":
		return runOwner(rest, stdout, stderr)
	case "token":
		return runToken(rest, stdout, stderr)
	case "keygen":
		return runKeygen(rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

// parseGlobalFlags consumes leading --rpc and --token flags.
func parseGlobalFlags(args []string) []string {
	for len(args) > 0 {
		arg := args[0]
		switch {
		case arg == "--rpc" && len(args) > 1:
			rpcEndpoint = args[1]
			args = args[2:]
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			args = args[1:]
		case arg == "--token" && len(args) > 1:
			rpcToken = args[1]
			args = args[2:]
		case strings.HasPrefix(arg, "--token="):
			rpcToken = strings.TrimPrefix(arg, "--token=")
			args = args[1:]
		default:
			return args
		}
	}
	return args
}

func usage() string {
	return strings.TrimSpace(`Usage:
  deedctl [--rpc URL] [--token JWT] <command> [flags]

Escrow commands:
  list          List a deed for sale (seller)
  deposit       Deposit earnest money (buyer)
  contribute    Contribute lender funds (lender)
  inspect       Record the inspection result (inspector)
  approve       Approve the sale (buyer, seller or lender)
  finalize      Complete the sale (seller)
  cancel        Cancel the sale (seller)
  get           Show a listing
  balance       Show the escrow balance or an identity balance
  events        Show the event log of a deed

Registry commands:
  mint          Mint a new deed
  approve-deed  Approve an operator for a deed
  owner         Show the owner of a deed

Credentials:
  token         Issue a development JWT for an identity
  keygen        Generate a keystore-encrypted identity key
`)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage of deedctl %s:\n", name)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func invoke(stdout, stderr io.Writer, method string, params interface{}, requireAuth bool) int {
	result, rpcErr, err := rpcCall(method, params, requireAuth)
	if err != nil {
		fmt.Fprintf(stderr, "RPC call failed: %v\n", err)
		return 1
	}
	if rpcErr != nil {
		fmt.Fprintf(stderr, "RPC error %d: %s\n", rpcErr.Code, rpcErr.Message)
		return 1
	}
	writeResult(stdout, result)
	return 0
}

func writeResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		_, _ = w.Write(result)
		fmt.Fprintln(w)
		return
	}
	pretty.WriteByte('\n')
	_, _ = w.Write(pretty.Bytes())
}

func callRPC(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	token := strings.TrimSpace(rpcToken)
	if requireAuth && token == "" {
		return nil, nil, fmt.Errorf("%s requires DEED_RPC_TOKEN or --token", method)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode RPC response (HTTP %d): %w", resp.StatusCode, err)
	}
	return rpcResp.Result, rpcResp.Error, nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
