// Command tokengen creates an admin token for the audit API together with the
// bcrypt hash to put in AUDIT_ADMIN_TOKEN_HASH.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/bcrypt"

	"audittrail/pkg/secrets"
)

type tokenOutput struct {
	Token string            `json:"token,omitempty"`
	Hash  string            `json:"hash"`
	Usage map[string]string `json:"usage"`
}

func main() {
	fs := flag.NewFlagSet("tokengen", flag.ExitOnError)
	token := fs.String("token", "", "hash this token instead of generating one")
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	jsonOut := fs.Bool("json", false, "output as JSON")
	_ = fs.Parse(os.Args[1:])

	out, err := generate(*token, *cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tokengen:", err)
		os.Exit(1)
	}
	if err := write(os.Stdout, out, *jsonOut); err != nil {
		fmt.Fprintln(os.Stderr, "tokengen:", err)
		os.Exit(1)
	}
}

func generate(token string, cost int) (tokenOutput, error) {
	generated := token == ""
	if generated {
		var err error
		if token, err = secrets.Generate(); err != nil {
			return tokenOutput{}, err
		}
	}
	hash, err := secrets.Hash(token, cost)
	if err != nil {
		return tokenOutput{}, err
	}

	out := tokenOutput{
		Hash: hash,
		Usage: map[string]string{
			"env":    "AUDIT_ADMIN_TOKEN_HASH='" + hash + "'",
			"header": "X-Admin-Token: " + token,
		},
	}
	if generated {
		out.Token = token
	}
	return out, nil
}

func write(w io.Writer, out tokenOutput, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	if out.Token != "" {
		fmt.Fprintf(w, "Token: %s\n", out.Token)
	}
	fmt.Fprintf(w, "Hash:  %s\n\n", out.Hash)
	fmt.Fprintln(w, "Server:")
	fmt.Fprintf(w, "  export %s\n", out.Usage["env"])
	fmt.Fprintln(w, "Client:")
	_, err := fmt.Fprintf(w, "  curl -H %q http://localhost:8080/audit/events\n", out.Usage["header"])
	return err
}
