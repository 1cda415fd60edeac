// SPDX-License-Identifier: LGPL-3.0-or-later

// Command agentrpc-client dials a Session Manager over WebSocket, performs
// the handshake (and optional auth), and invokes a single method. Grounded
// on the teacher's cmd/sage-crypto root-command shape and rpcclient's
// Connect/Invoke pair.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/agentrpc/rpcclient"
	"github.com/sage-x-project/agentrpc/transport"
	"github.com/sage-x-project/agentrpc/wire"
)

var (
	serverURL   string
	serviceName string
	methodName  string
	oneWay      bool
	encryptMsgs bool
	bearerToken string
	argPairs    []string
)

var rootCmd = &cobra.Command{
	Use:   "agentrpc-client",
	Short: "agentrpc demo session client",
}

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "connect and invoke one method",
	RunE:  runCall,
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVar(&serverURL, "addr", "ws://127.0.0.1:8765/rpc", "server websocket URL")
	callCmd.Flags().StringVar(&serviceName, "service", "echo", "service name")
	callCmd.Flags().StringVar(&methodName, "method", "Echo", "method name")
	callCmd.Flags().BoolVar(&oneWay, "one-way", false, "send as a one-way call")
	callCmd.Flags().BoolVar(&encryptMsgs, "encrypt", false, "negotiate an encrypted session")
	callCmd.Flags().StringVar(&bearerToken, "token", "", "bearer token credential for auth")
	callCmd.Flags().StringArrayVar(&argPairs, "arg", nil, "name=jsonvalue parameter, repeatable")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCall(cmd *cobra.Command, args []string) error {
	params, err := parseParams(argPairs)
	if err != nil {
		return err
	}

	var creds [][]byte
	if bearerToken != "" {
		creds = [][]byte{[]byte(bearerToken)}
	}

	client, err := rpcclient.New(rpcclient.Config{
		MessageEncryption: encryptMsgs,
		Credentials:       creds,
	})
	if err != nil {
		return fmt.Errorf("rpcclient.New: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := client.Connect(ctx, transport.NewWSTransport(serverURL)); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Disconnect(context.Background())

	result, err := client.Invoke(ctx, serviceName, methodName, params, oneWay)
	if err != nil {
		return fmt.Errorf("invoke: %w", err)
	}
	if result == nil {
		fmt.Println("ok (one-way call, no result)")
		return nil
	}
	fmt.Printf("%s\n", string(result.ReturnValue))
	return nil
}

// parseParams turns "name=jsonvalue" pairs into scalar MethodCallParameters.
// A value that is not valid JSON is treated as a bare string.
func parseParams(pairs []string) ([]wire.MethodCallParameter, error) {
	params := make([]wire.MethodCallParameter, 0, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --arg %q, expected name=value", pair)
		}

		var value json.RawMessage
		if json.Valid([]byte(raw)) {
			value = json.RawMessage(raw)
		} else {
			encoded, err := json.Marshal(raw)
			if err != nil {
				return nil, fmt.Errorf("encode --arg %q: %w", pair, err)
			}
			value = json.RawMessage(encoded)
		}

		params = append(params, wire.MethodCallParameter{Name: name, Kind: wire.ParamScalar, Value: value})
	}
	return params, nil
}
