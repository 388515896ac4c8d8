// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/edgeo-scada/uaconnect"
	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read values from OPC UA nodes",
	Long: `Read the value attribute of OPC UA nodes.

Examples:
  uaconnect read -e opc.tcp://localhost:4840 -n "ns=2;i=1"
  uaconnect read -e opc.tcp://localhost:4840 -n "ns=2;s=Temperature" -n "i=2258"`,
	RunE: runRead,
}

var readNodeIDs []string

func init() {
	readCmd.Flags().StringArrayVarP(&readNodeIDs, "node", "n", nil, "Node ID(s) to read (can specify multiple)")
	readCmd.MarkFlagRequired("node")
}

func runRead(cmd *cobra.Command, args []string) error {
	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Millisecond)
	defer cancel()

	for _, nodeIDStr := range readNodeIDs {
		node, err := uaconnect.ParseNodeID(nodeIDStr)
		if err != nil {
			return fmt.Errorf("invalid node ID %q: %w", nodeIDStr, err)
		}

		fmt.Printf("Node: %s\n", node)
		result, err := conn.Read(ctx, node)
		if err != nil {
			fmt.Printf("  Error: %v\n", err)
			continue
		}

		fmt.Printf("  Value: %v\n", result.Value.Value)
		fmt.Printf("  Type: %s\n", result.Value.Type)
		fmt.Printf("  Status: %s\n", result.StatusCode)
		if !result.SourceTimestamp.IsZero() {
			fmt.Printf("  SourceTimestamp: %s\n", result.SourceTimestamp.Format(time.RFC3339Nano))
		}
		if !result.ServerTimestamp.IsZero() {
			fmt.Printf("  ServerTimestamp: %s\n", result.ServerTimestamp.Format(time.RFC3339Nano))
		}
		fmt.Println()
	}

	return nil
}
