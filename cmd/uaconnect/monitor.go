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
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgeo-scada/uaconnect"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor OPC UA nodes for data changes",
	Long: `Register monitored items for OPC UA nodes and print data changes.
The connection survives server restarts; monitored items are restored
automatically after a reconnect.

Examples:
  uaconnect monitor -e opc.tcp://localhost:4840 -n "ns=2;i=1"
  uaconnect monitor -e opc.tcp://localhost:4840 -n "ns=2;s=Temperature" --sample 100
  uaconnect monitor -e opc.tcp://localhost:4840 -n "i=2253" -n "i=2254" --interval 1000`,
	RunE: runMonitor,
}

var (
	monitorNodeIDs  []string
	publishInterval int
	sampleInterval  int
	queueSize       uint32
)

func init() {
	monitorCmd.Flags().StringArrayVarP(&monitorNodeIDs, "node", "n", nil, "Node ID(s) to monitor (can specify multiple)")
	monitorCmd.Flags().IntVarP(&publishInterval, "interval", "i", 500, "Publishing interval in milliseconds")
	monitorCmd.Flags().IntVar(&sampleInterval, "sample", 250, "Sampling interval in milliseconds")
	monitorCmd.Flags().Uint32Var(&queueSize, "queue-size", 10, "Server-side notification queue size per item")
	monitorCmd.MarkFlagRequired("node")
}

// printCallback prints data changes and failures for one node.
type printCallback struct {
	node string
}

func (p *printCallback) Notify(node uaconnect.NodeID, value uaconnect.DataValue) {
	ts := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] %s = %v (%s)\n", ts, node, value.Value.Value, value.StatusCode)
}

func (p *printCallback) Failure(status uaconnect.StatusCode) {
	ts := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] %s monitoring interrupted: %s\n", ts, p.node, status)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	nodes := make([]uaconnect.NodeID, len(monitorNodeIDs))
	for i, nodeIDStr := range monitorNodeIDs {
		node, err := uaconnect.ParseNodeID(nodeIDStr)
		if err != nil {
			return fmt.Errorf("invalid node ID %q: %w", nodeIDStr, err)
		}
		nodes[i] = node
	}

	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetPublishingInterval("cli", time.Duration(publishInterval)*time.Millisecond)

	callbacks := make([]uaconnect.MonitoredItemCallback, len(nodes))
	for i, node := range nodes {
		callbacks[i] = &printCallback{node: node.String()}
		err := conn.AddMonitoredItem("cli", node, callbacks[i],
			uaconnect.WithSamplingInterval(time.Duration(sampleInterval)*time.Millisecond),
			uaconnect.WithQueueSize(queueSize),
		)
		if err != nil {
			return fmt.Errorf("registering %s: %w", node, err)
		}
	}

	fmt.Printf("Monitoring %d nodes (Ctrl+C to stop)...\n\n", len(nodes))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nReceived interrupt, stopping...")

	for i, node := range nodes {
		conn.RemoveMonitoredItem("cli", node, callbacks[i])
	}
	return nil
}
