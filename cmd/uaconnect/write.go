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
	"strconv"
	"strings"
	"time"

	"github.com/edgeo-scada/uaconnect"
	"github.com/spf13/cobra"
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write a value to an OPC UA node",
	Long: `Write the value attribute of an OPC UA node.

Examples:
  uaconnect write -e opc.tcp://localhost:4840 -n "ns=2;i=1" --value 42 --type int32
  uaconnect write -e opc.tcp://localhost:4840 -n "ns=2;s=Setpoint" --value 21.5 --type double
  uaconnect write -e opc.tcp://localhost:4840 -n "ns=2;s=Enabled" --value true --type bool`,
	RunE: runWrite,
}

var (
	writeNodeID    string
	writeValue     string
	writeValueType string
)

func init() {
	writeCmd.Flags().StringVarP(&writeNodeID, "node", "n", "", "Node ID to write")
	writeCmd.Flags().StringVar(&writeValue, "value", "", "Value to write")
	writeCmd.Flags().StringVar(&writeValueType, "type", "string", "Value type: bool, int16, int32, int64, uint16, uint32, uint64, float, double, string")
	writeCmd.MarkFlagRequired("node")
	writeCmd.MarkFlagRequired("value")
}

func runWrite(cmd *cobra.Command, args []string) error {
	node, err := uaconnect.ParseNodeID(writeNodeID)
	if err != nil {
		return fmt.Errorf("invalid node ID %q: %w", writeNodeID, err)
	}

	value, err := parseValue(writeValue, writeValueType)
	if err != nil {
		return err
	}

	conn, err := connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Millisecond)
	defer cancel()

	if err := conn.Write(ctx, node, value); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	fmt.Printf("Wrote %s to %s\n", value, node)
	return nil
}

func parseValue(s, typ string) (uaconnect.Variant, error) {
	switch strings.ToLower(typ) {
	case "bool", "boolean":
		v, err := strconv.ParseBool(s)
		if err != nil {
			return uaconnect.Variant{}, fmt.Errorf("invalid boolean %q", s)
		}
		return uaconnect.NewVariant(v), nil
	case "int16":
		v, err := strconv.ParseInt(s, 10, 16)
		if err != nil {
			return uaconnect.Variant{}, fmt.Errorf("invalid int16 %q", s)
		}
		return uaconnect.NewVariant(int16(v)), nil
	case "int32", "int":
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return uaconnect.Variant{}, fmt.Errorf("invalid int32 %q", s)
		}
		return uaconnect.NewVariant(int32(v)), nil
	case "int64":
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return uaconnect.Variant{}, fmt.Errorf("invalid int64 %q", s)
		}
		return uaconnect.NewVariant(v), nil
	case "uint16":
		v, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return uaconnect.Variant{}, fmt.Errorf("invalid uint16 %q", s)
		}
		return uaconnect.NewVariant(uint16(v)), nil
	case "uint32", "uint":
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return uaconnect.Variant{}, fmt.Errorf("invalid uint32 %q", s)
		}
		return uaconnect.NewVariant(uint32(v)), nil
	case "uint64":
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return uaconnect.Variant{}, fmt.Errorf("invalid uint64 %q", s)
		}
		return uaconnect.NewVariant(v), nil
	case "float", "float32":
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return uaconnect.Variant{}, fmt.Errorf("invalid float %q", s)
		}
		return uaconnect.NewVariant(float32(v)), nil
	case "double", "float64":
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return uaconnect.Variant{}, fmt.Errorf("invalid double %q", s)
		}
		return uaconnect.NewVariant(v), nil
	case "string":
		return uaconnect.NewVariant(s), nil
	default:
		return uaconnect.Variant{}, fmt.Errorf("unknown value type %q", typ)
	}
}
