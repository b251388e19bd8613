// go-fhmac
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-fhmac.
//
// go-fhmac is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-fhmac is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-fhmac; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ZaparooProject/go-fhmac/config"
	"github.com/ZaparooProject/go-fhmac/dh1cf"
	"github.com/ZaparooProject/go-fhmac/ie"
	"github.com/ZaparooProject/go-fhmac/pib"
	"github.com/spf13/cobra"
)

var (
	ieHeader    bool
	ieNames     []string
	ieFrameType string
)

var ieNameBits = map[string]ie.Bitmap{
	"fc":      ie.BitFC,
	"ut":      ie.BitUT,
	"rsl":     ie.BitRSL,
	"bt":      ie.BitBT,
	"us":      ie.BitUS,
	"bs":      ie.BitBS,
	"pan":     ie.BitPAN,
	"netname": ie.BitNetName,
	"panver":  ie.BitPANVer,
	"gtkhash": ie.BitGTKHash,
}

var ieCmd = &cobra.Command{
	Use:   "ie",
	Short: "Build and decode Wi-SUN information elements",
}

var ieDecodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a WISUN payload IE, or header IEs with --header",
	Example: `  fhctl ie decode 0b80084001...
  fhctl ie decode --header 052a0104000000`,
	Args: cobra.ExactArgs(1),
	RunE: runIEDecode,
}

var ieGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Build IEs from the configured attributes",
	Example: `  fhctl ie gen --ies us,bs,netname -c node.yaml
  fhctl ie gen --ies ut,bt --frame-type pan-config`,
	Args: cobra.NoArgs,
	RunE: runIEGen,
}

func init() {
	ieDecodeCmd.Flags().BoolVar(&ieHeader, "header", false, "Input holds header IEs")
	ieGenCmd.Flags().StringSliceVar(&ieNames, "ies", []string{"us"},
		"IEs to build: "+strings.Join(ieNameList(), ","))
	ieGenCmd.Flags().StringVar(&ieFrameType, "frame-type", "data", "Frame type stamped into the UT-IE")
	ieCmd.AddCommand(ieDecodeCmd, ieGenCmd)
	rootCmd.AddCommand(ieCmd)
}

func ieNameList() []string {
	names := make([]string, 0, len(ieNameBits))
	for name := range ieNameBits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseFrameType(name string) (ie.FrameType, error) {
	for ft := ie.FramePANAdvert; ft <= ie.FrameEAPOL; ft++ {
		if ft.String() == name {
			return ft, nil
		}
	}
	return 0, fmt.Errorf("unknown frame type %q", name)
}

// newCodec builds an offline codec over the configured plan and attributes.
func newCodec(cfg *config.Config) (*ie.Codec, error) {
	plan, err := cfg.Plan()
	if err != nil {
		return nil, err
	}
	store := pib.New(plan.NumChannels)
	if err := cfg.ApplyPIB(store); err != nil {
		return nil, err
	}
	return ie.NewCodec(ie.StaticSource{Store: store}, plan), nil
}

// buildIEs generates the named IEs. Header and payload IEs cannot be mixed.
func buildIEs(c *ie.Codec, names []string, ft ie.FrameType) ([]byte, error) {
	var bitmap ie.Bitmap
	for _, name := range names {
		bit, ok := ieNameBits[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown IE %q", name)
		}
		bitmap |= bit
	}
	if bitmap&ie.HeaderMask != 0 && bitmap&ie.PayloadMask != 0 {
		return nil, errors.New("header and payload IEs cannot be built together")
	}
	out := c.Gen(bitmap, ft, nil)
	if len(out) == 0 {
		return nil, errors.New("nothing to build")
	}
	return out, nil
}

type decodedIE struct {
	name   string
	detail string
}

// decodeIEs extracts every sub-IE it knows from data.
func decodeIEs(c *ie.Codec, data []byte, header bool) ([]decodedIE, error) {
	var out []decodedIE
	if header {
		for _, id := range []ie.HeaderID{ie.IDUT, ie.IDBT, ie.IDFC, ie.IDRSL} {
			v, err := c.ExtractHie(data, id)
			if err != nil {
				continue
			}
			out = append(out, decodedIE{name: id.String(), detail: describeIE(v)})
		}
	} else {
		ids := []ie.PayloadID{ie.IDUS, ie.IDBS, ie.IDPAN, ie.IDNetName, ie.IDPANVer, ie.IDGTKHash}
		for _, id := range ids {
			v, err := c.ExtractPie(data, id)
			if err != nil {
				continue
			}
			out = append(out, decodedIE{name: id.String(), detail: describeIE(v)})
		}
	}
	if len(out) == 0 {
		return nil, ie.ErrInvalidFormat
	}
	return out, nil
}

func describeSchedule(s ie.Schedule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "dwell=%dms func=%s", s.Dwell, s.ChannelFunc)
	if s.ChannelFunc == dh1cf.FunctionFixed {
		fmt.Fprintf(&b, " channel=%d", s.FixedChannel)
	}
	fmt.Fprintf(&b, " channels=%d drift=%d accuracy=%d", s.NumChannels, s.ClockDrift, s.TimingAccuracy)
	if n := dh1cf.ExcludedCount(s.ExcludeMask[:], s.NumChannels); n > 0 {
		fmt.Fprintf(&b, " excluded=%d", n)
	}
	return b.String()
}

func describeIE(v any) string {
	switch x := v.(type) {
	case ie.BroadcastSchedule:
		return fmt.Sprintf("interval=%dms bsi=%d %s", x.Interval, x.BSI, describeSchedule(x.Schedule))
	case ie.Schedule:
		return describeSchedule(x)
	case ie.PAN:
		return fmt.Sprintf("size=%d cost=%d parent_bsie=%t routing_method=%t eapol_ready=%t version=%d",
			x.Size, x.RoutingCost, x.UseParentBSIE, x.RoutingMethod, x.EAPOLReady, x.FANTPSVersion)
	case ie.NetName:
		return fmt.Sprintf("%q", string(x))
	case ie.PANVersion:
		return fmt.Sprintf("%d", uint16(x))
	case ie.GTKHashes:
		parts := make([]string, len(x))
		for i := range x {
			parts[i] = hex.EncodeToString(x[i][:])
		}
		return strings.Join(parts, " ")
	case ie.UT:
		return fmt.Sprintf("frame=%s ufsi=%d", x.FrameType, x.UFSI)
	case ie.BT:
		return fmt.Sprintf("slot=%d bfio=%dms", x.Slot, x.BFIO)
	case ie.FC:
		return fmt.Sprintf("tx=%d rx=%d", x.Tx, x.Rx)
	case ie.RSL:
		return fmt.Sprintf("%d", uint8(x))
	default:
		return fmt.Sprintf("%v", v)
	}
}

func runIEDecode(cmd *cobra.Command, args []string) error {
	data, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(args[0]), " ", ""))
	if err != nil {
		return fmt.Errorf("bad hex input: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	codec, err := newCodec(cfg)
	if err != nil {
		return err
	}
	decoded, err := decodeIEs(codec, data, ieHeader)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(decoded))
	for _, d := range decoded {
		rows = append(rows, []string{d.name, d.detail})
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"IE", "Content"}, rows))
	return nil
}

func runIEGen(cmd *cobra.Command, _ []string) error {
	ft, err := parseFrameType(ieFrameType)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	codec, err := newCodec(cfg)
	if err != nil {
		return err
	}
	out, err := buildIEs(codec, ieNames, ft)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(out))
	return nil
}
