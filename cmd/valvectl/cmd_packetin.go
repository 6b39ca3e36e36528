package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/l2fabric/valved/pkg/valve"
)

func newPacketInCmd() *cobra.Command {
	var (
		dir            string
		dp             string
		inPort         int
		vid            int
		untagged       bool
		ethSrc, ethDst string
	)

	cmd := &cobra.Command{
		Use:   "packet-in",
		Short: "Feed one learning packet-in through the fabric",
		Long: `Connects every datapath under --dir, then dispatches a single
ACTION-reason packet-in on --dp/--in-port with the given source MAC, fanning
out to peer datapaths for stack-route learning exactly as the core would.

  valvectl packet-in --dir fixtures/2-switch-stack --dp dp1 --in-port 1 \
    --vid 100 --eth-src 00:00:00:00:00:01 --eth-dst ff:ff:ff:ff:ff:ff`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dep, err := loadDeployment(dir)
			if err != nil {
				return err
			}
			if _, ok := dep.arena.Valve(dp); !ok {
				return fmt.Errorf("%w: %s", errNotFound, dp)
			}

			src, err := net.ParseMAC(ethSrc)
			if err != nil {
				return fmt.Errorf("--eth-src: %w", err)
			}
			dst, err := net.ParseMAC(ethDst)
			if err != nil {
				return fmt.Errorf("--eth-dst: %w", err)
			}

			pkt := valve.PacketMeta{
				Reason:  valve.ReasonAction,
				InPort:  inPort,
				VID:     valve.VID(vid),
				HasVID:  !untagged,
				EthSrc:  src,
				EthDst:  dst,
				EthType: 0x0800,
			}

			now := time.Now()
			out, err := dep.arena.DispatchPacketIn(dp, now, pkt)
			if err != nil {
				return err
			}
			printMsgMap(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory of datapath fixture YAML files")
	cmd.Flags().StringVar(&dp, "dp", "", "datapath name the packet-in arrived on")
	cmd.Flags().IntVar(&inPort, "in-port", 0, "ingress port number")
	cmd.Flags().IntVar(&vid, "vid", 0, "VLAN ID (ignored if --untagged)")
	cmd.Flags().BoolVar(&untagged, "untagged", false, "packet arrived untagged")
	cmd.Flags().StringVar(&ethSrc, "eth-src", "", "source MAC address")
	cmd.Flags().StringVar(&ethDst, "eth-dst", "ff:ff:ff:ff:ff:ff", "destination MAC address")
	cmd.MarkFlagRequired("dir")
	cmd.MarkFlagRequired("dp")
	cmd.MarkFlagRequired("eth-src")

	return cmd
}
