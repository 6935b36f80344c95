package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotside-studios/davi-ndef-viewer/ndef"
	"github.com/dotside-studios/davi-ndef-viewer/protocol"
	"github.com/dotside-studios/davi-ndef-viewer/view"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex|base64>...",
	Short: "Decode a raw NDEF message and print its records",
	Long: `Decode parses raw NDEF bytes, given as hex (separators allowed) or base64,
and prints each record the way the viewer shows it. Use --tlv for a tag
memory dump that starts with TLV blocks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tlv, _ := cmd.Flags().GetBool("tlv")
		msg, err := decodeMessage(strings.Join(args, " "), tlv)
		if err != nil {
			return err
		}
		printMessage(cmd.OutOrStdout(), msg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().Bool("tlv", false, "Input is tag memory; locate the NDEF TLV first")
}

func decodeMessage(input string, tlv bool) (ndef.Message, error) {
	data, err := protocol.DecodeBytes(input)
	if err != nil {
		return ndef.Message{}, fmt.Errorf("input: %w", err)
	}
	if tlv {
		if data, err = ndef.FindNDEFTLV(data); err != nil {
			return ndef.Message{}, err
		}
	}
	return ndef.ParseMessage(data)
}

func printMessage(w io.Writer, msg ndef.Message) {
	fmt.Fprintln(w, strings.TrimSpace(view.AlertTitle(msg)))
	for i, rv := range view.DescribeMessage(msg) {
		fmt.Fprintf(w, "\n[%d] %s (TNF %d)\n", i, rv.Label, rv.TNF)
		if rv.Type != "" {
			fmt.Fprintf(w, "    type:    %s\n", rv.Type)
		}
		if rv.ID != "" {
			fmt.Fprintf(w, "    id:      %s\n", rv.ID)
		}
		fmt.Fprintf(w, "    payload: %s\n", rv.Payload)
		if rv.Kind != "" {
			content := rv.Content
			if rv.Language != "" {
				content += " (" + rv.Language + ")"
			}
			fmt.Fprintf(w, "    %-8s %s\n", rv.Kind+":", content)
		}
	}
}
