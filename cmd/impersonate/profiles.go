package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/impersonate-engine/tlsprofile"
)

// profilesCmd lists the built-in impersonation profiles
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List built-in impersonation profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		styled := false
		if f, ok := out.(*os.File); ok {
			styled = term.IsTerminal(int(f.Fd()))
		}
		return listProfiles(out, tlsprofile.Names(), styled)
	},
}

func listProfiles(w io.Writer, names []string, styled bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "NAME\tFAMILY\tUSER AGENT"
	if styled {
		header = titleStyle.Render("NAME") + "\t" + titleStyle.Render("FAMILY") + "\t" + titleStyle.Render("USER AGENT")
	}
	fmt.Fprintln(tw, header)
	for _, name := range names {
		p, ok := tlsprofile.Lookup(name)
		if !ok {
			continue
		}
		display := p.Name
		if styled {
			display = profileStyle.Render(p.Name)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", display, p.Family, p.UserAgent())
	}
	return tw.Flush()
}
