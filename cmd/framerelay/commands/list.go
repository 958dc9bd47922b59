package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bryanchriswhite/FrameRelay/internal/window"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List capturable windows",
	Long: `List the X11 windows FrameRelay can capture.

Use the ID column with 'serve --window' or 'config set source.window_id'.`,
	Example: `  # List windows in table format (default)
  framerelay list

  # List windows in JSON format
  framerelay list --format json

  # Show the currently focused window
  framerelay list --current`,
	RunE: runList,
}

var (
	listFormat  string
	listCurrent bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().BoolVarP(&listCurrent, "current", "c", false, "show current focused window")
}

func runList(cmd *cobra.Command, args []string) error {
	windowMgr, err := window.NewManager()
	if err != nil {
		return fmt.Errorf("failed to connect to X11: %w", err)
	}
	defer windowMgr.Close()

	var windows []*window.WindowInfo
	if listCurrent {
		focused, err := windowMgr.FocusedWindow()
		if err != nil {
			return err
		}
		windows = []*window.WindowInfo{focused}
	} else {
		windows, err = windowMgr.ListWindows()
		if err != nil {
			return fmt.Errorf("failed to list windows: %w", err)
		}
	}

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(windows)
	case "table":
		return printWindowTable(windows)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}
}

func printWindowTable(windows []*window.WindowInfo) error {
	if len(windows) == 0 {
		fmt.Println("No windows found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCLASS\tSIZE\tPID\tFOCUSED\tTITLE")
	for _, win := range windows {
		focused := ""
		if win.Focused {
			focused = "*"
		}
		fmt.Fprintf(w, "%#x\t%s\t%dx%d\t%d\t%s\t%s\n",
			win.ID, win.Class, win.Geometry.Width, win.Geometry.Height, win.PID, focused, win.Title)
	}
	return w.Flush()
}
