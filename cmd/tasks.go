package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sitesmith/internal/build"
	"github.com/conneroisu/sitesmith/internal/logging"
)

var tasksFormat string

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List every task and its prerequisites",
	Long: `List the declared tasks in declaration order with their descriptions and
direct prerequisites.

Examples:
  sitesmith tasks
  sitesmith tasks -o json
  sitesmith tasks -o yaml`,
	Aliases: []string{"t"},
	Args:    cobra.NoArgs,
	RunE:    runListTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)

	tasksCmd.Flags().StringVarP(&tasksFormat, "output", "o", "table", "Output format (table, json, yaml)")
}

// TaskInfo describes one task for listing.
type TaskInfo struct {
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"`
	Group         bool     `json:"group" yaml:"group"`
}

func runListTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, err := build.New(cfg, build.WithLogger(logging.NopLogger{}))
	if err != nil {
		return err
	}

	graph := orch.Graph()
	infos := make([]TaskInfo, 0, graph.Len())
	for _, name := range graph.Names() {
		task, _ := graph.Task(name)
		infos = append(infos, TaskInfo{
			Name:          task.Name,
			Description:   task.Description,
			Prerequisites: task.Prerequisites,
			Group:         task.IsGroup(),
		})
	}

	return writeTasks(cmd.OutOrStdout(), tasksFormat, infos)
}

func writeTasks(w io.Writer, format string, infos []TaskInfo) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(infos)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(infos); err != nil {
			return err
		}
		return encoder.Close()
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TASK\tPREREQUISITES\tDESCRIPTION")
		for _, info := range infos {
			prereqs := strings.Join(info.Prerequisites, ", ")
			if prereqs == "" {
				prereqs = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, prereqs, info.Description)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json, yaml)", format)
	}
}
