package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/hoxforge/hox/internal/cache"
	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/task"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "tasks",
	Short:   "Create, list, and update tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCreate,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Mark a task closed",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskClose,
}

func init() {
	taskCreateCmd.Flags().String("id", "", "explicit task id (defaults to a slug of the title)")
	taskCreateCmd.Flags().String("type", string(task.TypeTask), "task type: bug, feature, task, epic, chore")
	taskCreateCmd.Flags().Int("priority", 2, "priority, 0 (highest) to 4 (lowest)")
	taskCreateCmd.Flags().String("description", "", "task description")
	taskCreateCmd.Flags().StringSlice("tags", nil, "comma-separated tags")
	taskCreateCmd.Flags().String("due", "", "due date, natural language or RFC3339 (e.g. \"next friday\", \"in 3 days\")")
	taskCreateCmd.Flags().String("defer", "", "defer-until date, natural language or RFC3339")

	taskListCmd.Flags().String("status", "", "filter by status")
	taskListCmd.Flags().String("assigned-agent", "", "filter by assigned agent")
	taskListCmd.Flags().Bool("ready", false, "show only ready tasks (open, unblocked, not deferred)")

	taskCmd.AddCommand(taskCreateCmd, taskListCmd, taskShowCmd, taskCloseCmd)
	rootCmd.AddCommand(taskCmd)
}

// parseWhen parses s as an absolute RFC3339 timestamp first, falling back
// to natural-language parsing (the convenience the spec's CLI layer is
// expected to offer on top of the authoritative on-disk RFC3339 form).
func parseWhen(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, time.Now())
	if err != nil {
		return nil, herr.Wrap(herr.KindParse, err, "parse date "+strings.TrimSpace(s))
	}
	if r == nil {
		return nil, herr.New(herr.KindParse, "could not understand date "+strings.TrimSpace(s))
	}
	t := r.Time
	return &t, nil
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	title := args[0]
	id, _ := cmd.Flags().GetString("id")
	typ, _ := cmd.Flags().GetString("type")
	priority, _ := cmd.Flags().GetInt("priority")
	description, _ := cmd.Flags().GetString("description")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	due, _ := cmd.Flags().GetString("due")
	deferUntil, _ := cmd.Flags().GetString("defer")

	if id == "" {
		id = slugify(title)
	}

	dueAt, err := parseWhen(due)
	if err != nil {
		return err
	}
	deferAt, err := parseWhen(deferUntil)
	if err != nil {
		return err
	}

	t := &task.Task{
		ID:          id,
		Title:       title,
		Description: description,
		Type:        task.Type(typ),
		Priority:    priority,
		Tags:        tags,
		DueAt:       dueAt,
		DeferUntil:  deferAt,
	}
	t.SetDefaults()
	if err := task.WriteTask(tasksDir(rootDir), t); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "created task %s\n", t.ID)
	return nil
}

func slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func runTaskList(cmd *cobra.Command, args []string) error {
	c, err := loadCache(rootDir)
	if err != nil {
		return err
	}

	status, _ := cmd.Flags().GetString("status")
	agent, _ := cmd.Flags().GetString("assigned-agent")
	ready, _ := cmd.Flags().GetBool("ready")

	var tasks []*task.Task
	if ready {
		tasks = c.Ready(cache.ReadyOptions{AssignedAgent: agent})
	} else {
		f := cache.Filter{AssignedAgent: agent}
		if status != "" {
			st := task.Status(status)
			f.Status = &st
		}
		tasks = c.List(f)
	}

	for _, t := range tasks {
		fmt.Fprintf(os.Stdout, "%-20s [%-11s] p%d %s\n", t.ID, t.Status, t.Priority, t.Title)
	}
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	c, err := loadCache(rootDir)
	if err != nil {
		return err
	}
	t, ok := c.Get(args[0])
	if !ok {
		return herr.NotFound("task", args[0])
	}
	fmt.Fprintf(os.Stdout, "id:              %s\n", t.ID)
	fmt.Fprintf(os.Stdout, "title:           %s\n", t.Title)
	fmt.Fprintf(os.Stdout, "type:            %s\n", t.Type)
	fmt.Fprintf(os.Stdout, "status:          %s\n", t.Status)
	fmt.Fprintf(os.Stdout, "priority:        %d\n", t.Priority)
	fmt.Fprintf(os.Stdout, "assigned_agent:  %s\n", t.AssignedAgent)
	if t.Description != "" {
		fmt.Fprintf(os.Stdout, "description:     %s\n", t.Description)
	}
	return nil
}

func runTaskClose(cmd *cobra.Command, args []string) error {
	dir := tasksDir(rootDir)
	t, err := task.ReadTask(dir + "/" + args[0] + ".json")
	if err != nil {
		return err
	}
	t.Status = task.StatusClosed
	t.UpdatedAt = time.Now()
	return task.WriteTask(dir, t)
}
