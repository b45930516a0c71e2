package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"smartsched/internal/app"
	"smartsched/internal/config"
	"smartsched/internal/model"
	"smartsched/internal/output"
	"smartsched/internal/storage"
)

// seedTask and seedEvent default Active to true when the field is omitted.
type seedTask struct {
	model.Task
	Active *bool `json:"active"`
}

type seedEvent struct {
	model.Event
	Active *bool `json:"active"`
}

type seedFile struct {
	Clients  []model.Client  `json:"clients"`
	Projects []model.Project `json:"projects"`
	Tasks    []seedTask      `json:"tasks"`
	Events   []seedEvent     `json:"events"`
}

// importSeed loads clients, projects, tasks and events from a YAML or JSON
// document into store. Records are validated before anything is written.
func importSeed(ctx context.Context, store storage.Store, name string, data []byte) (output.ImportSummary, error) {
	var sum output.ImportSummary
	raw, err := config.ToJSON(name, data)
	if err != nil {
		return sum, err
	}
	var seed seedFile
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return sum, fmt.Errorf("decode %s: %w", name, err)
	}

	tasks := make([]model.Task, 0, len(seed.Tasks))
	for i, st := range seed.Tasks {
		t := st.Task
		t.Active = st.Active == nil || *st.Active
		if t.ID == "" {
			t.ID = model.NewID()
		}
		if t.Status == "" {
			t.Status = model.StatusPending
		}
		if err := t.Validate(); err != nil {
			return sum, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		tasks = append(tasks, t)
	}
	events := make([]model.Event, 0, len(seed.Events))
	for i, se := range seed.Events {
		e := se.Event
		e.Active = se.Active == nil || *se.Active
		if e.ID == "" {
			e.ID = model.NewID()
		}
		if e.Source == "" {
			e.Source = model.SourceLocal
		}
		if err := e.Validate(); err != nil {
			return sum, fmt.Errorf("events[%d]: %w", i, err)
		}
		events = append(events, e)
	}

	for _, c := range seed.Clients {
		if c.ID == "" {
			c.ID = model.NewID()
		}
		if err := store.PutClient(ctx, c); err != nil {
			return sum, err
		}
		sum.Clients++
	}
	for _, p := range seed.Projects {
		if p.ID == "" {
			p.ID = model.NewID()
		}
		if err := store.PutProject(ctx, p); err != nil {
			return sum, err
		}
		sum.Projects++
	}
	for _, t := range tasks {
		if err := store.PutTask(ctx, t); err != nil {
			return sum, err
		}
		sum.Tasks++
	}
	for _, e := range events {
		if err := store.PutEvent(ctx, e); err != nil {
			return sum, err
		}
		sum.Events++
	}
	return sum, nil
}

// importCmd implements 'smartsched import'.
func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load clients, projects, tasks and events from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		Run: withApp(func(ctx context.Context, a *app.App, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			sum, err := importSeed(ctx, a.Store(), filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			printOutput(formatter.FormatImport(sum))
			return nil
		}),
	}
}

// listCmd implements 'smartsched list'.
func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active tasks by due date",
		Args:  cobra.NoArgs,
		Run: withApp(func(ctx context.Context, a *app.App, _ []string) error {
			tasks, err := a.Store().ListTasks(ctx)
			if err != nil {
				return err
			}
			printOutput(formatter.FormatTasks(tasks))
			return nil
		}),
	}
}
