package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/josh-kwaku/agency-ledger/internal/app"
	"github.com/josh-kwaku/agency-ledger/internal/domain"
)

// chartFile is the YAML layout accepted by "chart seed":
//
//	accounts:
//	  - code: "1.1.03"
//	    name: Accounts Receivable
//	    category: ASSET
//	    subcategory: CURRENT
//	    parent: "1.1"
//	    active: true
type chartFile struct {
	Accounts []chartEntry `yaml:"accounts"`
}

type chartEntry struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Subcategory string `yaml:"subcategory"`
	Parent      string `yaml:"parent"`
	Active      *bool  `yaml:"active"`
}

// parseChart decodes and checks a chart file. Parents must be listed
// before their children.
func parseChart(r io.Reader) ([]chartEntry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f chartFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("chart file is empty")
		}
		return nil, fmt.Errorf("parsing chart: %w", err)
	}
	if len(f.Accounts) == 0 {
		return nil, errors.New("chart file has no accounts")
	}

	seen := make(map[string]bool, len(f.Accounts))
	for i, e := range f.Accounts {
		switch {
		case e.Code == "":
			return nil, fmt.Errorf("account %d: code is required", i+1)
		case e.Name == "":
			return nil, fmt.Errorf("account %s: name is required", e.Code)
		case !domain.ChartCategory(e.Category).IsValid():
			return nil, fmt.Errorf("account %s: unknown category %q", e.Code, e.Category)
		case seen[e.Code]:
			return nil, fmt.Errorf("account %s: listed twice", e.Code)
		case e.Parent != "" && !seen[e.Parent]:
			return nil, fmt.Errorf("account %s: parent %s must be listed before it", e.Code, e.Parent)
		}
		seen[e.Code] = true
	}
	return f.Accounts, nil
}

func (e chartEntry) toDomain(parentID *uuid.UUID, now time.Time) *domain.ChartAccount {
	c := &domain.ChartAccount{
		ID:        uuid.New(),
		Code:      e.Code,
		Name:      e.Name,
		Category:  domain.ChartCategory(e.Category),
		ParentID:  parentID,
		IsActive:  e.Active == nil || *e.Active,
		CreatedAt: now,
	}
	if e.Subcategory != "" {
		sub := e.Subcategory
		c.Subcategory = &sub
	}
	return c
}

func newChartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Manage the chart of accounts",
	}
	cmd.AddCommand(newChartSeedCommand())
	return cmd
}

func newChartSeedCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create or update chart accounts from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("opening chart file: %w", err)
			}
			defer f.Close()

			entries, err := parseChart(f)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := seedChart(ctx, a, entries)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int{"upserted": n})
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to the chart YAML file (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// seedChart upserts every entry in one transaction.
func seedChart(ctx context.Context, a *app.App, entries []chartEntry) (int, error) {
	tx, err := a.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("seedChart: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	ids := make(map[string]uuid.UUID, len(entries))
	for _, e := range entries {
		var parentID *uuid.UUID
		if e.Parent != "" {
			pid := ids[e.Parent]
			parentID = &pid
		}
		id, err := a.Charts.Upsert(ctx, tx, e.toDomain(parentID, now))
		if err != nil {
			return 0, fmt.Errorf("seedChart: %s: %w", e.Code, err)
		}
		ids[e.Code] = id
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("seedChart: commit: %w", err)
	}
	return len(entries), nil
}
