package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"habitcore/internal/core"
	"habitcore/pkg/domain"
)

// protocolFile is the YAML shape accepted by create --file.
//
//	title: Morning
//	days: 30
//	startDate: 2024-01-01
//	refreshTime: "04:00"
//	routine:
//	  - text: Read
//	  - text: Stretch
//	    time: "07:00"
type protocolFile struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Days        int    `yaml:"days"`
	StartDate   string `yaml:"startDate"`
	RefreshTime string `yaml:"refreshTime"`
	Routine     []struct {
		ID   string `yaml:"id"`
		Text string `yaml:"text"`
		Time string `yaml:"time"`
	} `yaml:"routine"`
}

func (f protocolFile) draft() (core.ProtocolDraft, error) {
	draft := core.ProtocolDraft{
		Title:       f.Title,
		Description: f.Description,
		TotalDays:   f.Days,
	}
	if f.StartDate != "" {
		start, err := domain.ParseDate(f.StartDate)
		if err != nil {
			return core.ProtocolDraft{}, err
		}
		draft.StartDate = &start
	}
	if f.RefreshTime != "" {
		offset, err := domain.ParseTimeOfDay(f.RefreshTime)
		if err != nil {
			return core.ProtocolDraft{}, err
		}
		draft.RolloverOffset = offset
	}
	for i, item := range f.Routine {
		at, err := optionalTime(item.Time)
		if err != nil {
			return core.ProtocolDraft{}, fmt.Errorf("routine[%d]: %w", i, err)
		}
		draft.Routine = append(draft.Routine, domain.RoutineItem{ID: item.ID, Text: item.Text, Time: at})
	}
	return draft, nil
}

func readProtocolFile(r io.Reader) (protocolFile, error) {
	var f protocolFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return protocolFile{}, fmt.Errorf("parse protocol file: %w", err)
	}
	return f, nil
}

var (
	createFile  string
	createTitle string
	createDays  int
	createItems []string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a protocol",
	Long: `Creates a protocol from a YAML file (--file, "-" for stdin) or from flags.

  habitctl create --title Morning --days 30 --item Read --item "07:00 Stretch"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			draft core.ProtocolDraft
			err   error
		)
		if createFile != "" {
			draft, err = draftFromFile(cmd, createFile)
		} else {
			draft, err = draftFromFlags()
		}
		if err != nil {
			return err
		}
		p, res, err := svc.CreateProtocol(cmd.Context(), draft)
		if err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), res)
		fmt.Fprintln(cmd.OutOrStdout(), p.ID)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "YAML protocol definition")
	createCmd.Flags().StringVar(&createTitle, "title", "", "protocol title")
	createCmd.Flags().IntVar(&createDays, "days", 0, "number of days")
	createCmd.Flags().StringArrayVar(&createItems, "item", nil, `routine item, optionally prefixed with a time ("07:00 Stretch")`)
}

func draftFromFile(cmd *cobra.Command, path string) (core.ProtocolDraft, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return core.ProtocolDraft{}, err
		}
		defer f.Close()
		r = f
	}
	pf, err := readProtocolFile(r)
	if err != nil {
		return core.ProtocolDraft{}, err
	}
	return pf.draft()
}

func draftFromFlags() (core.ProtocolDraft, error) {
	draft := core.ProtocolDraft{Title: createTitle, TotalDays: createDays}
	for _, raw := range createItems {
		item := domain.RoutineItem{Text: raw}
		if head, rest, ok := strings.Cut(raw, " "); ok {
			if t, err := domain.ParseTimeOfDay(head); err == nil {
				item.Text = rest
				item.Time = &t
			}
		}
		draft.Routine = append(draft.Routine, item)
	}
	return draft, nil
}
