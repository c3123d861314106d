package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"habitcore/pkg/domain"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List protocols",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		protocols, err := svc.ListProtocols(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(protocols) == 0 {
			fmt.Fprintln(out, "no protocols")
			return nil
		}
		w := newTable(out)
		fmt.Fprintln(w, "ID\tTITLE\tDAYS\tSTART\tCOMPLETED\tSTATE")
		for _, p := range protocols {
			state := domain.StateActive
			if p.IsCompleted() {
				state = domain.StateCompleted
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n", p.ID, p.Title, p.TotalDays, p.StartDate, len(p.CompletedDays()), state)
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <protocol-id>",
	Short: "Print a protocol as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := svc.GetProtocol(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

var toggleDay int

var toggleCmd = &cobra.Command{
	Use:   "toggle <protocol-id> <item-index>",
	Short: "Flip a routine item on the effective day",
	Long: `Flips the completion of a routine item. Without --day the effective day is
used; any other day is rejected because only the effective day is editable.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := parseIndex("item-index", args[1])
		if err != nil {
			return err
		}
		var (
			p   domain.Protocol
			res domain.Result
		)
		if cmd.Flags().Changed("day") {
			p, res, err = svc.ToggleItemOnDay(cmd.Context(), args[0], toggleDay, item)
		} else {
			p, res, err = svc.ToggleItem(cmd.Context(), args[0], item)
		}
		if err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), res)
		day := p.EffectiveDay(nowIn())
		if cmd.Flags().Changed("day") {
			day = toggleDay
		}
		row, _ := p.DayProgress(day)
		state := "pending"
		if item < len(row) && row[item] {
			state = "done"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "day %d: %q is %s\n", day, p.Routine[item].Text, state)
		return nil
	},
}

var addItemTime string

var addItemCmd = &cobra.Command{
	Use:   "add-item <protocol-id> <text>",
	Short: "Append an item to the routine",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := optionalTime(addItemTime)
		if err != nil {
			return err
		}
		item, res, err := svc.AddRoutineItem(cmd.Context(), args[0], args[1], at)
		if err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), res)
		fmt.Fprintf(cmd.OutOrStdout(), "added %s %q\n", item.ID, item.Text)
		return nil
	},
}

var removeItemCmd = &cobra.Command{
	Use:   "remove-item <protocol-id> <item-index>",
	Short: "Remove an item from the routine and every day",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex("item-index", args[1])
		if err != nil {
			return err
		}
		item, res, err := svc.RemoveRoutineItem(cmd.Context(), args[0], index)
		if err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), res)
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s %q\n", item.ID, item.Text)
		return nil
	},
}

var (
	overrideText string
	overrideTime string
)

var overrideCmd = &cobra.Command{
	Use:   "override <protocol-id> <day> <item-index>",
	Short: "Change an item's text or time for a single day",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := parseIndex("day", args[1])
		if err != nil {
			return err
		}
		item, err := parseIndex("item-index", args[2])
		if err != nil {
			return err
		}
		var patch domain.Override
		if cmd.Flags().Changed("text") {
			patch.Text = &overrideText
		}
		if patch.Time, err = optionalTime(overrideTime); err != nil {
			return err
		}
		if patch.IsEmpty() {
			return fmt.Errorf("override needs --text or --time")
		}
		resolved, res, err := svc.ApplyOverride(cmd.Context(), args[0], day, item, patch)
		if err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), res)
		fmt.Fprintf(cmd.OutOrStdout(), "day %d item %d: %s\n", day, item, describeItem(resolved))
		return nil
	},
}

var (
	settingsTitle       string
	settingsDescription string
	settingsRefresh     string
)

var settingsCmd = &cobra.Command{
	Use:   "settings <protocol-id>",
	Short: "Update title, description or refresh time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch domain.SettingsPatch
		if cmd.Flags().Changed("title") {
			patch.Title = &settingsTitle
		}
		if cmd.Flags().Changed("description") {
			patch.Description = &settingsDescription
		}
		if cmd.Flags().Changed("refresh-time") {
			t, err := domain.ParseTimeOfDay(settingsRefresh)
			if err != nil {
				return err
			}
			patch.RolloverOffset = &t
		}
		if patch.IsEmpty() {
			return fmt.Errorf("nothing to update")
		}
		p, res, err := svc.UpdateSettings(cmd.Context(), args[0], patch)
		if err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), res)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %q refresh %s\n", p.ID, p.Title, p.RolloverOffset)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <protocol-id>",
	Short: "Show progress statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := svc.GetAnalytics(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "state:          %s\n", snap.State)
		fmt.Fprintf(out, "day:            %d of %d\n", snap.EffectiveDay, snap.TotalDays)
		fmt.Fprintf(out, "completed:      %d (%d%%)\n", snap.CompletedCount, snap.ConsistencyPercent)
		fmt.Fprintf(out, "remaining:      %d\n", snap.DaysRemaining)
		fmt.Fprintf(out, "current streak: %d\n", snap.CurrentStreak)
		fmt.Fprintf(out, "longest streak: %d\n", snap.LongestStreak)
		if snap.TopHabit != nil {
			fmt.Fprintf(out, "top habit:      %s (%d)\n", snap.TopHabit.Text, snap.TopHabit.Count)
		}
		fmt.Fprintf(out, "calendar:       %s\n", calendarStrip(snap.DayCategories))
		return nil
	},
}

var agendaPending bool

var agendaCmd = &cobra.Command{
	Use:   "agenda <protocol-id>",
	Short: "List today's items in time order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agenda, err := svc.TodayAgenda(cmd.Context(), args[0], agendaPending)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "day %d\n", agenda.Day)
		for _, item := range agenda.Items {
			mark := " "
			if item.Done {
				mark = "x"
			}
			fmt.Fprintf(out, "[%s] %d %s\n", mark, item.Index, describeItem(item.ResolvedItem))
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <protocol-id>",
	Short: "Clear progress, overrides and history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, res, err := svc.ResetProtocol(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), res)
		fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", p.ID)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <protocol-id>",
	Short: "Delete a protocol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := svc.DeleteProtocol(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), res)
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var archivesCmd = &cobra.Command{
	Use:   "archives <protocol-id>",
	Short: "List archived snapshots of a protocol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archives, err := svc.ListArchives(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "KEY\tREASON\tARCHIVED\tBYTES")
		for _, a := range archives {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", a.Key, a.Reason, a.ArchivedAt.Format("2006-01-02 15:04:05"), a.SizeBytes)
		}
		return w.Flush()
	},
}

func init() {
	toggleCmd.Flags().IntVar(&toggleDay, "day", 0, "explicit day; must equal the effective day")
	addItemCmd.Flags().StringVar(&addItemTime, "time", "", "scheduled time (HH:mm)")
	overrideCmd.Flags().StringVar(&overrideText, "text", "", "replacement text for the day")
	overrideCmd.Flags().StringVar(&overrideTime, "time", "", "replacement time for the day (HH:mm)")
	settingsCmd.Flags().StringVar(&settingsTitle, "title", "", "new title")
	settingsCmd.Flags().StringVar(&settingsDescription, "description", "", "new description")
	settingsCmd.Flags().StringVar(&settingsRefresh, "refresh-time", "", "new refresh time (HH:mm)")
	agendaCmd.Flags().BoolVar(&agendaPending, "pending", false, "only show items not yet done")
}

func parseIndex(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ValidationError{Field: name, Reason: fmt.Sprintf("%q is not an integer", raw)}
	}
	return n, nil
}

func optionalTime(raw string) (*domain.TimeOfDay, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := domain.ParseTimeOfDay(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
