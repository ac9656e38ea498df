package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/logging"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage blocking schedules",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add <website>",
	Short: "Block a website during a time window",
	Long: `Adds a schedule blocking <website> between the start and end.
Dates default to today. Use --all-day to block for whole days.`,
	Args: cobra.ExactArgs(1),
	RunE: runScheduleAdd,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules",
	RunE:  runScheduleList,
}

var scheduleEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a schedule",
	Long:  `Changes the fields given as flags; the others keep their current values.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleEdit,
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRemove,
}

var scheduleWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the schedule list whenever it changes",
	RunE:  runScheduleWatch,
}

// draftFlags are the schedule fields settable from the command line.
type draftFlags struct {
	website   string
	allDay    bool
	startDate string
	startTime string
	endDate   string
	endTime   string
	repeat    string
	repeatEnd string
}

var (
	addFlags  draftFlags
	editFlags draftFlags

	listActive   bool
	listUpcoming bool
)

func (f *draftFlags) register(cmd *cobra.Command, withWebsite bool) {
	if withWebsite {
		cmd.Flags().StringVar(&f.website, "website", "", "Website to block")
	}
	cmd.Flags().BoolVar(&f.allDay, "all-day", false, "Block for whole days")
	cmd.Flags().StringVar(&f.startDate, "start-date", "", "Start date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&f.startTime, "start", "", "Start time (HH:MM)")
	cmd.Flags().StringVar(&f.endDate, "end-date", "", "End date (YYYY-MM-DD, default start date)")
	cmd.Flags().StringVar(&f.endTime, "end", "", "End time (HH:MM)")
	cmd.Flags().StringVar(&f.repeat, "repeat", string(domain.RepeatNone), "none, daily, weekdays, weekly, monthly or yearly")
	cmd.Flags().StringVar(&f.repeatEnd, "repeat-end", "", "Last date of the repetition (YYYY-MM-DD)")
}

// apply overlays the flags that were set on cmd onto draft.
func (f *draftFlags) apply(cmd *cobra.Command, draft *domain.ScheduleDraft) {
	set := cmd.Flags().Changed
	if set("website") {
		draft.Website = f.website
	}
	if set("all-day") {
		draft.AllDay = f.allDay
	}
	if set("start-date") {
		draft.StartDate = f.startDate
	}
	if set("start") {
		draft.StartTime = f.startTime
	}
	if set("end-date") {
		draft.EndDate = f.endDate
	}
	if set("end") {
		draft.EndTime = f.endTime
	}
	if set("repeat") {
		draft.Repeat = domain.Repeat(f.repeat)
	}
	if set("repeat-end") {
		draft.RepeatEndDate = f.repeatEnd
	}
}

func init() {
	addFlags.register(scheduleAddCmd, false)
	editFlags.register(scheduleEditCmd, true)
	scheduleListCmd.Flags().BoolVar(&listActive, "active", false, "Only schedules blocking now")
	scheduleListCmd.Flags().BoolVar(&listUpcoming, "upcoming", false, "Only schedules that haven't started")

	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleEditCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)
	scheduleCmd.AddCommand(scheduleWatchCmd)
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp(logging.NewCLI(debug), true)
	if err != nil {
		return err
	}
	defer a.Close()

	today, _ := policy.LocalNow(time.Now())
	draft := domain.ScheduleDraft{
		Website:   args[0],
		StartDate: today,
		Repeat:    domain.RepeatNone,
	}
	addFlags.apply(cmd, &draft)
	if draft.EndDate == "" {
		draft.EndDate = draft.StartDate
	}

	s, err := a.repo.Add(cmd.Context(), draft)
	if err != nil {
		return err
	}
	fmt.Printf("Added schedule %d: %s, %s\n", s.ID, s.Website, policy.DescribeWindow(*s))
	warnIfNoDaemon(cmd.Context(), a)
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	if listActive && listUpcoming {
		return errors.New("--active and --upcoming are mutually exclusive")
	}

	a, err := openApp(logging.NewCLI(debug), false)
	if err != nil {
		return err
	}
	defer a.Close()

	schedules, err := a.repo.List(cmd.Context())
	if err != nil {
		return err
	}
	printSchedules(schedules, time.Now())
	return nil
}

func runScheduleEdit(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(logging.NewCLI(debug), true)
	if err != nil {
		return err
	}
	defer a.Close()

	current, err := a.repo.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	draft := current.Draft()
	editFlags.apply(cmd, &draft)

	s, err := a.repo.Update(cmd.Context(), id, draft)
	if err != nil {
		return err
	}
	fmt.Printf("Updated schedule %d: %s, %s\n", s.ID, s.Website, policy.DescribeWindow(*s))
	warnIfNoDaemon(cmd.Context(), a)
	return nil
}

func runScheduleRemove(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := openApp(logging.NewCLI(debug), true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.repo.Remove(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Removed schedule %d\n", id)
	return nil
}

func runScheduleWatch(cmd *cobra.Command, args []string) error {
	a, err := openApp(logging.NewCLI(debug), false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedules, err := a.repo.List(ctx)
	if err != nil {
		return err
	}
	printSchedules(schedules, time.Now())

	unsubscribe := a.repo.OnChange(func(schedules []domain.Schedule) {
		fmt.Printf("\n--- %s ---\n", time.Now().Format("15:04:05"))
		printSchedules(schedules, time.Now())
	})
	defer unsubscribe()

	a.store.Watch(ctx, a.cfg.Store.WatchInterval)
	return nil
}

// printSchedules writes one line per schedule, filtered by --active/--upcoming.
func printSchedules(schedules []domain.Schedule, now time.Time) {
	date, clock := policy.LocalNow(now)

	shown := 0
	for _, s := range schedules {
		active := policy.IsActive(s, date, clock)
		upcoming := policy.IsUpcoming(s, date, clock)
		if (listActive && !active) || (listUpcoming && !upcoming) {
			continue
		}
		shown++

		status := ""
		switch {
		case active:
			status = "blocking"
		case upcoming:
			status = policy.DescribeStart(s, now)
		}
		line := fmt.Sprintf("%-15d %-30s %s", s.ID, s.Website, policy.DescribeWindow(s))
		if label := policy.RepeatLabel(s.Repeat); label != "" {
			line += " · " + label
		}
		if status != "" {
			line += "  [" + status + "]"
		}
		fmt.Println(line)
	}

	if shown == 0 {
		fmt.Println("No schedules.")
	}
}

// warnIfNoDaemon tells the user the change won't take effect until the daemon runs.
func warnIfNoDaemon(ctx context.Context, a *app) {
	if _, err := a.client.Ping(ctx); errors.Is(err, domain.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "Note: daemon not running; run 'webmon start' to apply schedules.")
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid schedule id %q", arg)
	}
	return id, nil
}
