package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/companion/internal/chat"
	"github.com/kalambet/companion/internal/config"
	"github.com/kalambet/companion/internal/notify"
	"github.com/kalambet/companion/internal/prefs"
	"github.com/kalambet/companion/internal/reminder"
	"github.com/kalambet/companion/internal/topics"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message to the assistant",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/chat", map[string]string{"message": message})
		if err != nil {
			return err
		}

		var reply chat.Message
		if err := decodeJSON(resp, &reply); err != nil {
			return err
		}

		fmt.Println(reply.Content)
		return nil
	},
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversation sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/sessions")
		if err != nil {
			return err
		}
		var sessions []chat.Session
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		current := ""
		if resp, err := client.get(cmd.Context(), "/sessions/current"); err == nil {
			var sess chat.Session
			if decodeJSON(resp, &sess) == nil {
				current = sess.ID
			}
		}

		if len(sessions) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		for _, s := range sessions {
			marker := " "
			if s.ID == current {
				marker = colorize(colorGreen, "*")
			}
			fmt.Printf("%s %s  %s  (%d messages, updated %s)\n",
				marker, s.ID, colorize(colorBold, s.Title), len(s.Messages), s.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Start a new conversation session",
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sessions", map[string]string{"title": title})
		if err != nil {
			return err
		}
		var sess chat.Session
		if err := decodeJSON(resp, &sess); err != nil {
			return err
		}

		printSuccess("Started session %s (%s)", sess.ID, sess.Title)
		return nil
	},
}

var sessionsSwitchCmd = &cobra.Command{
	Use:   "switch <id>",
	Short: "Make an existing session the current one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/sessions/"+args[0]+"/activate", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Switched to session %s", args[0])
		return nil
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/sessions/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted session %s", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsSwitchCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)
}

// --- remind ---

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Manage reminders",
}

var remindAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a reminder",
	Long: `Create a reminder.

Examples:
  companion remind add "Team standup" --at 2026-09-01T09:30:00Z
  companion remind add "Stretch" --in 45m --description "Back exercises"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args, " ")
		at, _ := cmd.Flags().GetString("at")
		in, _ := cmd.Flags().GetString("in")
		description, _ := cmd.Flags().GetString("description")

		var dueAt time.Time
		switch {
		case at != "":
			t, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("invalid --at value %q (want RFC 3339): %w", at, err)
			}
			dueAt = t
		case in != "":
			d, err := time.ParseDuration(in)
			if err != nil {
				return fmt.Errorf("invalid --in value %q (want a duration like 45m): %w", in, err)
			}
			dueAt = time.Now().Add(d)
		default:
			return fmt.Errorf("one of --at or --in is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/reminders", map[string]any{
			"title":       title,
			"description": description,
			"datetime":    dueAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		var rem reminder.Reminder
		if err := decodeJSON(resp, &rem); err != nil {
			return err
		}

		printSuccess("Reminder %s due %s", rem.ID, rem.DueAt.Local().Format("2006-01-02 15:04"))
		return nil
	},
}

var remindListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reminders (pending first)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/reminders")
		if err != nil {
			return err
		}
		var reminders []reminder.Reminder
		if err := decodeJSON(resp, &reminders); err != nil {
			return err
		}

		if len(reminders) == 0 {
			fmt.Println("no reminders")
			return nil
		}
		for _, r := range reminders {
			state := colorize(colorYellow, "pending")
			if r.Completed {
				state = colorize(colorGreen, "done   ")
			}
			fmt.Printf("%s  %s  %s  %s\n", r.ID, state, r.DueAt.Local().Format("2006-01-02 15:04"), r.Title)
		}
		return nil
	},
}

var remindDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a reminder as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/reminders/"+args[0]+"/complete", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Completed reminder %s", args[0])
		return nil
	},
}

var remindRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a reminder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/reminders/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted reminder %s", args[0])
		return nil
	},
}

func init() {
	remindAddCmd.Flags().String("at", "", "absolute due time (RFC 3339)")
	remindAddCmd.Flags().String("in", "", "relative due time (Go duration, e.g. 45m)")
	remindAddCmd.Flags().String("description", "", "additional details")
	remindCmd.AddCommand(remindAddCmd)
	remindCmd.AddCommand(remindListCmd)
	remindCmd.AddCommand(remindDoneCmd)
	remindCmd.AddCommand(remindRmCmd)
}

// --- notifications ---

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "Show notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/notifications")
		if err != nil {
			return err
		}
		var notifications []notify.Notification
		if err := decodeJSON(resp, &notifications); err != nil {
			return err
		}

		if len(notifications) == 0 {
			fmt.Println("no notifications")
			return nil
		}
		for _, n := range notifications {
			marker := colorize(colorCyan, "●")
			if n.Read {
				marker = " "
			}
			fmt.Printf("%s %s  [%s]  %s: %s\n", marker, n.ID, n.Kind, colorize(colorBold, n.Title), n.Message)
		}
		return nil
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Mark one notification read, or all with no argument",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/notifications/read-all"
		if len(args) == 1 {
			path = "/notifications/" + args[0] + "/read"
		}
		resp, err := client.post(cmd.Context(), path, nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Marked read")
		return nil
	},
}

var notificationsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/notifications")
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Notifications cleared")
		return nil
	},
}

func init() {
	notificationsCmd.AddCommand(notificationsReadCmd)
	notificationsCmd.AddCommand(notificationsClearCmd)
}

// --- topics ---

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Show conversation topics by frequency",
	RunE: func(cmd *cobra.Command, args []string) error {
		trending, _ := cmd.Flags().GetBool("trending")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/topics"
		if trending {
			path = "/topics/trending"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var ts []topics.Topic
		if err := decodeJSON(resp, &ts); err != nil {
			return err
		}

		if len(ts) == 0 {
			fmt.Println("no topics yet")
			return nil
		}
		for _, t := range ts {
			fmt.Printf("%s  %s\n", colorize(colorBold, fmt.Sprintf("%3d×", t.Count)), t.Name)
		}
		return nil
	},
}

func init() {
	topicsCmd.Flags().Bool("trending", false, "only topics active in the last 7 days")
}

// --- prefs ---

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or update preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/preferences")
		if err != nil {
			return err
		}
		var p prefs.Preferences
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		b, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update preference fields",
	Long: `Update preference fields. Unset flags keep their current value.

Examples:
  companion prefs set --name Sam --location Lisbon
  companion prefs set --interests "cooking,travel" --notifications=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/preferences")
		if err != nil {
			return err
		}
		var p prefs.Preferences
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		if cmd.Flags().Changed("name") {
			p.Name, _ = cmd.Flags().GetString("name")
		}
		if cmd.Flags().Changed("location") {
			p.Location, _ = cmd.Flags().GetString("location")
		}
		if cmd.Flags().Changed("language") {
			p.Language, _ = cmd.Flags().GetString("language")
		}
		if cmd.Flags().Changed("interests") {
			raw, _ := cmd.Flags().GetString("interests")
			var interests []string
			for _, i := range strings.Split(raw, ",") {
				if i = strings.TrimSpace(i); i != "" {
					interests = append(interests, i)
				}
			}
			p.Interests = interests
		}
		if cmd.Flags().Changed("notifications") {
			p.NotificationsEnabled, _ = cmd.Flags().GetBool("notifications")
		}
		if cmd.Flags().Changed("autosave") {
			p.AutoSave, _ = cmd.Flags().GetBool("autosave")
		}

		resp, err = client.put(cmd.Context(), "/preferences", p)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		printSuccess("Preferences updated")
		return nil
	},
}

func init() {
	prefsSetCmd.Flags().String("name", "", "display name")
	prefsSetCmd.Flags().String("location", "", "home city for weather")
	prefsSetCmd.Flags().String("language", "", "preferred language code")
	prefsSetCmd.Flags().String("interests", "", "comma-separated interests")
	prefsSetCmd.Flags().Bool("notifications", true, "enable notifications")
	prefsSetCmd.Flags().Bool("autosave", true, "enable conversation auto-save")
	prefsCmd.AddCommand(prefsSetCmd)
}

// --- weather ---

var weatherCmd = &cobra.Command{
	Use:   "weather [city]",
	Short: "Show current weather and a clothing suggestion",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/weather"
		if len(args) == 1 {
			path += "?city=" + url.QueryEscape(args[0])
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var result struct {
			City   string `json:"city"`
			Report struct {
				Temp        int     `json:"temp"`
				Description string  `json:"description"`
				Humidity    int     `json:"humidity"`
				WindSpeed   float64 `json:"windSpeed"`
			} `json:"report"`
			Suggestion string `json:"suggestion"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Printf("%s: %d°C, %s (humidity %d%%, wind %.1f m/s)\n",
			colorize(colorBold, result.City), result.Report.Temp, result.Report.Description,
			result.Report.Humidity, result.Report.WindSpeed)
		fmt.Println(result.Suggestion)
		return nil
	},
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export or purge stored data",
}

var dataExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all stored data as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/data/export")
		if err != nil {
			return err
		}
		var export map[string]json.RawMessage
		if err := decodeJSON(resp, &export); err != nil {
			return err
		}

		b, err := json.MarshalIndent(export, "", "  ")
		if err != nil {
			return err
		}

		if output == "" {
			fmt.Println(string(b))
			return nil
		}
		if err := os.WriteFile(output, b, 0o600); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		printSuccess("Data exported to %s", output)
		return nil
	},
}

var dataPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all stored data",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL stored data. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/data")
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("All data purged")
		return nil
	},
}

func init() {
	dataExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	dataPurgeCmd.Flags().Bool("confirm", false, "confirm data purge")
	dataCmd.AddCommand(dataExportCmd)
	dataCmd.AddCommand(dataPurgeCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
