package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/station-console/station/internal/rooms"
	"github.com/station-console/station/internal/wire"
)

// RoomsCmd returns the rooms command group.
func RoomsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List, read and post to backend rooms",
	}
	cmd.AddCommand(roomsListCmd())
	cmd.AddCommand(roomsShowCmd())
	cmd.AddCommand(roomsSendCmd())
	cmd.AddCommand(roomsEnsureCmd())
	cmd.AddCommand(roomsRenameCmd())
	return cmd
}

func roomsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			list, err := app.Rooms.ListRooms(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No rooms.")
				return nil
			}
			for _, r := range list {
				fmt.Fprintf(out, "%-12s %s\n", r.ID, r.Title)
			}
			return nil
		},
	}
}

func roomsShowCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show [room_id]",
		Short: "Print a room's messages (default room when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			roomID := app.Rooms.Active()
			if len(args) == 1 {
				roomID = args[0]
			}
			msgs, err := app.Rooms.LoadMessages(cmd.Context(), roomID, limit)
			if err != nil {
				return err
			}
			printMessages(cmd, roomID, msgs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Messages to load (default --message-limit)")
	return cmd
}

func roomsSendCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "send <room_id> <text...>",
		Short: "Post a message to a room and print the refreshed log",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			roomID := args[0]
			app.Rooms.Activate(roomID)
			text := strings.Join(args[1:], " ")
			if err := app.Rooms.AppendMessage(cmd.Context(), roomID, rooms.ParseRole(role), text); err != nil {
				return err
			}
			printMessages(cmd, roomID, app.Rooms.View(roomID).Messages)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(rooms.RoleUser), "Message role (user|system)")
	return cmd
}

func roomsEnsureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure <room_id> [title]",
		Short: "Create a room if it does not exist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			roomID := args[0]
			title := strings.Join(args[1:], " ")
			if title == "" {
				title = "Room " + roomID
			}
			if err := app.Rooms.EnsureRoom(cmd.Context(), roomID, title); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s room %s ensured\n", okText("OK"), roomID)
			return nil
		},
	}
}

func roomsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <room_id> <title...>",
		Short: "Rename a room",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, wire.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			title := strings.Join(args[1:], " ")
			if err := app.Rooms.RenameRoom(cmd.Context(), args[0], title); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s room %s renamed to %q\n", okText("OK"), args[0], title)
			return nil
		},
	}
}

func printMessages(cmd *cobra.Command, roomID string, msgs []rooms.Message) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headText("Room "+roomID))
	if len(msgs) == 0 {
		fmt.Fprintln(out, dimText("no messages"))
		return
	}
	for _, msg := range msgs {
		stamp := "--:--:--"
		if !msg.CreatedAt.IsZero() {
			stamp = msg.CreatedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(out, "%s %-6s %s\n", dimText(stamp), string(msg.Role), msg.Text)
	}
}
