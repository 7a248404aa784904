package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"launchpad/internal/engine"
	"launchpad/internal/engine/auth"
	"launchpad/internal/repo"
)

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage directory users"}
	var opts engine.UserCreateOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	create.Flags().StringVar(&opts.ID, "id", "", "user id (generated when empty)")
	create.Flags().StringVar(&opts.Username, "username", "", "unique username")
	create.Flags().StringVar(&opts.Email, "email", "", "email")
	create.Flags().StringVar(&opts.Role, "role", "", "STUDENT, STARTUPER, ANGEL or ADMIN (default STUDENT)")
	_ = create.MarkFlagRequired("username")
	u.AddCommand(create)
	u.AddCommand(&cobra.Command{
		Use:   "whoami",
		Short: "Show the tier and workspace of --as",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				return printJSONOrTable(map[string]any{
					"user_id":      actor.UserID,
					"username":     actor.Username,
					"role":         actor.Role,
					"tier":         actor.Tier.String(),
					"workspace_id": actor.WorkspaceID,
				})
			})
		},
	})
	return u
}

func workspaceCmd() *cobra.Command {
	w := &cobra.Command{Use: "workspace", Short: "Startup workspaces and membership"}
	w.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create your startup workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				ws, err := e.CreateWorkspace(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(ws)
			})
		},
	})
	w.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show your effective workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				ws, err := e.GetWorkspace(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(ws)
			})
		},
	})
	w.AddCommand(&cobra.Command{
		Use:   "join-code",
		Short: "Generate a new join code for your workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				code, err := e.RotateJoinCode(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"join_code": code})
			})
		},
	})
	w.AddCommand(&cobra.Command{
		Use:   "join <code>",
		Short: "Join a workspace as a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				ws, err := e.JoinWorkspace(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(ws)
			})
		},
	})
	w.AddCommand(&cobra.Command{
		Use:   "members",
		Short: "List the owner and members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				users, err := e.ListMembers(ctx, actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(users))
				for _, u := range users {
					rows = append(rows, table.Row{u.ID, u.Username, u.Role, u.Email})
				}
				return printRows(users, table.Row{"ID", "Username", "Role", "Email"}, rows)
			})
		},
	})
	return w
}

func notificationCmd() *cobra.Command {
	n := &cobra.Command{Use: "notification", Aliases: []string{"inbox"}, Short: "Your notification inbox"}
	var unread bool
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				items, err := e.ListNotifications(ctx, actor, unread, limit)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, item := range items {
					mark := " "
					if !item.IsRead {
						mark = "*"
					}
					rows = append(rows, table.Row{mark, item.ID, item.Kind, item.Message, item.CreatedAt})
				}
				return printRows(items, table.Row{"", "ID", "Kind", "Message", "Created"}, rows)
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "only unread notifications")
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	n.AddCommand(list)
	n.AddCommand(&cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				return e.MarkNotificationRead(ctx, actor, args[0])
			})
		},
	})
	n.AddCommand(&cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				count, err := e.MarkAllNotificationsRead(ctx, actor)
				if err != nil {
					return err
				}
				fmt.Printf("marked %d notification(s) read\n", count)
				return nil
			})
		},
	})
	return n
}

func scoreCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "score",
		Short: "Workspace score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				score, err := e.GetScore(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(score)
			})
		},
	}
	var limit int
	events := &cobra.Command{
		Use:   "events",
		Short: "Score ledger, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				items, err := e.ListScoreEvents(ctx, actor, limit)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, ev := range items {
					rows = append(rows, table.Row{ev.ID, ev.EventType, ev.Points, ev.Note, ev.CreatedAt})
				}
				return printRows(items, table.Row{"ID", "Type", "Points", "Note", "Created"}, rows)
			})
		},
	}
	events.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	s.AddCommand(events)
	return s
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The audit trail of every workflow change. Without --as the whole log is shown; with --as only that owner's workspace.",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.WorkspaceID == "" && asFlag() != "" {
					actor, err := e.ResolveActor(ctx, asFlag())
					if err != nil {
						return err
					}
					events, err := e.ListEvents(ctx, actor, f)
					if err != nil {
						return err
					}
					return printJSONOrTable(events)
				}
				events, err := e.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&f.WorkspaceID, "workspace-id", "", "workspace filter")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "API keys for the HTTP API"}
	var userID, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue a key; the plaintext is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plain, err := e.CreateAPIKey(ctx, userID, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "user_id": key.UserID, "key": plain})
			})
		},
	}
	create.Flags().StringVar(&userID, "user", "", "user id the key authenticates as")
	create.Flags().StringVar(&name, "name", "", "label")
	_ = create.MarkFlagRequired("user")
	k.AddCommand(create)

	var listUser string
	list := &cobra.Command{
		Use:   "list",
		Short: "List keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, listUser)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(keys))
				for _, key := range keys {
					rows = append(rows, table.Row{key.ID, key.UserID, key.Name, key.CreatedAt})
				}
				return printRows(keys, table.Row{"ID", "User", "Name", "Created"}, rows)
			})
		},
	}
	list.Flags().StringVar(&listUser, "user", "", "only keys of this user")
	k.AddCommand(list)
	k.AddCommand(&cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, args[0])
			})
		},
	})
	return k
}
