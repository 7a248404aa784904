package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"launchpad/internal/domain"
	"launchpad/internal/engine"
	"launchpad/internal/engine/auth"
)

func contractCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "contract",
		Short: "Draft, send and sign contracts",
		Long:  "A contract is drafted by its creator, sent to one or more parties, and becomes SIGNED when every party signs. A single rejection cancels it.",
	}
	c.AddCommand(contractCreateCmd())
	c.AddCommand(contractListCmd())
	c.AddCommand(contractShowCmd())
	c.AddCommand(contractUpdateCmd())
	c.AddCommand(contractSendCmd())
	c.AddCommand(contractSignCmd())
	c.AddCommand(contractRejectCmd())
	return c
}

func printContractDetail(d engine.ContractDetail) error {
	if viper.GetBool("json") {
		return printJSON(d)
	}
	fmt.Printf("%s  %s  [%s]  by %s\n", d.Contract.ID, d.Contract.Title, d.Contract.Status, d.Contract.CreatorID)
	if len(d.Signatures) == 0 {
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Party", "Status", "Signed at"})
	for _, s := range d.Signatures {
		tw.AppendRow(table.Row{s.PartyID, s.Status, deref(s.SignedAt)})
	}
	tw.Render()
	return nil
}

func contractCreateCmd() *cobra.Command {
	var opts engine.ContractCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				c, err := e.CreateContract(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "contract title")
	cmd.Flags().StringVar(&opts.Template, "template", "", "template tag")
	cmd.Flags().StringVar(&opts.Content, "content", "", "contract body")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func contractListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List contracts you created or must sign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				items, err := e.ListMyContracts(ctx, actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, c := range items {
					rows = append(rows, table.Row{c.ID, c.Title, c.Status, c.CreatorID, c.CreatedAt})
				}
				return printRows(items, table.Row{"ID", "Title", "Status", "Creator", "Created"}, rows)
			})
		},
	}
}

func contractShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a contract and its signatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				d, err := e.GetContractDetail(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printContractDetail(d)
			})
		},
	}
}

func contractUpdateCmd() *cobra.Command {
	var title, template, content string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a draft contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.ContractPatch{
				Title:    optionalString(cmd, "title", title),
				Template: optionalString(cmd, "template", template),
				Content:  optionalString(cmd, "content", content),
			}
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				c, err := e.UpdateContract(ctx, actor, args[0], patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&template, "template", "", "new template tag")
	cmd.Flags().StringVar(&content, "content", "", "new body")
	return cmd
}

func contractSendCmd() *cobra.Command {
	var parties []string
	cmd := &cobra.Command{
		Use:   "send <id>",
		Short: "Send a draft to its signing parties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				d, err := e.SendContract(ctx, actor, args[0], parties)
				if err != nil {
					return err
				}
				return printContractDetail(d)
			})
		},
	}
	cmd.Flags().StringSliceVar(&parties, "party", nil, "party user id (repeatable)")
	_ = cmd.MarkFlagRequired("party")
	return cmd
}

func contractSignCmd() *cobra.Command {
	return contractDecisionCmd("sign", "Sign a sent contract", domain.SignatureSigned)
}

func contractRejectCmd() *cobra.Command {
	return contractDecisionCmd("reject", "Reject a sent contract", domain.SignatureRejected)
}

func contractDecisionCmd(use, short string, decision domain.SignatureStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, e engine.Engine, actor auth.Actor) error {
				var (
					d   engine.ContractDetail
					err error
				)
				if decision == domain.SignatureSigned {
					d, err = e.SignContract(ctx, actor, args[0])
				} else {
					d, err = e.RejectContract(ctx, actor, args[0])
				}
				if err != nil {
					return err
				}
				return printContractDetail(d)
			})
		},
	}
}
