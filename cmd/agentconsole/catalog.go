package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"AgentConsole/internal/catalog"

	"github.com/spf13/cobra"
)

func agentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage the agent catalog",
	}
	cmd.AddCommand(agentsListCmd(), agentsRegisterCmd(), agentsRemoveCmd())
	return cmd
}

func agentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [query]",
		Short: "List registered agents, optionally filtered by name, description or tag",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			agents, err := a.catalog.SearchAgents(cmd.Context(), query)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(agents) == 0 {
				fmt.Fprintln(out, "No agents registered.")
				return nil
			}
			for _, ag := range agents {
				target := ag.URL
				if ag.Transport == catalog.TransportStdio {
					target = strings.TrimSpace(ag.Command + " " + strings.Join(ag.Args, " "))
				}
				fmt.Fprintf(out, "%-20s %-6s %s\n", ag.Name, ag.Transport, target)
				if ag.Description != "" {
					fmt.Fprintf(out, "%-20s %-6s %s\n", "", "", ag.Description)
				}
			}
			return nil
		},
	}
}

func agentsRegisterCmd() *cobra.Command {
	var (
		agent     catalog.Agent
		transport string
		binary    string
	)

	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register an agent reachable over stdio or HTTP",
		Long: `Registers an agent in the catalog.

A stdio agent is started once per message with the request on stdin.
Use --binary to register an executable file; its name without the
extension must match the agent name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent.Name = args[0]
			agent.Transport = catalog.Transport(transport)

			if binary != "" {
				if err := catalog.ValidateUpload(agent.Name, filepath.Base(binary)); err != nil {
					return err
				}
				abs, err := filepath.Abs(binary)
				if err != nil {
					return err
				}
				if _, err := os.Stat(abs); err != nil {
					return fmt.Errorf("failed to read agent binary: %w", err)
				}
				if agent.Command == "" {
					agent.Command = abs
				}
			}

			a, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			registered, err := a.catalog.RegisterAgent(cmd.Context(), agent)
			if err != nil {
				return err
			}
			a.logger.Info("registered agent", "agent", registered.Name, "transport", registered.Transport)
			fmt.Fprintf(cmd.OutOrStdout(), "Registered agent %s (%s)\n", registered.Name, registered.Transport)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&transport, "transport", string(catalog.TransportStdio), "stdio or http")
	f.StringVar(&agent.Command, "command", "", "executable for stdio agents")
	f.StringSliceVar(&agent.Args, "args", nil, "arguments for stdio agents")
	f.StringVar(&agent.URL, "url", "", "endpoint for http agents")
	f.StringVar(&agent.Method, "method", "", "JSON-RPC method (default \"run\")")
	f.StringVar(&agent.Description, "description", "", "what the agent does")
	f.StringSliceVar(&agent.Tags, "tags", nil, "search tags")
	f.StringVar(&binary, "binary", "", "agent executable to register")
	return cmd
}

func agentsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a registered agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.catalog.RemoveAgent(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed agent %s\n", args[0])
			return nil
		},
	}
}

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage registered MCP servers",
	}
	cmd.AddCommand(mcpListCmd(), mcpAddCmd(), mcpRemoveCmd())
	return cmd
}

func mcpListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			servers, err := a.catalog.ListMCPServers(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(servers) == 0 {
				fmt.Fprintln(out, "No MCP servers registered.")
				return nil
			}
			for _, s := range servers {
				target := s.URL
				if s.Transport == catalog.TransportStdio {
					target = strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
				}
				fmt.Fprintf(out, "%-20s %-6s %s\n", s.Name, s.Transport, target)
			}
			return nil
		},
	}
}

func mcpAddCmd() *cobra.Command {
	var (
		server    catalog.MCPServer
		transport string
		env       []string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register an MCP server to connect when MCP is enabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server.Name = args[0]
			server.Transport = catalog.Transport(transport)
			if len(env) > 0 {
				server.Env = make(map[string]string, len(env))
				for _, kv := range env {
					k, v, ok := strings.Cut(kv, "=")
					if !ok || k == "" {
						return fmt.Errorf("invalid --env %q, expected KEY=VALUE", kv)
					}
					server.Env[k] = v
				}
			}

			a, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			registered, err := a.catalog.RegisterMCPServer(cmd.Context(), server)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered MCP server %s (%s)\n", registered.Name, registered.Transport)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&transport, "transport", string(catalog.TransportStdio), "stdio, http or ws")
	f.StringVar(&server.Command, "command", "", "executable for stdio servers")
	f.StringSliceVar(&server.Args, "args", nil, "arguments for stdio servers")
	f.StringArrayVar(&env, "env", nil, "KEY=VALUE added to a stdio server's environment (repeatable)")
	f.StringVar(&server.URL, "url", "", "endpoint for http and ws servers")
	f.StringVar(&server.Description, "description", "", "what the server provides")
	return cmd
}

func mcpRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a registered MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.catalog.RemoveMCPServer(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed MCP server %s\n", args[0])
			return nil
		},
	}
}
