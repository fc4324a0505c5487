// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianProteo/pkg/ux"
	"github.com/AleutianAI/AleutianProteo/services/orchestrator/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

const (
	defaultServer  = "http://localhost:12210"
	serverEnv      = "PROTEO_SERVER"
	defaultTimeout = 60 * time.Second
)

// ErrDegraded is returned by status when the quorum is not met, so the
// process exits non-zero.
var ErrDegraded = errors.New("proteo is degraded")

type rootOptions struct {
	server  string
	timeout time.Duration
	noColor bool
}

func (o *rootOptions) client() *Client {
	return NewClient(o.server, o.timeout)
}

// printer colours output only when it goes to a terminal.
func (o *rootOptions) printer(w io.Writer) *ux.Printer {
	color := false
	if f, ok := w.(*os.File); ok && !o.noColor {
		color = ux.IsTerminal(f)
	}
	return ux.NewPrinter(w, color)
}

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	server := os.Getenv(serverEnv)
	if server == "" {
		server = defaultServer
	}

	rootCmd := &cobra.Command{
		Use:   "proteo",
		Short: "Ask Proteo about the Italian seas",
		Long: `Proteo answers questions about Italian marine data by combining a
marine knowledge graph, Italian and European open-data sources and the
conversation so far.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", server, "orchestrator URL (env "+serverEnv+")")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable coloured output")

	rootCmd.AddCommand(
		newAskCmd(opts),
		newStatusCmd(opts),
		newSourcesCmd(opts),
		newExportCmd(opts),
	)
	return rootCmd
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var sessionID, userID string
	var mock bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the sea",
		Long: `Sends a question to the orchestrator and prints the composed answer,
its confidence, the data sources used, citations and follow-up suggestions.

Pass --session with the id printed after an answer to continue the
conversation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := opts.printer(cmd.OutOrStdout())
			req := datatypes.ChatRequest{
				SessionID: sessionID,
				UserID:    userID,
				Message:   strings.Join(args, " "),
				Mode:      datatypes.ModeComposer,
			}
			if mock {
				req.Mode = datatypes.ModeMock
			}

			var resp datatypes.ChatResponse
			err := p.WithSpinner("Proteo sta consultando i dati marini", func() error {
				var err error
				resp, err = opts.client().Ask(cmd.Context(), req)
				return err
			})
			if err != nil {
				return err
			}
			renderAnswer(p, resp)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue an existing session")
	cmd.Flags().StringVar(&userID, "user", "", "user id recorded with a new session")
	cmd.Flags().BoolVar(&mock, "mock", false, "use canned demo answers")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the health of every Proteo subsystem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := opts.client().Health(cmd.Context())
			if err != nil {
				return err
			}
			renderHealth(opts.printer(cmd.OutOrStdout()), report)
			if !report.Overall {
				return ErrDegraded
			}
			return nil
		},
	}
}

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the open-data sources Proteo queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := opts.client().Sources(cmd.Context())
			if err != nil {
				return err
			}
			renderSources(opts.printer(cmd.OutOrStdout()), list)
			return nil
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <session>",
		Short: "Download a conversation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			data, filename, err := opts.client().Export(cmd.Context(), sessionID)
			if err != nil {
				return err
			}

			if output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if output == "" {
				output = filepath.Base(filename)
				if filename == "" {
					output = fmt.Sprintf("proteo-conversation-%s.json", sessionID)
				}
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			opts.printer(cmd.OutOrStdout()).Success(fmt.Sprintf("Exported session %s to %s", sessionID, output))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", `output file ("-" for stdout); default from the server`)
	return cmd
}
